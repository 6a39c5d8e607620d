package stripe

import (
	"context"
	"time"

	"github.com/Dhoini/billing-sync/pkg/logger"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// Значения PriceListParams.Type
const (
	PriceTypeRecurring = "recurring"
	PriceTypeOneTime   = "one_time"
)

// Client определяет методы для взаимодействия со Stripe API.
// Все методы выполняются в рамках ctx.
type Client interface {
	// CreateCustomer создает нового клиента в Stripe.
	CreateCustomer(ctx context.Context, name, email string) (*stripe.Customer, error)
	// UpdateCustomerDefaultPaymentMethod назначает метод оплаты счетов по умолчанию.
	UpdateCustomerDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (*stripe.Customer, error)
	// GetCustomer получает клиента по ID.
	GetCustomer(ctx context.Context, customerID string) (*stripe.Customer, error)

	// CreateSubscription создает подписку с раскрытым latest_invoice.payment_intent.
	CreateSubscription(ctx context.Context, customerID, priceID string) (*stripe.Subscription, error)
	// GetActiveSubscription возвращает активную подписку клиента или nil, если ее нет.
	GetActiveSubscription(ctx context.Context, customerID string) (*stripe.Subscription, error)
	// GetSubscription получает подписку по ID.
	GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)

	// ListPrices возвращает цены указанного типа (recurring или one_time).
	ListPrices(ctx context.Context, priceType string) ([]*stripe.Price, error)
	// GetProduct получает продукт по ID.
	GetProduct(ctx context.Context, productID string) (*stripe.Product, error)

	// CreateInvoice создает черновик счета с одной позицией в USD.
	CreateInvoice(ctx context.Context, customerID string, amount int64) (*stripe.Invoice, error)
	// FinalizeInvoice финализирует черновик счета.
	FinalizeInvoice(ctx context.Context, invoiceID string) (*stripe.Invoice, error)
	// ListInvoices возвращает ленивый итератор по счетам.
	ListInvoices(ctx context.Context, query InvoiceQuery) InvoiceIterator
	// PayInvoice оплачивает счет.
	PayInvoice(ctx context.Context, invoiceID string) (*stripe.Invoice, error)

	// AttachTestPaymentMethod создает карту из тестового токена, привязывает ее к клиенту
	// и делает методом оплаты счетов по умолчанию.
	AttachTestPaymentMethod(ctx context.Context, customerID string) (*stripe.PaymentMethod, error)
}

// CallObserver получает длительность каждого вызова Stripe
type CallObserver interface {
	ObserveProcessorCall(operation, outcome string, d time.Duration)
}

// Config конфигурация клиента Stripe
type Config struct {
	APIKey string
	// MaxRetryElapsed общее время повторов идемпотентных чтений. 0 - значение по умолчанию.
	MaxRetryElapsed time.Duration
	// BackendURL переопределяет адрес API (используется в тестах).
	BackendURL string
}

// stripeClient реализует интерфейс Client.
type stripeClient struct {
	api      *client.API
	log      *logger.Logger
	observer CallObserver
	retry    time.Duration
}

// NewClient создает новый экземпляр клиента Stripe.
func NewClient(cfg Config, log *logger.Logger, observer CallObserver) Client {
	var backends *stripe.Backends
	if cfg.BackendURL != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(cfg.BackendURL),
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		})
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}

	api := &client.API{}
	api.Init(cfg.APIKey, backends)

	retry := cfg.MaxRetryElapsed
	if retry <= 0 {
		retry = defaultMaxRetryElapsed
	}

	return &stripeClient{
		api:      api,
		log:      log.Named("stripe"),
		observer: observer,
		retry:    retry,
	}
}

// observe вызывается через defer, поэтому ошибка передается указателем
func (sc *stripeClient) observe(operation string, started time.Time, errp *error) {
	if sc.observer == nil {
		return
	}
	outcome := "ok"
	if errp != nil && *errp != nil {
		outcome = "failed"
	}
	sc.observer.ObserveProcessorCall(operation, outcome, time.Since(started))
}
