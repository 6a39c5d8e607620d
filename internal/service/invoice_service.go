package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Dhoini/billing-sync/internal/domain"
	"github.com/Dhoini/billing-sync/internal/repository"
	"github.com/Dhoini/billing-sync/internal/stripe"
	"github.com/Dhoini/billing-sync/pkg/logger"
	stripego "github.com/stripe/stripe-go/v78"
)

// MinInvoiceAmount минимальная сумма счета в центах
const MinInvoiceAmount = 50

// PaymentMetrics учет попыток оплаты
type PaymentMetrics interface {
	ObserveInvoicePayment(outcome string)
}

// PayInvoicesInput параметры оплаты открытых счетов за период
type PayInvoicesInput struct {
	Email          string
	StartDate      time.Time
	EndDate        time.Time
	SearchStrategy stripe.SearchField
}

// InvoiceFailure счет, который не удалось оплатить
type InvoiceFailure struct {
	InvoiceID string `json:"invoiceId"`
	AmountDue int64  `json:"amountDue"`
	Error     string `json:"error"`
}

// PayInvoicesResult оплаченные счета в порядке выдачи Stripe и неудачные попытки
type PayInvoicesResult struct {
	Total        int                 `json:"total"`
	PaidInvoices []*stripego.Invoice `json:"paidInvoices"`
	Failed       []InvoiceFailure    `json:"failedInvoices"`
}

// InvoiceService выставление и оплата счетов
type InvoiceService struct {
	store   repository.RecordStore
	client  stripe.Client
	metrics PaymentMetrics
	log     *logger.Logger
}

// NewInvoiceService создает новый сервис счетов. metrics может быть nil.
func NewInvoiceService(store repository.RecordStore, client stripe.Client, metrics PaymentMetrics, log *logger.Logger) *InvoiceService {
	return &InvoiceService{store: store, client: client, metrics: metrics, log: log}
}

// GenerateInvoice выставляет и финализирует счет на amount центов
func (s *InvoiceService) GenerateInvoice(ctx context.Context, email string, amount int64) (*stripego.Invoice, error) {
	if amount < MinInvoiceAmount {
		return nil, domain.NewValidationError("invoiceAmount", fmt.Sprintf(`"invoiceAmount" must be a number > %d`, MinInvoiceAmount))
	}

	customerID, err := s.resolveCustomer(ctx, email)
	if err != nil {
		return nil, err
	}

	draft, err := s.client.CreateInvoice(ctx, customerID, amount)
	if err != nil {
		return nil, upstream("CreateInvoice", err)
	}

	inv, err := s.client.FinalizeInvoice(ctx, draft.ID)
	if err != nil {
		return nil, upstream("FinalizeInvoice", err)
	}

	s.log.Infow("Invoice generated", "email", email, "invoiceID", inv.ID, "amount", amount)
	return inv, nil
}

// PayInvoices оплачивает открытые счета клиента за период строго по одному.
// Ошибка оплаты одного счета попадает в Failed и не прерывает обход.
// Ошибка постраничной выдачи прерывает операцию.
func (s *InvoiceService) PayInvoices(ctx context.Context, in PayInvoicesInput) (*PayInvoicesResult, error) {
	if !in.SearchStrategy.Valid() {
		return nil, domain.NewValidationError("searchStrategy",
			fmt.Sprintf(`Supplied strategy "%s" must be one of "%s, %s"`, in.SearchStrategy, stripe.SearchByCreated, stripe.SearchByDueDate))
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, domain.NewValidationError("endDate", `"startDate" must not be after "endDate"`)
	}

	customerID, err := s.resolveCustomer(ctx, in.Email)
	if err != nil {
		return nil, err
	}

	iter := s.client.ListInvoices(ctx, stripe.InvoiceQuery{
		CustomerID: customerID,
		Status:     stripego.InvoiceStatusOpen,
		Field:      in.SearchStrategy,
		From:       in.StartDate,
		To:         in.EndDate,
	})

	result := &PayInvoicesResult{
		PaidInvoices: make([]*stripego.Invoice, 0),
		Failed:       make([]InvoiceFailure, 0),
	}
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("invoice settlement interrupted: %w", err)
		}

		inv := iter.Invoice()
		paid, err := s.client.PayInvoice(ctx, inv.ID)
		if err != nil {
			s.log.Warnw("Failed to pay invoice, continuing", "invoiceID", inv.ID, "customerID", customerID, "error", err)
			result.Failed = append(result.Failed, InvoiceFailure{
				InvoiceID: inv.ID,
				AmountDue: inv.AmountDue,
				Error:     failureMessage(err),
			})
			s.observe("failed")
			continue
		}
		result.PaidInvoices = append(result.PaidInvoices, paid)
		s.observe("ok")
	}
	if err := iter.Err(); err != nil {
		return nil, upstream("ListInvoices", err)
	}

	result.Total = len(result.PaidInvoices)
	s.log.Infow("Invoice settlement finished", "email", in.Email, "paid", result.Total, "failed", len(result.Failed))
	return result, nil
}

// resolveCustomer находит customerId по email, отсутствие записи - ErrCustomerNotFound
func (s *InvoiceService) resolveCustomer(ctx context.Context, email string) (string, error) {
	rec, err := s.store.FindOne(ctx, domain.ByEmail(email))
	if err != nil {
		return "", storeFailure("FindOne", err)
	}
	if rec == nil || rec.CustomerID == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrCustomerNotFound, email)
	}
	return rec.CustomerID, nil
}

func (s *InvoiceService) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveInvoicePayment(outcome)
	}
}
