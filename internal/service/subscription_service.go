package service

import (
	"context"

	"github.com/Dhoini/billing-sync/internal/domain"
	"github.com/Dhoini/billing-sync/internal/repository"
	"github.com/Dhoini/billing-sync/internal/stripe"
	"github.com/Dhoini/billing-sync/pkg/logger"
	stripego "github.com/stripe/stripe-go/v78"
)

// ActiveSubscription ответ на вопрос "есть ли у клиента активная подписка"
type ActiveSubscription struct {
	IsActive     bool                   `json:"isActive"`
	Subscription *stripego.Subscription `json:"subscription,omitempty"`
}

// SubscribeResult результат оформления подписки
type SubscribeResult struct {
	Customer      *stripego.Customer      `json:"customer"`
	Subscription  *stripego.Subscription  `json:"subscription"`
	PaymentMethod *stripego.PaymentMethod `json:"paymentMethod"`
}

// SubscriptionService оформление подписок и проверка их статуса
type SubscriptionService struct {
	store  repository.RecordStore
	client stripe.Client
	log    *logger.Logger
}

// NewSubscriptionService создает новый сервис подписок
func NewSubscriptionService(store repository.RecordStore, client stripe.Client, log *logger.Logger) *SubscriptionService {
	return &SubscriptionService{store: store, client: client, log: log}
}

// GetActiveSubscription сначала ищет локальную запись, затем спрашивает Stripe.
// Нет записи - нет подписки, Stripe не вызывается. Ответ Stripe окончательный.
func (s *SubscriptionService) GetActiveSubscription(ctx context.Context, email string) (*ActiveSubscription, error) {
	rec, err := s.store.FindOne(ctx, domain.ByEmail(email))
	if err != nil {
		s.log.Errorw("Failed to look up record", "email", email, "error", err)
		return nil, storeFailure("FindOne", err)
	}
	if rec == nil || rec.CustomerID == "" {
		s.log.Debugw("No local record, subscription is not active", "email", email)
		return &ActiveSubscription{IsActive: false}, nil
	}

	sub, err := s.client.GetActiveSubscription(ctx, rec.CustomerID)
	if err != nil {
		return nil, upstream("GetActiveSubscription", err)
	}

	if rec.HasPlan() != (sub != nil) {
		s.log.Infow("Local plan state differs from Stripe", "email", email, "customerID", rec.CustomerID, "remoteActive", sub != nil)
	}
	return &ActiveSubscription{IsActive: sub != nil, Subscription: sub}, nil
}

// Subscribe создает клиента, тестовый метод оплаты и подписку на первую регулярную цену.
// Локальная запись появится позже из webhook customer.created.
func (s *SubscriptionService) Subscribe(ctx context.Context, email, name string) (*SubscribeResult, error) {
	existing, err := s.store.FindOne(ctx, domain.ByEmail(email))
	if err != nil {
		return nil, storeFailure("FindOne", err)
	}
	if existing != nil {
		return nil, domain.NewDuplicateError("customer", "email", email)
	}

	prices, err := s.client.ListPrices(ctx, stripe.PriceTypeRecurring)
	if err != nil {
		return nil, upstream("ListPrices", err)
	}
	if len(prices) == 0 {
		s.log.Errorw("No recurring price configured in Stripe")
		return nil, domain.ErrNoRecurringPrice
	}
	price := prices[0]

	customer, err := s.client.CreateCustomer(ctx, name, email)
	if err != nil {
		return nil, upstream("CreateCustomer", err)
	}

	pm, err := s.client.AttachTestPaymentMethod(ctx, customer.ID)
	if err != nil {
		return nil, upstream("AttachTestPaymentMethod", err)
	}

	sub, err := s.client.CreateSubscription(ctx, customer.ID, price.ID)
	if err != nil {
		return nil, upstream("CreateSubscription", err)
	}

	s.log.Infow("Customer subscribed", "email", email, "customerID", customer.ID, "subscriptionID", sub.ID, "priceID", price.ID)
	return &SubscribeResult{Customer: customer, Subscription: sub, PaymentMethod: pm}, nil
}
