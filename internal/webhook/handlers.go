package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/billing-sync/internal/domain"
	"github.com/Dhoini/billing-sync/internal/repository"
	"github.com/Dhoini/billing-sync/pkg/logger"
)

// Outcome результат обработки одного события
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeNoop    Outcome = "noop"
	OutcomeFailed  Outcome = "failed"
	OutcomeIgnored Outcome = "ignored"
)

// RecordNotifier получает уведомления об успешных изменениях записей
type RecordNotifier interface {
	NotifyRecordChange(ctx context.Context, change domain.RecordChange) error
}

// Handlers шесть обработчиков сверки. Каждый сам перехватывает и логирует свои ошибки.
type Handlers struct {
	store    repository.RecordStore
	resolver ProductResolver
	notifier RecordNotifier
	log      *logger.Logger
	now      func() time.Time
}

// NewHandlers создает обработчики. notifier может быть nil.
func NewHandlers(store repository.RecordStore, resolver ProductResolver, notifier RecordNotifier, log *logger.Logger) *Handlers {
	return &Handlers{
		store:    store,
		resolver: resolver,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// CustomerCreated создает запись для нового клиента. Дубликат email не повторяется.
func (h *Handlers) CustomerCreated(ctx context.Context, ev CustomerCreated) Outcome {
	return h.contain(ctx, ev, func() (Outcome, error) {
		if ev.CustomerID == "" {
			return OutcomeFailed, errors.New("customer id is missing")
		}
		rec := &domain.Record{CustomerID: ev.CustomerID, Email: ev.Email, Name: ev.Name}
		if err := h.store.Create(ctx, rec); err != nil {
			return OutcomeFailed, err
		}
		h.notify(ctx, domain.RecordChange{Kind: domain.ChangeCreated, CustomerID: ev.CustomerID, Email: ev.Email, SourceEvent: ev.Kind()})
		return OutcomeOK, nil
	})
}

// CustomerUpdated обновляет email и имя. Без совпадения ничего не делает.
func (h *Handlers) CustomerUpdated(ctx context.Context, ev CustomerUpdated) Outcome {
	return h.contain(ctx, ev, func() (Outcome, error) {
		if ev.CustomerID == "" {
			return OutcomeFailed, errors.New("customer id is missing")
		}
		update := domain.RecordUpdate{Email: ev.Email, Name: ev.Name}
		if update.IsEmpty() {
			return OutcomeNoop, nil
		}
		ok, err := h.store.UpdateOne(ctx, domain.ByCustomerID(ev.CustomerID), update)
		if err != nil {
			return OutcomeFailed, err
		}
		if !ok {
			return OutcomeNoop, nil
		}
		change := domain.RecordChange{Kind: domain.ChangeUpdated, CustomerID: ev.CustomerID, SourceEvent: ev.Kind()}
		if ev.Email != nil {
			change.Email = *ev.Email
		}
		h.notify(ctx, change)
		return OutcomeOK, nil
	})
}

// CustomerDeleted удаляет запись клиента. Без совпадения ничего не делает.
func (h *Handlers) CustomerDeleted(ctx context.Context, ev CustomerDeleted) Outcome {
	return h.contain(ctx, ev, func() (Outcome, error) {
		if ev.CustomerID == "" {
			return OutcomeFailed, errors.New("customer id is missing")
		}
		ok, err := h.store.DeleteOne(ctx, domain.ByCustomerID(ev.CustomerID))
		if err != nil {
			return OutcomeFailed, err
		}
		if !ok {
			return OutcomeNoop, nil
		}
		h.notify(ctx, domain.RecordChange{Kind: domain.ChangeDeleted, CustomerID: ev.CustomerID, SourceEvent: ev.Kind()})
		return OutcomeOK, nil
	})
}

// SubscriptionChanged записывает всю группу тарифа одним обновлением
func (h *Handlers) SubscriptionChanged(ctx context.Context, ev SubscriptionChanged) Outcome {
	return h.contain(ctx, ev, func() (Outcome, error) {
		if ev.CustomerID == "" {
			return OutcomeFailed, errors.New("customer id is missing")
		}
		if ev.SubscriptionID == "" || ev.Plan == nil {
			return OutcomeFailed, errors.New("subscription plan data is missing")
		}

		planName, err := h.resolver.ResolveProductName(ctx, ev)
		if err != nil {
			return OutcomeFailed, err
		}

		plan := domain.PlanState{
			SubscriptionID: ev.SubscriptionID,
			PriceID:        ev.Plan.PriceID,
			ProductID:      ev.Plan.ProductID,
			PlanName:       planName,
			PlanPrice:      ev.Plan.Amount,
		}
		ok, err := h.store.UpdateOne(ctx, domain.ByCustomerID(ev.CustomerID), domain.RecordUpdate{Plan: domain.SetPlan(plan)})
		if err != nil {
			return OutcomeFailed, err
		}
		if !ok {
			return OutcomeNoop, nil
		}
		h.notify(ctx, domain.RecordChange{Kind: domain.ChangePlanSet, CustomerID: ev.CustomerID, Plan: &plan, SourceEvent: ev.Kind()})
		return OutcomeOK, nil
	})
}

// SubscriptionDeleted очищает группу тарифа, запись остается
func (h *Handlers) SubscriptionDeleted(ctx context.Context, ev SubscriptionDeleted) Outcome {
	return h.contain(ctx, ev, func() (Outcome, error) {
		if ev.CustomerID == "" {
			return OutcomeFailed, errors.New("customer id is missing")
		}
		ok, err := h.store.UpdateOne(ctx, domain.ByCustomerID(ev.CustomerID), domain.RecordUpdate{Plan: domain.ClearPlan()})
		if err != nil {
			return OutcomeFailed, err
		}
		if !ok {
			return OutcomeNoop, nil
		}
		h.notify(ctx, domain.RecordChange{Kind: domain.ChangePlanCleared, CustomerID: ev.CustomerID, SourceEvent: ev.Kind()})
		return OutcomeOK, nil
	})
}

// contain выполняет обработчик, превращая ошибки и панику в OutcomeFailed
func (h *Handlers) contain(_ context.Context, ev Event, fn func() (Outcome, error)) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Errorw("Webhook handler panicked", "eventType", ev.Kind(), "panic", fmt.Sprint(r))
			outcome = OutcomeFailed
		}
	}()

	outcome, err := fn()
	switch {
	case err != nil && errors.Is(err, domain.ErrDuplicate):
		h.log.Warnw("Webhook event conflicts with an existing record", "eventType", ev.Kind(), "error", err)
	case err != nil:
		h.log.Errorw("Failed to reconcile webhook event", "eventType", ev.Kind(), "error", err)
	case outcome == OutcomeNoop:
		h.log.Debugw("Webhook event matched no record", "eventType", ev.Kind())
	default:
		h.log.Infow("Webhook event reconciled", "eventType", ev.Kind())
	}
	return outcome
}

func (h *Handlers) notify(ctx context.Context, change domain.RecordChange) {
	if h.notifier == nil {
		return
	}
	change.OccurredAt = h.now().UTC()
	if err := h.notifier.NotifyRecordChange(ctx, change); err != nil {
		h.log.Errorw("Failed to publish record change", "kind", string(change.Kind), "customerID", change.CustomerID, "error", err)
	}
}
