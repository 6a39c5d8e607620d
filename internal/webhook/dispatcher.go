package webhook

import (
	"context"

	"github.com/Dhoini/billing-sync/pkg/logger"
)

// Metrics метрики, которые пишет диспетчер
type Metrics interface {
	ObserveWebhookEvent(kind, outcome string)
	IncParseFailure()
}

type nopMetrics struct{}

func (nopMetrics) ObserveWebhookEvent(string, string) {}
func (nopMetrics) IncParseFailure()                   {}

// Dispatcher направляет событие своему обработчику и дожидается его завершения.
// Диспетчер никогда не возвращает ошибку: обработчики изолируют свои сбои сами.
type Dispatcher struct {
	handlers *Handlers
	metrics  Metrics
	log      *logger.Logger
}

// NewDispatcher создает диспетчер. metrics может быть nil.
func NewDispatcher(handlers *Handlers, metrics Metrics, log *logger.Logger) *Dispatcher {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Dispatcher{handlers: handlers, metrics: metrics, log: log}
}

// Dispatch обрабатывает разобранное событие
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Outcome {
	var outcome Outcome

	switch e := ev.(type) {
	case CustomerCreated:
		outcome = d.handlers.CustomerCreated(ctx, e)
	case CustomerUpdated:
		outcome = d.handlers.CustomerUpdated(ctx, e)
	case CustomerDeleted:
		outcome = d.handlers.CustomerDeleted(ctx, e)
	case SubscriptionChanged:
		outcome = d.handlers.SubscriptionChanged(ctx, e)
	case SubscriptionDeleted:
		outcome = d.handlers.SubscriptionDeleted(ctx, e)
	case UnknownEvent:
		d.log.Debugw("Ignored webhook event type", "eventType", e.Type)
		outcome = OutcomeIgnored
	default:
		d.log.Warnw("Unsupported event value", "event", ev)
		outcome = OutcomeIgnored
	}

	// тип не из фиксированного набора, метку не размножаем
	kind := "unknown"
	if outcome != OutcomeIgnored {
		kind = ev.Kind()
	}
	d.metrics.ObserveWebhookEvent(kind, string(outcome))
	return outcome
}

// DispatchRaw разбирает payload и обрабатывает событие. Ошибка разбора логируется.
func (d *Dispatcher) DispatchRaw(ctx context.Context, payload []byte) Outcome {
	ev, err := ParseEvent(payload)
	if err != nil {
		d.log.Errorw("Failed to parse webhook event", "error", err, "size", len(payload))
		d.metrics.IncParseFailure()
		return OutcomeFailed
	}
	return d.Dispatch(ctx, ev)
}
