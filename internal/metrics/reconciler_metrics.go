package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Значения метки outcome
const (
	OutcomeOK     = "ok"
	OutcomeNoop   = "noop"
	OutcomeFailed = "failed"
)

// ReconcilerMetrics метрики webhook-сверки, очереди событий, оплаты счетов и вызовов Stripe.
type ReconcilerMetrics struct {
	webhookEvents   *prometheus.CounterVec
	parseFailures   prometheus.Counter
	rejected        prometheus.Counter
	queueDepth      prometheus.Gauge
	enqueueFailures *prometheus.CounterVec
	invoicePayments *prometheus.CounterVec
	processorCalls  *prometheus.HistogramVec
}

// NewReconcilerMetrics регистрирует метрики в registry
func NewReconcilerMetrics(registry *prometheus.Registry) *ReconcilerMetrics {
	factory := promauto.With(registry)

	return &ReconcilerMetrics{
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhook_events_total",
				Help: "Webhook events handled, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		parseFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "billing_webhook_parse_failures_total",
				Help: "Webhook payloads that could not be decoded",
			},
		),
		rejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "billing_webhook_rejected_total",
				Help: "Webhook deliveries rejected by signature verification",
			},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "billing_event_queue_depth",
				Help: "Events waiting in the in-memory queue",
			},
		),
		enqueueFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_event_enqueue_failures_total",
				Help: "Webhook events that could not be enqueued, by reason",
			},
			[]string{"reason"},
		),
		invoicePayments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_invoice_payments_total",
				Help: "Invoice payment attempts, by outcome",
			},
			[]string{"outcome"},
		),
		processorCalls: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_processor_call_duration_seconds",
				Help:    "Duration of payment processor API calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "outcome"},
		),
	}
}

// ObserveWebhookEvent учитывает обработанное событие
func (m *ReconcilerMetrics) ObserveWebhookEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(kind, outcome).Inc()
}

// IncParseFailure учитывает нераспознанный payload
func (m *ReconcilerMetrics) IncParseFailure() {
	if m == nil {
		return
	}
	m.parseFailures.Inc()
}

// IncRejected учитывает отклоненную доставку
func (m *ReconcilerMetrics) IncRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

// SetQueueDepth выставляет глубину очереди
func (m *ReconcilerMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// IncEnqueueFailure учитывает событие, не попавшее в очередь
func (m *ReconcilerMetrics) IncEnqueueFailure(reason string) {
	if m == nil {
		return
	}
	m.enqueueFailures.WithLabelValues(reason).Inc()
}

// ObserveInvoicePayment учитывает попытку оплаты счета
func (m *ReconcilerMetrics) ObserveInvoicePayment(outcome string) {
	if m == nil {
		return
	}
	m.invoicePayments.WithLabelValues(outcome).Inc()
}

// ObserveProcessorCall записывает длительность вызова Stripe
func (m *ReconcilerMetrics) ObserveProcessorCall(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.processorCalls.WithLabelValues(operation, outcome).Observe(d.Seconds())
}
