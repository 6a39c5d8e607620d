package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/Dhoini/billing-sync/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilerMetrics_Counters(t *testing.T) {
	m := NewReconcilerMetrics(prometheus.NewRegistry())

	m.ObserveWebhookEvent("customer.created", OutcomeOK)
	m.ObserveWebhookEvent("customer.created", OutcomeOK)
	m.ObserveWebhookEvent("customer.deleted", OutcomeNoop)
	m.IncParseFailure()
	m.ObserveInvoicePayment(OutcomeFailed)
	m.SetQueueDepth(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("customer.created", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("customer.deleted", OutcomeNoop)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.parseFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invoicePayments.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueDepth))
}

func TestReconcilerMetrics_ProcessorHistogram(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewReconcilerMetrics(registry)

	m.ObserveProcessorCall("GetProduct", OutcomeOK, 20*time.Millisecond)

	count, err := testutil.GatherAndCount(registry, "billing_processor_call_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReconcilerMetrics_NilSafe(t *testing.T) {
	var m *ReconcilerMetrics
	assert.NotPanics(t, func() {
		m.ObserveWebhookEvent("x", OutcomeOK)
		m.IncParseFailure()
		m.IncRejected()
		m.SetQueueDepth(1)
		m.IncEnqueueFailure("full")
		m.ObserveInvoicePayment(OutcomeOK)
		m.ObserveProcessorCall("x", OutcomeOK, time.Second)
	})
}

func TestSystemMetrics_StartStop(t *testing.T) {
	m := NewSystemMetrics(prometheus.NewRegistry(), logger.NewNop())
	m.Start(context.Background(), 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.goroutines) > 0
	}, time.Second, 10*time.Millisecond)

	m.Stop()
	m.Stop()
}
