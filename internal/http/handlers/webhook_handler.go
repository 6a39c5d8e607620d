package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Dhoini/billing-sync/internal/webhook"
	"github.com/Dhoini/billing-sync/pkg/logger"
)

const (
	// Ограничение на размер тела запроса вебхука (Stripe рекомендует ~65kb)
	maxRequestBodySize = int64(65536)

	signatureHeader = "Stripe-Signature"
)

// WebhookMetrics счетчики отклоненных и не поставленных в очередь доставок
type WebhookMetrics interface {
	IncRejected()
	IncEnqueueFailure(reason string)
}

// WebhookHandler принимает вебхуки Stripe: проверяет, ставит в очередь и сразу отвечает 200.
type WebhookHandler struct {
	verifier webhook.Verifier
	queue    webhook.Queue
	metrics  WebhookMetrics
	log      *logger.Logger
}

// NewWebhookHandler создает новый экземпляр WebhookHandler. metrics может быть nil.
func NewWebhookHandler(verifier webhook.Verifier, queue webhook.Queue, metrics WebhookMetrics, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier: verifier,
		queue:    queue,
		metrics:  metrics,
		log:      log,
	}
}

// HandleStripeWebhook отвечает 200 с пустым телом на любую доставку.
// Отказ проверки или очереди только логируется и учитывается в метриках.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	defer c.Status(http.StatusOK)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodySize)
	payload, err := io.ReadAll(c.Request.Body)
	//goland:noinspection GoUnhandledErrorResult
	defer c.Request.Body.Close()
	if err != nil {
		h.log.Errorw("Failed to read webhook request body", "error", err)
		h.rejected()
		return
	}

	if err := h.verifier.Verify(payload, c.GetHeader(signatureHeader)); err != nil {
		h.log.Warnw("Webhook verification failed", "error", err)
		h.rejected()
		return
	}

	if err := h.queue.Enqueue(c.Request.Context(), payload); err != nil {
		reason := "error"
		switch {
		case errors.Is(err, webhook.ErrQueueFull):
			reason = "full"
		case errors.Is(err, webhook.ErrQueueClosed):
			reason = "closed"
		}
		h.log.Errorw("Failed to enqueue webhook event", "error", err, "reason", reason)
		if h.metrics != nil {
			h.metrics.IncEnqueueFailure(reason)
		}
		return
	}

	h.log.Debugw("Webhook event accepted", "bytes", len(payload))
}

func (h *WebhookHandler) rejected() {
	if h.metrics != nil {
		h.metrics.IncRejected()
	}
}
