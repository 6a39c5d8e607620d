package stripe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Dhoini/billing-sync/pkg/logger"
	"github.com/cenkalti/backoff/v4"
	"github.com/stripe/stripe-go/v78"
)

const (
	// stripe-go не объявляет этот тип, но он приходит в ответах API
	errorTypeAPIConnection stripe.ErrorType = "api_connection_error"

	defaultMaxRetryElapsed = 30 * time.Second
)

// isRetryableStripeError проверяет, является ли ошибка Stripe подходящей для повторной попытки
func isRetryableStripeError(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		if stripeErr.Type == errorTypeAPIConnection {
			return true
		}
		// 501 не бывает временной
		return stripeErr.HTTPStatusCode >= 500 && stripeErr.HTTPStatusCode != http.StatusNotImplemented
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsNotFound сообщает, что объект отсутствует в Stripe
func IsNotFound(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) &&
		(stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound)
}

// withRetry выполняет идемпотентное чтение с экспоненциальными повторами
func (sc *stripeClient) withRetry(ctx context.Context, operation string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = sc.retry

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !isRetryableStripeError(err) {
			return backoff.Permanent(err)
		}
		sc.log.Warnw("Retryable Stripe error occurred, retrying", "operation", operation, "attempt", attempt, "error", err)
		return err
	}, backoff.WithContext(bo, ctx))
}

// logStripeError - вспомогательная функция для логирования деталей ошибки Stripe.
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"param", stripeErr.Param,
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
		return
	}
	log.Errorw("Non-Stripe error during Stripe operation",
		"operation", operation,
		"error", err,
	)
}
