package service

import (
	"errors"

	"github.com/Dhoini/billing-sync/internal/domain"
	stripego "github.com/stripe/stripe-go/v78"
)

const processorName = "stripe"

func upstream(operation string, err error) error {
	return domain.NewUpstreamError(processorName, operation, err)
}

func storeFailure(operation string, err error) error {
	return domain.NewUpstreamError("record store", operation, err)
}

// failureMessage текст ошибки для ответа клиенту без внутренних подробностей
func failureMessage(err error) string {
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	return "payment failed"
}
