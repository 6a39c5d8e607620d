package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v78"
)

// testCardToken тестовый токен карты Stripe
const testCardToken = "tok_visa"

// CreateCustomer создает нового клиента в Stripe.
func (sc *stripeClient) CreateCustomer(ctx context.Context, name, email string) (cus *stripe.Customer, err error) {
	defer sc.observe("CreateCustomer", time.Now(), &err)

	params := &stripe.CustomerParams{
		Name:  stripe.String(name),
		Email: stripe.String(email),
	}
	params.Context = ctx

	cus, err = sc.api.Customers.New(params)
	if err != nil {
		logStripeError(sc.log, "CreateCustomer", err)
		return nil, fmt.Errorf("stripe: failed to create customer: %w", err)
	}

	sc.log.Infow("Stripe customer created", "stripeCustomerID", cus.ID, "email", email)
	return cus, nil
}

// UpdateCustomerDefaultPaymentMethod назначает метод оплаты счетов по умолчанию.
func (sc *stripeClient) UpdateCustomerDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (cus *stripe.Customer, err error) {
	defer sc.observe("UpdateCustomerDefaultPaymentMethod", time.Now(), &err)

	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	params.Context = ctx

	cus, err = sc.api.Customers.Update(customerID, params)
	if err != nil {
		logStripeError(sc.log, "UpdateCustomerDefaultPaymentMethod", err)
		return nil, fmt.Errorf("stripe: failed to update customer %s: %w", customerID, err)
	}
	return cus, nil
}

// GetCustomer получает клиента по ID.
func (sc *stripeClient) GetCustomer(ctx context.Context, customerID string) (cus *stripe.Customer, err error) {
	defer sc.observe("GetCustomer", time.Now(), &err)

	err = sc.withRetry(ctx, "GetCustomer", func() error {
		params := &stripe.CustomerParams{}
		params.Context = ctx
		var callErr error
		cus, callErr = sc.api.Customers.Get(customerID, params)
		return callErr
	})
	if err != nil {
		logStripeError(sc.log, "GetCustomer", err)
		return nil, fmt.Errorf("stripe: failed to get customer %s: %w", customerID, err)
	}
	return cus, nil
}

// AttachTestPaymentMethod создает карту из тестового токена и делает ее методом оплаты по умолчанию.
func (sc *stripeClient) AttachTestPaymentMethod(ctx context.Context, customerID string) (pm *stripe.PaymentMethod, err error) {
	defer sc.observe("AttachTestPaymentMethod", time.Now(), &err)

	createParams := &stripe.PaymentMethodParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCardParams{
			Token: stripe.String(testCardToken),
		},
	}
	createParams.Context = ctx

	pm, err = sc.api.PaymentMethods.New(createParams)
	if err != nil {
		logStripeError(sc.log, "CreatePaymentMethod", err)
		return nil, fmt.Errorf("stripe: failed to create payment method: %w", err)
	}

	attachParams := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	}
	attachParams.Context = ctx

	pm, err = sc.api.PaymentMethods.Attach(pm.ID, attachParams)
	if err != nil {
		logStripeError(sc.log, "AttachPaymentMethod", err)
		return nil, fmt.Errorf("stripe: failed to attach payment method to %s: %w", customerID, err)
	}

	if _, err = sc.UpdateCustomerDefaultPaymentMethod(ctx, customerID, pm.ID); err != nil {
		return nil, err
	}

	sc.log.Infow("Test payment method attached", "stripeCustomerID", customerID, "paymentMethodID", pm.ID)
	return pm, nil
}
