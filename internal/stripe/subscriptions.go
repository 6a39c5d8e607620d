package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v78"
)

// CreateSubscription создает подписку в Stripe для указанного клиента и цены.
func (sc *stripeClient) CreateSubscription(ctx context.Context, customerID, priceID string) (sub *stripe.Subscription, err error) {
	defer sc.observe("CreateSubscription", time.Now(), &err)

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{
				Price: stripe.String(priceID),
			},
		},
	}
	params.Context = ctx
	params.AddExpand("latest_invoice.payment_intent")

	sub, err = sc.api.Subscriptions.New(params)
	if err != nil {
		logStripeError(sc.log, "CreateSubscription", err)
		return nil, fmt.Errorf("stripe: failed to create subscription: %w", err)
	}

	sc.log.Infow("Stripe subscription created", "stripeSubscriptionID", sub.ID, "status", string(sub.Status))
	return sub, nil
}

// GetActiveSubscription возвращает первую активную подписку клиента или nil.
func (sc *stripeClient) GetActiveSubscription(ctx context.Context, customerID string) (sub *stripe.Subscription, err error) {
	defer sc.observe("GetActiveSubscription", time.Now(), &err)

	err = sc.withRetry(ctx, "GetActiveSubscription", func() error {
		params := &stripe.SubscriptionListParams{
			Customer: stripe.String(customerID),
			Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
		}
		params.Context = ctx
		params.Limit = stripe.Int64(1)
		params.Single = true

		sub = nil
		iter := sc.api.Subscriptions.List(params)
		if iter.Next() {
			sub = iter.Subscription()
		}
		return iter.Err()
	})
	if err != nil {
		logStripeError(sc.log, "GetActiveSubscription", err)
		return nil, fmt.Errorf("stripe: failed to list subscriptions for %s: %w", customerID, err)
	}
	return sub, nil
}

// GetSubscription получает подписку по ID.
func (sc *stripeClient) GetSubscription(ctx context.Context, subscriptionID string) (sub *stripe.Subscription, err error) {
	defer sc.observe("GetSubscription", time.Now(), &err)

	err = sc.withRetry(ctx, "GetSubscription", func() error {
		params := &stripe.SubscriptionParams{}
		params.Context = ctx
		var callErr error
		sub, callErr = sc.api.Subscriptions.Get(subscriptionID, params)
		return callErr
	})
	if err != nil {
		logStripeError(sc.log, "GetSubscription", err)
		return nil, fmt.Errorf("stripe: failed to get subscription %s: %w", subscriptionID, err)
	}
	return sub, nil
}
