package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v78"
)

// ListPrices возвращает активные цены указанного типа
func (sc *stripeClient) ListPrices(ctx context.Context, priceType string) (prices []*stripe.Price, err error) {
	defer sc.observe("ListPrices", time.Now(), &err)

	err = sc.withRetry(ctx, "ListPrices", func() error {
		params := &stripe.PriceListParams{
			Type: stripe.String(priceType),
		}
		params.Context = ctx

		prices = prices[:0]
		iter := sc.api.Prices.List(params)
		for iter.Next() {
			prices = append(prices, iter.Price())
		}
		return iter.Err()
	})
	if err != nil {
		logStripeError(sc.log, "ListPrices", err)
		return nil, fmt.Errorf("stripe: failed to list %s prices: %w", priceType, err)
	}
	return prices, nil
}

// GetProduct получает продукт по ID.
func (sc *stripeClient) GetProduct(ctx context.Context, productID string) (product *stripe.Product, err error) {
	defer sc.observe("GetProduct", time.Now(), &err)

	err = sc.withRetry(ctx, "GetProduct", func() error {
		params := &stripe.ProductParams{}
		params.Context = ctx
		var callErr error
		product, callErr = sc.api.Products.Get(productID, params)
		return callErr
	})
	if err != nil {
		logStripeError(sc.log, "GetProduct", err)
		return nil, fmt.Errorf("stripe: failed to get product %s: %w", productID, err)
	}
	return product, nil
}
