package webhook

import (
	"context"
	"errors"
	"fmt"

	stripego "github.com/stripe/stripe-go/v78"
)

// Источники названия продукта
const (
	ProductSourceStripe   = "stripe"
	ProductSourceSnapshot = "snapshot"
)

// ErrNoProductSnapshot в payload нет снимка продукта
var ErrNoProductSnapshot = errors.New("event carries no product snapshot")

// ProductResolver определяет название тарифа для события подписки
type ProductResolver interface {
	ResolveProductName(ctx context.Context, ev SubscriptionChanged) (string, error)
}

// ProductGetter часть клиента Stripe, нужная для получения продукта
type ProductGetter interface {
	GetProduct(ctx context.Context, productID string) (*stripego.Product, error)
}

// StripeProductResolver запрашивает продукт в Stripe
type StripeProductResolver struct {
	products ProductGetter
}

// NewStripeProductResolver создает резолвер поверх Stripe
func NewStripeProductResolver(products ProductGetter) *StripeProductResolver {
	return &StripeProductResolver{products: products}
}

// ResolveProductName возвращает имя продукта из Stripe
func (r *StripeProductResolver) ResolveProductName(ctx context.Context, ev SubscriptionChanged) (string, error) {
	if ev.Plan == nil || ev.Plan.ProductID == "" {
		return "", errors.New("subscription event has no product id")
	}
	product, err := r.products.GetProduct(ctx, ev.Plan.ProductID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve product %s: %w", ev.Plan.ProductID, err)
	}
	return product.Name, nil
}

// SnapshotProductResolver читает снимок продукта из payload
type SnapshotProductResolver struct{}

// ResolveProductName возвращает имя из снимка или ErrNoProductSnapshot
func (SnapshotProductResolver) ResolveProductName(_ context.Context, ev SubscriptionChanged) (string, error) {
	if ev.Snapshot == nil {
		return "", ErrNoProductSnapshot
	}
	return ev.Snapshot.Name, nil
}

// NewProductResolver выбирает резолвер по значению webhook.productSource
func NewProductResolver(source string, products ProductGetter) (ProductResolver, error) {
	switch source {
	case "", ProductSourceStripe:
		if products == nil {
			return nil, errors.New("stripe product source requires a client")
		}
		return NewStripeProductResolver(products), nil
	case ProductSourceSnapshot:
		return SnapshotProductResolver{}, nil
	default:
		return nil, fmt.Errorf("unknown product source %q", source)
	}
}
