package webhook

import (
	"encoding/json"
	"fmt"
)

// Типы событий Stripe, которые сверяются с локальным хранилищем
const (
	KindCustomerCreated     = "customer.created"
	KindCustomerUpdated     = "customer.updated"
	KindCustomerDeleted     = "customer.deleted"
	KindSubscriptionCreated = "customer.subscription.created"
	KindSubscriptionUpdated = "customer.subscription.updated"
	KindSubscriptionDeleted = "customer.subscription.deleted"
)

// Event закрытое множество событий. Реализации есть только в этом пакете.
type Event interface {
	Kind() string
	sealed()
}

// CustomerCreated клиент создан в Stripe
type CustomerCreated struct {
	CustomerID string
	Email      string
	Name       string
}

// CustomerUpdated клиент изменен. nil-поля отсутствовали в payload.
type CustomerUpdated struct {
	CustomerID string
	Email      *string
	Name       *string
}

// CustomerDeleted клиент удален
type CustomerDeleted struct {
	CustomerID string
}

// PlanRef ссылка на тариф подписки
type PlanRef struct {
	PriceID   string
	ProductID string
	Amount    int64
}

// ProductSnapshot снимок продукта, встроенный в payload
type ProductSnapshot struct {
	Name string `json:"name"`
}

// SubscriptionChanged подписка создана или изменена. Обе операции сверяются одинаково.
type SubscriptionChanged struct {
	EventType      string
	SubscriptionID string
	CustomerID     string
	// Plan nil, если в payload нет ни plan, ни items.data[0].price
	Plan *PlanRef
	// Snapshot nil, если payload не содержит __testProduct
	Snapshot *ProductSnapshot
}

// SubscriptionDeleted подписка завершена
type SubscriptionDeleted struct {
	SubscriptionID string
	CustomerID     string
}

// UnknownEvent событие, которое не сверяется
type UnknownEvent struct {
	Type string
}

func (CustomerCreated) Kind() string     { return KindCustomerCreated }
func (CustomerUpdated) Kind() string     { return KindCustomerUpdated }
func (CustomerDeleted) Kind() string     { return KindCustomerDeleted }
func (SubscriptionDeleted) Kind() string { return KindSubscriptionDeleted }
func (e UnknownEvent) Kind() string      { return e.Type }

// Kind возвращает исходный тип: created или updated
func (e SubscriptionChanged) Kind() string {
	if e.EventType == "" {
		return KindSubscriptionUpdated
	}
	return e.EventType
}

func (CustomerCreated) sealed()     {}
func (CustomerUpdated) sealed()     {}
func (CustomerDeleted) sealed()     {}
func (SubscriptionChanged) sealed() {}
func (SubscriptionDeleted) sealed() {}
func (UnknownEvent) sealed()        {}

// envelope { "type": "...", "data": { "object": {...} } }
type envelope struct {
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type customerObject struct {
	ID    string  `json:"id"`
	Email *string `json:"email"`
	Name  *string `json:"name"`
}

type planObject struct {
	ID      string `json:"id"`
	Product string `json:"product"`
	Amount  *int64 `json:"amount"`
}

type priceObject struct {
	ID         string `json:"id"`
	Product    string `json:"product"`
	UnitAmount *int64 `json:"unit_amount"`
}

type subscriptionObject struct {
	ID       string      `json:"id"`
	Customer string      `json:"customer"`
	Plan     *planObject `json:"plan"`
	Items    struct {
		Data []struct {
			Price *priceObject `json:"price"`
		} `json:"data"`
	} `json:"items"`
	TestProduct *ProductSnapshot `json:"__testProduct"`
}

func (o subscriptionObject) planRef() *PlanRef {
	if o.Plan != nil && o.Plan.ID != "" && o.Plan.Product != "" && o.Plan.Amount != nil {
		return &PlanRef{PriceID: o.Plan.ID, ProductID: o.Plan.Product, Amount: *o.Plan.Amount}
	}
	if len(o.Items.Data) > 0 {
		p := o.Items.Data[0].Price
		if p != nil && p.ID != "" && p.Product != "" && p.UnitAmount != nil {
			return &PlanRef{PriceID: p.ID, ProductID: p.Product, Amount: *p.UnitAmount}
		}
	}
	return nil
}

// ParseEvent разбирает конверт события. Неизвестный type не ошибка, а UnknownEvent.
func ParseEvent(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to decode event envelope: %w", err)
	}

	switch env.Type {
	case KindCustomerCreated, KindCustomerUpdated, KindCustomerDeleted:
		var obj customerObject
		if err := decodeObject(env, &obj); err != nil {
			return nil, err
		}
		switch env.Type {
		case KindCustomerCreated:
			ev := CustomerCreated{CustomerID: obj.ID}
			if obj.Email != nil {
				ev.Email = *obj.Email
			}
			if obj.Name != nil {
				ev.Name = *obj.Name
			}
			return ev, nil
		case KindCustomerUpdated:
			return CustomerUpdated{CustomerID: obj.ID, Email: obj.Email, Name: obj.Name}, nil
		default:
			return CustomerDeleted{CustomerID: obj.ID}, nil
		}

	case KindSubscriptionCreated, KindSubscriptionUpdated, KindSubscriptionDeleted:
		var obj subscriptionObject
		if err := decodeObject(env, &obj); err != nil {
			return nil, err
		}
		if env.Type == KindSubscriptionDeleted {
			return SubscriptionDeleted{SubscriptionID: obj.ID, CustomerID: obj.Customer}, nil
		}
		return SubscriptionChanged{
			EventType:      env.Type,
			SubscriptionID: obj.ID,
			CustomerID:     obj.Customer,
			Plan:           obj.planRef(),
			Snapshot:       obj.TestProduct,
		}, nil

	default:
		return UnknownEvent{Type: env.Type}, nil
	}
}

func decodeObject(env envelope, dst any) error {
	if len(env.Data.Object) == 0 || string(env.Data.Object) == "null" {
		return fmt.Errorf("event %s has no data.object", env.Type)
	}
	if err := json.Unmarshal(env.Data.Object, dst); err != nil {
		return fmt.Errorf("failed to decode %s object: %w", env.Type, err)
	}
	return nil
}
