package domain

import "time"

// PlanState группа полей тарифа. Поля всегда записываются и очищаются вместе,
// поэтому в Record она хранится одним указателем: nil означает "нет подписки".
type PlanState struct {
	SubscriptionID string `json:"subscriptionId"`
	PriceID        string `json:"priceId"`
	ProductID      string `json:"productId"`
	PlanName       string `json:"planName"`
	PlanPrice      int64  `json:"planPrice"` // в центах
}

// Record локальная запись о подписке клиента.
type Record struct {
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	CustomerID string     `json:"customerId"`
	Plan       *PlanState `json:"plan,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// HasPlan сообщает, есть ли у записи активная (по локальным данным) группа тарифа.
func (r *Record) HasPlan() bool {
	return r != nil && r.Plan != nil
}

// Clone возвращает глубокую копию записи.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Plan != nil {
		plan := *r.Plan
		c.Plan = &plan
	}
	return &c
}

// RecordFilter выбирает запись по email или customerId.
// Если заданы оба поля, запись должна совпасть по обоим.
type RecordFilter struct {
	Email      string
	CustomerID string
}

// IsEmpty сообщает, что фильтр ничего не выбирает.
func (f RecordFilter) IsEmpty() bool {
	return f.Email == "" && f.CustomerID == ""
}

// Matches проверяет запись на соответствие фильтру.
func (f RecordFilter) Matches(r *Record) bool {
	if r == nil || f.IsEmpty() {
		return false
	}
	if f.Email != "" && r.Email != f.Email {
		return false
	}
	if f.CustomerID != "" && r.CustomerID != f.CustomerID {
		return false
	}
	return true
}

// ByEmail фильтр по email.
func ByEmail(email string) RecordFilter {
	return RecordFilter{Email: email}
}

// ByCustomerID фильтр по идентификатору клиента в Stripe.
func ByCustomerID(customerID string) RecordFilter {
	return RecordFilter{CustomerID: customerID}
}

// PlanOp операция над группой тарифа.
type PlanOp int

const (
	// PlanKeep не трогать группу тарифа
	PlanKeep PlanOp = iota
	// PlanSet записать группу целиком
	PlanSet
	// PlanClear очистить группу целиком
	PlanClear
)

// PlanChange изменение группы тарифа в рамках одного обновления.
type PlanChange struct {
	Op    PlanOp
	State PlanState
}

// SetPlan возвращает изменение, записывающее всю группу.
func SetPlan(state PlanState) PlanChange {
	return PlanChange{Op: PlanSet, State: state}
}

// ClearPlan возвращает изменение, очищающее всю группу.
func ClearPlan() PlanChange {
	return PlanChange{Op: PlanClear}
}

// RecordUpdate набор полей для атомарного обновления записи.
// nil-поля не изменяются.
type RecordUpdate struct {
	Email *string
	Name  *string
	Plan  PlanChange
}

// IsEmpty сообщает, что обновление ничего не меняет.
func (u RecordUpdate) IsEmpty() bool {
	return u.Email == nil && u.Name == nil && u.Plan.Op == PlanKeep
}

// Apply применяет обновление к записи на месте.
func (u RecordUpdate) Apply(r *Record) {
	if u.Email != nil {
		r.Email = *u.Email
	}
	if u.Name != nil {
		r.Name = *u.Name
	}
	switch u.Plan.Op {
	case PlanSet:
		plan := u.Plan.State
		r.Plan = &plan
	case PlanClear:
		r.Plan = nil
	}
}
