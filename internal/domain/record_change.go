package domain

import "time"

// ChangeKind вид изменения локальной записи
type ChangeKind string

const (
	ChangeCreated     ChangeKind = "record.created"
	ChangeUpdated     ChangeKind = "record.updated"
	ChangeDeleted     ChangeKind = "record.deleted"
	ChangePlanSet     ChangeKind = "record.plan_set"
	ChangePlanCleared ChangeKind = "record.plan_cleared"
)

// RecordChange уведомление об успешном изменении записи
type RecordChange struct {
	Kind       ChangeKind `json:"kind"`
	CustomerID string     `json:"customerId"`
	Email      string     `json:"email,omitempty"`
	Plan       *PlanState `json:"plan,omitempty"`
	// SourceEvent тип webhook-события, вызвавшего изменение
	SourceEvent string    `json:"sourceEvent"`
	OccurredAt  time.Time `json:"occurredAt"`
}
