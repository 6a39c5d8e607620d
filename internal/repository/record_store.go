package repository

import (
	"context"

	"github.com/Dhoini/billing-sync/internal/domain"
)

// RecordStore определяет методы для работы с хранилищем записей о подписках.
// Отсутствие совпадений никогда не является ошибкой.
type RecordStore interface {
	// FindOne возвращает первую запись, подходящую под фильтр, или (nil, nil).
	FindOne(ctx context.Context, filter domain.RecordFilter) (*domain.Record, error)

	// Create сохраняет новую запись. Нарушение уникальности email/customerId
	// возвращается как ошибка, удовлетворяющая errors.Is(err, domain.ErrDuplicate).
	Create(ctx context.Context, rec *domain.Record) error

	// UpdateOne атомарно применяет обновление ко всем полям одной записи.
	// Возвращает false, если запись не найдена.
	UpdateOne(ctx context.Context, filter domain.RecordFilter, update domain.RecordUpdate) (bool, error)

	// DeleteOne удаляет одну запись. Возвращает false, если запись не найдена.
	DeleteOne(ctx context.Context, filter domain.RecordFilter) (bool, error)
}

var (
	_ RecordStore = (*MemoryRecordStore)(nil)
	_ RecordStore = (*CachedRecordStore)(nil)
)
