package repository

import (
	"context"
	"sync"
	"time"

	"github.com/Dhoini/billing-sync/internal/domain"
)

// MemoryRecordStore реализация хранилища записей в памяти.
// Используется в тестах и при storage.driver=memory.
type MemoryRecordStore struct {
	mutex   sync.RWMutex
	records []*domain.Record
	now     func() time.Time
}

// NewMemoryRecordStore создает новое хранилище записей в памяти
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{now: time.Now}
}

// FindOne возвращает копию первой подходящей записи
func (s *MemoryRecordStore) FindOne(_ context.Context, filter domain.RecordFilter) (*domain.Record, error) {
	if filter.IsEmpty() {
		return nil, domain.ErrInvalidFilter
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if idx := s.indexOf(filter); idx >= 0 {
		return s.records[idx].Clone(), nil
	}
	return nil, nil
}

// Create сохраняет новую запись
func (s *MemoryRecordStore) Create(_ context.Context, rec *domain.Record) error {
	if rec == nil || rec.Email == "" {
		return domain.NewValidationError("email", "email is required")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.indexOf(domain.ByEmail(rec.Email)) >= 0 {
		return domain.NewDuplicateError("record", "email", rec.Email)
	}
	if rec.CustomerID != "" && s.indexOf(domain.ByCustomerID(rec.CustomerID)) >= 0 {
		return domain.NewDuplicateError("record", "customerId", rec.CustomerID)
	}

	now := s.now()
	stored := rec.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.records = append(s.records, stored)

	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

// UpdateOne применяет обновление под одной блокировкой
func (s *MemoryRecordStore) UpdateOne(_ context.Context, filter domain.RecordFilter, update domain.RecordUpdate) (bool, error) {
	if filter.IsEmpty() {
		return false, domain.ErrInvalidFilter
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	idx := s.indexOf(filter)
	if idx < 0 {
		return false, nil
	}

	if update.Email != nil && *update.Email != s.records[idx].Email {
		if other := s.indexOf(domain.ByEmail(*update.Email)); other >= 0 && other != idx {
			return false, domain.NewDuplicateError("record", "email", *update.Email)
		}
	}

	update.Apply(s.records[idx])
	s.records[idx].UpdatedAt = s.now()
	return true, nil
}

// DeleteOne удаляет первую подходящую запись
func (s *MemoryRecordStore) DeleteOne(_ context.Context, filter domain.RecordFilter) (bool, error) {
	if filter.IsEmpty() {
		return false, domain.ErrInvalidFilter
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	idx := s.indexOf(filter)
	if idx < 0 {
		return false, nil
	}
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	return true, nil
}

// Len возвращает количество записей
func (s *MemoryRecordStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.records)
}

func (s *MemoryRecordStore) indexOf(filter domain.RecordFilter) int {
	for i, r := range s.records {
		if filter.Matches(r) {
			return i
		}
	}
	return -1
}
