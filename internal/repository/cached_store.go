package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Dhoini/billing-sync/internal/domain"
	"github.com/Dhoini/billing-sync/pkg/logger"
)

const (
	recordKeyPrefix = "record:email:"

	// DefaultCacheTTL TTL записи в кеше по умолчанию
	DefaultCacheTTL = 15 * time.Minute
)

// CachedRecordStore кеширует FindOne по email поверх другого RecordStore.
// Ошибки кеша логируются и никогда не ломают операцию.
type CachedRecordStore struct {
	inner RecordStore
	cache Cache
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachedRecordStore создает декоратор с кешем
func NewCachedRecordStore(inner RecordStore, cache Cache, ttl time.Duration, log *logger.Logger) *CachedRecordStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedRecordStore{inner: inner, cache: cache, ttl: ttl, log: log}
}

func recordKey(email string) string {
	return recordKeyPrefix + email
}

// FindOne читает из кеша, если фильтр только по email
func (s *CachedRecordStore) FindOne(ctx context.Context, filter domain.RecordFilter) (*domain.Record, error) {
	if filter.Email == "" || filter.CustomerID != "" {
		return s.inner.FindOne(ctx, filter)
	}

	key := recordKey(filter.Email)
	data, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var rec domain.Record
		uerr := json.Unmarshal(data, &rec)
		if uerr == nil {
			s.log.Debugw("Record retrieved from cache", "email", filter.Email)
			return &rec, nil
		}
		s.log.Warnw("Failed to unmarshal cached record", "error", uerr, "email", filter.Email)
	case errors.Is(err, ErrCacheMiss):
	default:
		s.log.Warnw("Error getting record from cache", "error", err, "email", filter.Email)
	}

	rec, err := s.inner.FindOne(ctx, filter)
	if err != nil || rec == nil {
		return rec, err
	}

	if data, merr := json.Marshal(rec); merr == nil {
		if serr := s.cache.Set(ctx, key, data, s.ttl); serr != nil {
			s.log.Warnw("Failed to cache record", "error", serr, "email", filter.Email)
		}
	}
	return rec, nil
}

// Create сохраняет запись и сбрасывает ключ ее email
func (s *CachedRecordStore) Create(ctx context.Context, rec *domain.Record) error {
	if err := s.inner.Create(ctx, rec); err != nil {
		return err
	}
	s.invalidate(ctx, rec.Email)
	return nil
}

// UpdateOne обновляет запись и сбрасывает старый и новый email
func (s *CachedRecordStore) UpdateOne(ctx context.Context, filter domain.RecordFilter, update domain.RecordUpdate) (bool, error) {
	emails := s.affectedEmails(ctx, filter)
	if update.Email != nil {
		emails = append(emails, *update.Email)
	}

	ok, err := s.inner.UpdateOne(ctx, filter, update)
	if err != nil {
		return ok, err
	}
	if ok {
		s.invalidate(ctx, emails...)
	}
	return ok, nil
}

// DeleteOne удаляет запись и ее ключ в кеше
func (s *CachedRecordStore) DeleteOne(ctx context.Context, filter domain.RecordFilter) (bool, error) {
	emails := s.affectedEmails(ctx, filter)

	ok, err := s.inner.DeleteOne(ctx, filter)
	if err != nil {
		return ok, err
	}
	if ok {
		s.invalidate(ctx, emails...)
	}
	return ok, nil
}

// affectedEmails определяет email записи, которую затронет запись по фильтру
func (s *CachedRecordStore) affectedEmails(ctx context.Context, filter domain.RecordFilter) []string {
	if filter.Email != "" {
		return []string{filter.Email}
	}
	rec, err := s.inner.FindOne(ctx, filter)
	if err != nil {
		s.log.Warnw("Failed to resolve record for cache invalidation", "error", err, "customerID", filter.CustomerID)
		return nil
	}
	if rec == nil {
		return nil
	}
	return []string{rec.Email}
}

func (s *CachedRecordStore) invalidate(ctx context.Context, emails ...string) {
	if len(emails) == 0 {
		return
	}
	keys := make([]string, 0, len(emails))
	for _, e := range emails {
		if e != "" {
			keys = append(keys, recordKey(e))
		}
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.Warnw("Failed to invalidate cached records", "error", err, "keys", keys)
	}
}
