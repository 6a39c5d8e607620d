package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/billing-sync/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss ключ отсутствует в кеше
var ErrCacheMiss = errors.New("cache miss")

// Cache минимальный набор операций кеша, нужный CachedRecordStore
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisOptions параметры подключения к Redis
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisCache реализует Cache поверх Redis
type RedisCache struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisCache создает новый кеш и проверяет соединение с Redis
func NewRedisCache(ctx context.Context, opts RedisOptions, log *logger.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err, "addr", opts.Addr)
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", opts.Addr)
	return &RedisCache{client: client, log: log}, nil
}

// Get возвращает значение ключа или ErrCacheMiss
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get %s from cache: %w", key, err)
	}
	return data, nil
}

// Set сохраняет значение с TTL
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in cache: %w", key, err)
	}
	return nil
}

// Del удаляет ключи
func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys from cache: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (c *RedisCache) Close() error {
	return c.client.Close()
}
