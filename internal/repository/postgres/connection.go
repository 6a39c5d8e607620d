package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Dhoini/billing-sync/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// PoolConfig параметры пула соединений
type PoolConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// NewConnection создает новое подключение к PostgreSQL
func NewConnection(ctx context.Context, cfg PoolConfig, log *logger.Logger) (*pgxpool.Pool, error) {
	log.Info("Connecting to PostgreSQL")

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 && cfg.MinConns <= poolConfig.MaxConns {
		poolConfig.MinConns = cfg.MinConns
	}
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Infow("Successfully connected to PostgreSQL", "maxConns", poolConfig.MaxConns, "minConns", poolConfig.MinConns)
	return pool, nil
}

// OpenDB оборачивает пул pgx в *sqlx.DB через драйвер database/sql из pgx/v5/stdlib.
// Закрытие возвращенного DB не закрывает пул.
func OpenDB(pool *pgxpool.Pool) *sqlx.DB {
	return sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx")
}
