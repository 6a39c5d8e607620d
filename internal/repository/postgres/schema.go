package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS subscriptions (
	id              BIGSERIAL PRIMARY KEY,
	email           TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	customer_id     TEXT NULL,
	subscription_id TEXT NULL,
	price_id        TEXT NULL,
	product_id      TEXT NULL,
	plan_name       TEXT NULL,
	plan_price      BIGINT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT subscriptions_email_key UNIQUE (email),
	CONSTRAINT subscriptions_customer_id_key UNIQUE (customer_id),
	CONSTRAINT subscriptions_plan_group_check CHECK (
		(subscription_id IS NULL AND price_id IS NULL AND product_id IS NULL AND plan_name IS NULL AND plan_price IS NULL)
		OR
		(subscription_id IS NOT NULL AND price_id IS NOT NULL AND product_id IS NOT NULL AND plan_name IS NOT NULL AND plan_price IS NOT NULL)
	)
)`

// EnsureSchema создает таблицу subscriptions, если ее еще нет
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure subscriptions schema: %w", err)
	}
	return nil
}
