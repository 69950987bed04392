package postgres

import (
	"context"
	"fmt"
	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		category   TEXT NOT NULL,
		price      NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		stock      INTEGER NOT NULL CHECK (stock >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS carts (
		user_id    TEXT PRIMARY KEY,
		items      JSONB NOT NULL DEFAULT '[]',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL,
		total_amount   NUMERIC(12,2) NOT NULL,
		address        JSONB NOT NULL,
		payment_method TEXT NOT NULL,
		status         TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_pending_online ON orders(created_at)
		WHERE status = 'Pending' AND payment_method = 'Online'`,

	`CREATE TABLE IF NOT EXISTS order_items (
		order_id   TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		line       INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		category   TEXT NOT NULL,
		size       TEXT NOT NULL,
		quantity   INTEGER NOT NULL CHECK (quantity > 0),
		price      NUMERIC(12,2) NOT NULL,
		PRIMARY KEY (order_id, line)
	)`,

	`CREATE TABLE IF NOT EXISTS payments (
		id                 TEXT PRIMARY KEY,
		order_id           TEXT NOT NULL UNIQUE REFERENCES orders(id) ON DELETE CASCADE,
		gateway_order_id   TEXT NOT NULL UNIQUE,
		gateway_payment_id TEXT NOT NULL DEFAULT '',
		signature          TEXT NOT NULL DEFAULT '',
		amount             NUMERIC(12,2) NOT NULL,
		currency           TEXT NOT NULL,
		status             TEXT NOT NULL,
		method_detail      TEXT NOT NULL DEFAULT '',
		refund_id          TEXT NOT NULL DEFAULT '',
		refund_status      TEXT NOT NULL DEFAULT '',
		refund_amount      NUMERIC(12,2),
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_gateway_payment_id ON payments(gateway_payment_id)
		WHERE gateway_payment_id <> ''`,

	`CREATE TABLE IF NOT EXISTS outbox (
		id             BIGSERIAL PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		type           TEXT NOT NULL,
		payload        JSONB NOT NULL,
		headers        JSONB NOT NULL DEFAULT '{}',
		traceparent    TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL DEFAULT 'pending',
		relay_id       TEXT,
		lease_until    TIMESTAMPTZ,
		retry_count    INTEGER NOT NULL DEFAULT 0,
		last_error     TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox(status, id)`,
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
