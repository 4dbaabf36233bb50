package db

import (
	"context"
	"fmt"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// Schema is the billing schema. The unique constraints are what make
// sync upserts idempotent and redemptions single-use per user.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id    TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		role  TEXT NOT NULL DEFAULT 'user'
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_key ON users (lower(email))`,

	`CREATE TABLE IF NOT EXISTS subscriptions (
		id                       UUID PRIMARY KEY,
		user_id                  TEXT,
		external_customer_id     TEXT NOT NULL DEFAULT '',
		external_subscription_id TEXT NOT NULL,
		plan_type                TEXT NOT NULL,
		grant_source             TEXT NOT NULL,
		status                   TEXT NOT NULL,
		amount                   BIGINT NOT NULL DEFAULT 0,
		currency                 TEXT NOT NULL DEFAULT '',
		current_period_start     TIMESTAMPTZ,
		current_period_end       TIMESTAMPTZ,
		cancel_at_period_end     BOOLEAN NOT NULL DEFAULT FALSE,
		canceled_at              TIMESTAMPTZ,
		customer_email           TEXT NOT NULL DEFAULT '',
		created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT subscriptions_external_subscription_id_key UNIQUE (external_subscription_id)
	)`,
	`CREATE INDEX IF NOT EXISTS subscriptions_user_id_idx ON subscriptions (user_id)`,

	`CREATE TABLE IF NOT EXISTS payments (
		id                   UUID PRIMARY KEY,
		payment_intent_id    TEXT NOT NULL,
		external_customer_id TEXT NOT NULL DEFAULT '',
		user_id              TEXT,
		amount               BIGINT NOT NULL DEFAULT 0,
		currency             TEXT NOT NULL DEFAULT '',
		status               TEXT NOT NULL,
		payment_type         TEXT NOT NULL,
		customer_email       TEXT NOT NULL DEFAULT '',
		metadata             JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT payments_payment_intent_id_key UNIQUE (payment_intent_id)
	)`,

	`CREATE TABLE IF NOT EXISTS promo_codes (
		code          TEXT PRIMARY KEY,
		active        BOOLEAN NOT NULL DEFAULT TRUE,
		plan_type     TEXT NOT NULL,
		duration_days INTEGER,
		max_uses      INTEGER NOT NULL,
		current_uses  INTEGER NOT NULL DEFAULT 0,
		expires_at    TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT promo_codes_uses_within_max CHECK (current_uses <= max_uses)
	)`,

	`CREATE TABLE IF NOT EXISTS code_redemptions (
		id          UUID PRIMARY KEY,
		code        TEXT NOT NULL REFERENCES promo_codes (code),
		user_id     TEXT NOT NULL,
		redeemed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT code_redemptions_code_user_id_key UNIQUE (code, user_id)
	)`,
}

// DBClient owns the schema and reporting queries
type DBClient struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewDBClient connects through the pgx stdlib driver
func NewDBClient(ctx context.Context, dsn string, log *logger.Logger) (*DBClient, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		log.Errorw("Failed to connect to database", "error", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DBClient{db: db, log: log}, nil
}

// NewDBClientFromDB wraps an existing handle
func NewDBClientFromDB(db *sqlx.DB, log *logger.Logger) *DBClient {
	return &DBClient{db: db, log: log}
}

// Close closes the database handle
func (dc *DBClient) Close() error {
	if err := dc.db.Close(); err != nil {
		dc.log.Errorw("Failed to close database connection", "error", err)
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// Migrate applies Schema in one transaction
func (dc *DBClient) Migrate(ctx context.Context) error {
	tx, err := dc.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range Schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			dc.log.Errorw("Migration statement failed", "index", i, "error", err)
			return fmt.Errorf("migration statement %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	dc.log.Infow("Database schema is up to date", "statements", len(Schema))
	return nil
}

const countQuery = `
	SELECT
		(SELECT count(*) FROM subscriptions)    AS subscriptions,
		(SELECT count(*) FROM payments)         AS payments,
		(SELECT count(*) FROM code_redemptions) AS redemptions
`

// CountRecords reports row counts of the billing tables
func (dc *DBClient) CountRecords(ctx context.Context) (domain.BillingCounts, error) {
	var counts domain.BillingCounts
	if err := dc.db.GetContext(ctx, &counts, countQuery); err != nil {
		return domain.BillingCounts{}, fmt.Errorf("failed to count billing records: %w", err)
	}
	return counts, nil
}
