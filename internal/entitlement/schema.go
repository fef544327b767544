package entitlement

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id                    TEXT PRIMARY KEY,
	email                 TEXT NOT NULL DEFAULT '',
	plan                  TEXT NOT NULL DEFAULT 'free',
	subscription_status   TEXT NOT NULL DEFAULT 'active',
	trial_ends_at         TIMESTAMPTZ,
	subscription_end_date TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS usage_ledgers (
	id                        UUID PRIMARY KEY,
	user_id                   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	month                     CHAR(7) NOT NULL,
	recordings_count          BIGINT NOT NULL DEFAULT 0,
	recordings_total_duration DOUBLE PRECISION NOT NULL DEFAULT 0,
	recordings_limit          BIGINT NOT NULL,
	scripts_count             BIGINT NOT NULL DEFAULT 0,
	scripts_limit             BIGINT NOT NULL,
	exports_count             BIGINT NOT NULL DEFAULT 0,
	exports_limit             BIGINT NOT NULL,
	ai_minutes_used           BIGINT NOT NULL DEFAULT 0,
	ai_minutes_limit          BIGINT NOT NULL,
	bandwidth_used            DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at                TIMESTAMPTZ NOT NULL,
	updated_at                TIMESTAMPTZ NOT NULL,
	CONSTRAINT usage_ledgers_user_month_key UNIQUE (user_id, month)
)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_ledgers_month ON usage_ledgers (month)`,
}

// EnsureSchema creates the users and usage_ledgers tables if missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
