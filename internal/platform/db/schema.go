package db

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'user')),
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		features TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_unique_idx ON users (LOWER(email))`,
	`CREATE TABLE IF NOT EXISTS issues (
		id BIGSERIAL PRIMARY KEY,
		title VARCHAR(50) NOT NULL,
		description VARCHAR(225) NOT NULL,
		status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'in_progress', 'resolved', 'closed')),
		priority TEXT NOT NULL DEFAULT 'medium' CHECK (priority IN ('low', 'medium', 'high', 'critical')),
		created_by BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		attachment TEXT,
		resolved_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT issues_resolved_at_matches_status CHECK (
			(status IN ('resolved', 'closed')) = (resolved_at IS NOT NULL)
		)
	)`,
	`CREATE INDEX IF NOT EXISTS issues_created_by_idx ON issues (created_by)`,
	`CREATE INDEX IF NOT EXISTS issues_status_idx ON issues (status)`,
	`CREATE INDEX IF NOT EXISTS issues_created_at_idx ON issues (created_at DESC)`,
}

// Migrate applies the idempotent schema bootstrap.
func Migrate(ctx context.Context, q Querier) error {
	for _, stmt := range schema {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("platform/db: apply schema: %w", err)
		}
	}
	return nil
}
