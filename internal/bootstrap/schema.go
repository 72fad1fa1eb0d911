package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// The partial unique index is what enforces the at-most-one-active-connection
// invariant under concurrent merges; the merge code relies on it.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS oauth_transactions (
		id               BIGINT PRIMARY KEY,
		org_id           BIGINT NOT NULL,
		user_id          BIGINT NOT NULL,
		state            TEXT NOT NULL UNIQUE,
		provider_id      TEXT NOT NULL,
		requested_scopes TEXT[] NOT NULL DEFAULT '{}',
		redirect_uri     TEXT NOT NULL,
		status           TEXT NOT NULL DEFAULT 'pending',
		claimed_at       TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		finished_at      TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS connections (
		id               BIGINT PRIMARY KEY,
		org_id           BIGINT NOT NULL,
		provider_id      TEXT NOT NULL,
		user_id          BIGINT NOT NULL,
		status           TEXT NOT NULL DEFAULT 'active',
		external_account JSONB NOT NULL DEFAULT '{}',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS connections_one_active
		ON connections (org_id, provider_id) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS tokens (
		id              BIGINT PRIMARY KEY,
		connection_id   BIGINT NOT NULL REFERENCES connections (id) ON DELETE CASCADE,
		payload         BYTEA NOT NULL,
		scopes          TEXT[] NOT NULL DEFAULT '{}',
		ownership_scope TEXT NOT NULL,
		owner_id        BIGINT NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (connection_id, ownership_scope, owner_id)
	)`,
}

// EnsureSchema creates the connection store tables on startup if missing.
func EnsureSchema(lc fx.Lifecycle, pool *pgxpool.Pool, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureSchema(ctx, pool, logger)
		},
	})
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	if logger != nil {
		logger.Info("connection store schema ensured")
	}
	return nil
}
