package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/valora-connect/internal/domain/connect"
)

// Compile-time interface assertions.
var (
	_ TransactionRepository = (*PostgresTransactionRepo)(nil)
	_ ConnectionRepository  = (*PostgresConnectionRepo)(nil)
)

// PostgresTransactionRepo implements TransactionRepository on pgx.
type PostgresTransactionRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTransactionRepo(pool *pgxpool.Pool) *PostgresTransactionRepo {
	return &PostgresTransactionRepo{db: pool}
}

const insertTransactionSQL = `INSERT INTO oauth_transactions (id, org_id, user_id, state, provider_id, requested_scopes, redirect_uri, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
RETURNING created_at`

func (r *PostgresTransactionRepo) Create(ctx context.Context, tx connect.OAuthTransaction) (connect.OAuthTransaction, error) {
	err := r.db.QueryRow(ctx, insertTransactionSQL,
		tx.ID,
		tx.OrgID,
		tx.UserID,
		tx.State,
		tx.ProviderID,
		tx.RequestedScopes,
		tx.RedirectURI,
		string(tx.Status),
	).Scan(&tx.CreatedAt)
	if err != nil {
		return connect.OAuthTransaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return tx, nil
}

// The claim is a single conditional write: two callbacks racing on the same
// state cannot both see claimed_at as NULL, so exactly one wins.
const claimTransactionSQL = `UPDATE oauth_transactions
SET claimed_at = now()
WHERE state = $1 AND status = 'pending' AND claimed_at IS NULL
RETURNING id, org_id, user_id, state, provider_id, requested_scopes, redirect_uri, status, created_at, finished_at`

func (r *PostgresTransactionRepo) ClaimPending(ctx context.Context, state string) (*connect.OAuthTransaction, error) {
	var tx connect.OAuthTransaction
	var status string
	err := r.db.QueryRow(ctx, claimTransactionSQL, state).Scan(
		&tx.ID,
		&tx.OrgID,
		&tx.UserID,
		&tx.State,
		&tx.ProviderID,
		&tx.RequestedScopes,
		&tx.RedirectURI,
		&status,
		&tx.CreatedAt,
		&tx.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim transaction: %w", err)
	}
	tx.Status = connect.TransactionStatus(status)
	return &tx, nil
}

const markTransactionSQL = `UPDATE oauth_transactions
SET status = $2, finished_at = now()
WHERE id = $1 AND status = 'pending'`

func (r *PostgresTransactionRepo) MarkCompleted(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, markTransactionSQL, id, string(connect.TransactionCompleted)); err != nil {
		return fmt.Errorf("complete transaction: %w", err)
	}
	return nil
}

func (r *PostgresTransactionRepo) MarkFailed(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, markTransactionSQL, id, string(connect.TransactionFailed)); err != nil {
		return fmt.Errorf("fail transaction: %w", err)
	}
	return nil
}

// PostgresConnectionRepo implements ConnectionRepository on pgx.
type PostgresConnectionRepo struct {
	db   *pgxpool.Pool
	node *snowflake.Node
}

func NewPostgresConnectionRepo(pool *pgxpool.Pool, node *snowflake.Node) *PostgresConnectionRepo {
	return &PostgresConnectionRepo{db: pool, node: node}
}

const selectActiveForUpdateSQL = `SELECT id, user_id, created_at
FROM connections
WHERE org_id = $1 AND provider_id = $2 AND status = 'active'
FOR UPDATE`

const insertConnectionSQL = `INSERT INTO connections (id, org_id, provider_id, user_id, status, external_account, created_at, updated_at)
VALUES ($1, $2, $3, $4, 'active', $5, now(), now())
RETURNING created_at, updated_at`

const updateConnectionSQL = `UPDATE connections
SET external_account = $2, updated_at = now()
WHERE id = $1
RETURNING updated_at`

const upsertTokenSQL = `INSERT INTO tokens (id, connection_id, payload, scopes, ownership_scope, owner_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now(), now())
ON CONFLICT (connection_id, ownership_scope, owner_id)
DO UPDATE SET payload = EXCLUDED.payload, scopes = EXCLUDED.scopes, updated_at = now()`

func (r *PostgresConnectionRepo) Merge(ctx context.Context, in MergeInput) (connect.Connection, error) {
	account, err := json.Marshal(in.ExternalAccount)
	if err != nil {
		return connect.Connection{}, fmt.Errorf("encode external account: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return connect.Connection{}, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback(ctx)

	conn := connect.Connection{
		OrgID:           in.OrgID,
		ProviderID:      in.ProviderID,
		UserID:          in.UserID,
		Status:          connect.ConnectionActive,
		ExternalAccount: in.ExternalAccount,
	}

	err = tx.QueryRow(ctx, selectActiveForUpdateSQL, in.OrgID, in.ProviderID).Scan(&conn.ID, &conn.UserID, &conn.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		conn.ID = r.node.Generate().Int64()
		conn.UserID = in.UserID
		if err := tx.QueryRow(ctx, insertConnectionSQL, conn.ID, in.OrgID, in.ProviderID, in.UserID, account).Scan(&conn.CreatedAt, &conn.UpdatedAt); err != nil {
			return connect.Connection{}, fmt.Errorf("insert connection: %w", err)
		}
	case err != nil:
		return connect.Connection{}, fmt.Errorf("lookup connection: %w", err)
	default:
		if err := tx.QueryRow(ctx, updateConnectionSQL, conn.ID, account).Scan(&conn.UpdatedAt); err != nil {
			return connect.Connection{}, fmt.Errorf("update connection: %w", err)
		}
	}

	ownerID := int64(0)
	if in.Owner.Kind == connect.OwnerUser {
		ownerID = in.Owner.UserID
	}
	if _, err := tx.Exec(ctx, upsertTokenSQL,
		r.node.Generate().Int64(),
		conn.ID,
		in.TokenPayload,
		in.Scopes,
		string(in.Owner.Kind),
		ownerID,
	); err != nil {
		return connect.Connection{}, fmt.Errorf("upsert token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return connect.Connection{}, fmt.Errorf("commit merge: %w", err)
	}
	return conn, nil
}

const deactivateConnectionSQL = `UPDATE connections
SET status = 'inactive', updated_at = now()
WHERE org_id = $1 AND provider_id = $2 AND status = 'active'`

func (r *PostgresConnectionRepo) Deactivate(ctx context.Context, orgID int64, providerID string) error {
	tag, err := r.db.Exec(ctx, deactivateConnectionSQL, orgID, providerID)
	if err != nil {
		return fmt.Errorf("deactivate connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("connection %d/%s: %w", orgID, providerID, connect.ErrConnectionNotFound)
	}
	return nil
}

const scopeSnapshotSQL = `SELECT c.provider_id, t.scopes
FROM connections c
LEFT JOIN tokens t ON t.connection_id = c.id
  AND (t.ownership_scope = 'organization' OR (t.ownership_scope = 'user' AND t.owner_id = $2))
WHERE c.org_id = $1 AND c.status = 'active'`

func (r *PostgresConnectionRepo) ScopeSnapshot(ctx context.Context, orgID, userID int64) (*ScopeSnapshot, error) {
	rows, err := r.db.Query(ctx, scopeSnapshotSQL, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("scope snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := &ScopeSnapshot{
		ActiveProviders: make(map[string]struct{}),
		Scopes:          make(map[string]struct{}),
	}
	for rows.Next() {
		var providerID string
		var scopes []string
		if err := rows.Scan(&providerID, &scopes); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snapshot.ActiveProviders[providerID] = struct{}{}
		for _, scope := range scopes {
			snapshot.Scopes[scope] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return snapshot, nil
}
