package repository

import (
	"context"

	"github.com/smallbiznis/valora-connect/internal/domain/connect"
)

// TransactionRepository persists in-flight OAuth launches.
type TransactionRepository interface {
	Create(ctx context.Context, tx connect.OAuthTransaction) (connect.OAuthTransaction, error)
	// ClaimPending atomically claims the transaction for the given state.
	// It returns (nil, nil) when the state is unknown, already claimed, or
	// no longer pending; exactly one caller ever wins a given state.
	ClaimPending(ctx context.Context, state string) (*connect.OAuthTransaction, error)
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64) error
}

// MergeInput carries everything a successful callback commits.
type MergeInput struct {
	OrgID           int64
	ProviderID      string
	UserID          int64
	Owner           connect.TokenOwner
	TokenPayload    []byte
	Scopes          []string
	ExternalAccount map[string]any
}

// ScopeSnapshot is a point-in-time read of an org's active connections and
// the union of token scopes usable by one user. Audit computes over this
// snapshot only.
type ScopeSnapshot struct {
	ActiveProviders map[string]struct{}
	Scopes          map[string]struct{}
}

// HasProvider reports whether the org holds an active connection for the
// provider.
func (s *ScopeSnapshot) HasProvider(providerID string) bool {
	_, ok := s.ActiveProviders[providerID]
	return ok
}

// HasScopes reports whether every required scope is present in the snapshot.
func (s *ScopeSnapshot) HasScopes(required []string) bool {
	for _, scope := range required {
		if _, ok := s.Scopes[scope]; !ok {
			return false
		}
	}
	return true
}

// ConnectionRepository persists provider connections and their tokens.
type ConnectionRepository interface {
	// Merge upserts the connection and the caller's token in one database
	// transaction: it reuses the active connection for (org, provider) when
	// one exists, creates it otherwise, and upserts the token row for the
	// owner. Tokens held by other owners on the connection are untouched.
	Merge(ctx context.Context, in MergeInput) (connect.Connection, error)
	// Deactivate flips the active connection to inactive. Returns
	// connect.ErrConnectionNotFound when no active connection exists.
	Deactivate(ctx context.Context, orgID int64, providerID string) error
	ScopeSnapshot(ctx context.Context, orgID, userID int64) (*ScopeSnapshot, error)
}
