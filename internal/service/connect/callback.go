package connect

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	domain "github.com/smallbiznis/valora-connect/internal/domain/connect"
	"github.com/smallbiznis/valora-connect/internal/events"
	"github.com/smallbiznis/valora-connect/internal/provider"
	"github.com/smallbiznis/valora-connect/internal/repository"
)

// Callback consumes a provider redirect-back. The state token is claimed
// with a single conditional write before anything else happens, so duplicate
// deliveries of the same state see ErrInvalidState and never reach the
// exchange. On success the connection merge and token upsert run in one
// store transaction; on any failure the transaction is marked failed (best
// effort) and a failed event is published.
func (s *service) Callback(ctx context.Context, providerID string, params url.Values) (*CallbackResult, error) {
	state := strings.TrimSpace(params.Get("state"))
	if state == "" {
		return nil, domain.ErrInvalidState
	}

	tx, err := s.txRepo.ClaimPending(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("claim state: %w", err)
	}
	if tx == nil {
		return nil, domain.ErrInvalidState
	}
	if tx.ProviderID != providerID {
		s.failTransaction(ctx, tx)
		return nil, domain.ErrInvalidState
	}

	rt, err := s.registry.Provider(providerID)
	if err != nil {
		s.failTransaction(ctx, tx)
		return nil, err
	}
	flow, ok := rt.(provider.AuthCodeFlow)
	if !ok {
		s.failTransaction(ctx, tx)
		return nil, fmt.Errorf("provider %q: %w", providerID, domain.ErrCallbackUnsupported)
	}

	// Authorization codes are single-use: the exchange is bounded by a
	// timeout and never retried.
	exchangeCtx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	exchange, err := flow.ExchangeCallback(exchangeCtx, params, tx.RedirectURI)
	cancel()
	if err != nil {
		s.log().Warn("callback exchange failed",
			zap.String("provider", providerID),
			zap.Int64("org_id", tx.OrgID),
			zap.Error(err),
		)
		s.failTransaction(ctx, tx)
		return nil, fmt.Errorf("%w: %v", domain.ErrExchangeFailed, err)
	}

	conn, err := s.connRepo.Merge(ctx, repository.MergeInput{
		OrgID:           tx.OrgID,
		ProviderID:      tx.ProviderID,
		UserID:          tx.UserID,
		Owner:           domain.UserOwner(tx.UserID),
		TokenPayload:    exchange.TokenPayload,
		Scopes:          exchange.Scopes,
		ExternalAccount: exchange.ExternalAccount,
	})
	if err != nil {
		// The user holds a valid grant the store failed to record; the code
		// cannot be reused, so the flow must be restarted.
		s.log().Error("connection merge failed after successful exchange",
			zap.String("provider", providerID),
			zap.Int64("org_id", tx.OrgID),
			zap.Int64("user_id", tx.UserID),
			zap.Error(err),
		)
		s.failTransaction(ctx, tx)
		return nil, fmt.Errorf("merge connection: %w", err)
	}

	if err := s.txRepo.MarkCompleted(ctx, tx.ID); err != nil {
		s.log().Error("mark transaction completed failed", zap.Int64("transaction_id", tx.ID), zap.Error(err))
	}

	s.publish(ctx, events.ProviderConnectionCompleted{
		ProviderID:       tx.ProviderID,
		ConnectionStatus: events.StatusConnected,
		ConnectionID:     conn.ID,
		OrgID:            tx.OrgID,
		UserID:           tx.UserID,
		ExternalAccount:  exchange.ExternalAccount,
	})

	s.log().Info("oauth callback committed",
		zap.String("provider", providerID),
		zap.Int64("org_id", tx.OrgID),
		zap.Int64("connection_id", conn.ID),
	)
	return &CallbackResult{RedirectURL: s.cfg.AppReturnURL, ConnectionID: conn.ID}, nil
}

// failTransaction marks the claimed transaction failed and publishes the
// failed outcome. Both are best effort; the caller still reports the error.
func (s *service) failTransaction(ctx context.Context, tx *domain.OAuthTransaction) {
	if err := s.txRepo.MarkFailed(ctx, tx.ID); err != nil {
		s.log().Error("mark transaction failed errored", zap.Int64("transaction_id", tx.ID), zap.Error(err))
	}
	s.publish(ctx, events.ProviderConnectionCompleted{
		ProviderID:       tx.ProviderID,
		ConnectionStatus: events.StatusFailed,
		OrgID:            tx.OrgID,
		UserID:           tx.UserID,
	})
}

func (s *service) publish(ctx context.Context, event events.ProviderConnectionCompleted) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log().Warn("event publish failed",
			zap.String("provider", event.ProviderID),
			zap.String("status", event.ConnectionStatus),
			zap.Error(err),
		)
	}
}
