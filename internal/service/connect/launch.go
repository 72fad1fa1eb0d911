package connect

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	domain "github.com/smallbiznis/valora-connect/internal/domain/connect"
	"github.com/smallbiznis/valora-connect/internal/provider"
)

// Launch starts an OAuth handshake: it maps the requested internal ids to
// provider-native scopes, persists a pending transaction under a fresh
// single-use state token, and returns the provider authorization URL. The
// transaction row is the only write; nothing is left half-committed on error.
func (s *service) Launch(ctx context.Context, orgID, userID int64, providerID string, internalIDs []string) (string, error) {
	rt, err := s.registry.Provider(providerID)
	if err != nil {
		return "", err
	}
	flow, ok := rt.(provider.AuthCodeFlow)
	if !ok {
		return "", fmt.Errorf("provider %q: %w", providerID, domain.ErrOAuthUnsupported)
	}

	scopes, err := s.registry.MapInternalScopes(providerID, internalIDs)
	if err != nil {
		return "", err
	}

	state, err := secureRandomString(32)
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}

	redirectURI := s.redirectURIFor(providerID)
	tx := domain.OAuthTransaction{
		ID:              s.node.Generate().Int64(),
		OrgID:           orgID,
		UserID:          userID,
		State:           state,
		ProviderID:      providerID,
		RequestedScopes: scopes,
		RedirectURI:     redirectURI,
		Status:          domain.TransactionPending,
	}
	if _, err := s.txRepo.Create(ctx, tx); err != nil {
		return "", fmt.Errorf("persist transaction: %w", err)
	}

	authURL, err := flow.BuildAuthURL(ctx, scopes, state, redirectURI)
	if err != nil {
		// The pending row is never claimable without its state reaching the
		// provider, so it just ages out.
		return "", fmt.Errorf("build auth url: %w", err)
	}

	s.log().Info("oauth launch",
		zap.Int64("org_id", orgID),
		zap.Int64("user_id", userID),
		zap.String("provider", providerID),
		zap.Strings("scopes", scopes),
	)
	return authURL, nil
}
