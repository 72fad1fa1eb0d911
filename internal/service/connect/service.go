// Package connect implements the OAuth connection lifecycle: launching
// authorization handshakes, committing provider callbacks, and auditing
// capability coverage against the connection store.
package connect

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/url"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-connect/internal/config"
	"github.com/smallbiznis/valora-connect/internal/events"
	"github.com/smallbiznis/valora-connect/internal/provider"
	"github.com/smallbiznis/valora-connect/internal/repository"
)

// Service defines the connection lifecycle and audit behaviors.
type Service interface {
	Launch(ctx context.Context, orgID, userID int64, providerID string, internalIDs []string) (string, error)
	Callback(ctx context.Context, providerID string, params url.Values) (*CallbackResult, error)
	Audit(ctx context.Context, orgID, userID int64, req AuditRequest) ([]ProviderAuditResult, error)
	ListProviders(ctx context.Context, orgID, userID int64) ([]ProviderStatus, error)
	Deactivate(ctx context.Context, orgID int64, providerID string) error
}

// CallbackResult tells the HTTP layer where to send the browser after a
// committed callback.
type CallbackResult struct {
	RedirectURL  string
	ConnectionID int64
}

// ProviderStatus is a registry entry annotated with the caller's connection
// state.
type ProviderStatus struct {
	ID          string `json:"providerId"`
	DisplayName string `json:"providerDisplayName"`
	IconURL     string `json:"providerIcon"`
	Connected   bool   `json:"connected"`
}

type service struct {
	registry  *provider.Registry
	txRepo    repository.TransactionRepository
	connRepo  repository.ConnectionRepository
	publisher events.Publisher
	node      *snowflake.Node
	cfg       config.Config
	logger    *zap.Logger
}

// NewService wires the connection service implementation.
func NewService(
	registry *provider.Registry,
	txRepo repository.TransactionRepository,
	connRepo repository.ConnectionRepository,
	publisher events.Publisher,
	node *snowflake.Node,
	cfg config.Config,
	logger *zap.Logger,
) Service {
	return &service{
		registry:  registry,
		txRepo:    txRepo,
		connRepo:  connRepo,
		publisher: publisher,
		node:      node,
		cfg:       cfg,
		logger:    logger,
	}
}

// ListProviders returns the registered providers in registration order with
// the org's connection state attached.
func (s *service) ListProviders(ctx context.Context, orgID, userID int64) ([]ProviderStatus, error) {
	snapshot, err := s.connRepo.ScopeSnapshot(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	runtimes := s.registry.Providers()
	out := make([]ProviderStatus, 0, len(runtimes))
	for _, rt := range runtimes {
		desc := rt.Descriptor()
		out = append(out, ProviderStatus{
			ID:          desc.ID,
			DisplayName: desc.DisplayName,
			IconURL:     desc.IconURL,
			Connected:   snapshot.HasProvider(desc.ID),
		})
	}
	return out, nil
}

// Deactivate flips the org's active connection for the provider to inactive.
func (s *service) Deactivate(ctx context.Context, orgID int64, providerID string) error {
	if _, err := s.registry.Provider(providerID); err != nil {
		return err
	}
	return s.connRepo.Deactivate(ctx, orgID, providerID)
}

func (s *service) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func (s *service) redirectURIFor(providerID string) string {
	return s.cfg.OAuthRedirectBase + "/oauth/callback/" + providerID
}

// launchURLFor builds the launch endpoint URL that re-enters Launch with
// exactly the given internal ids.
func (s *service) launchURLFor(providerID string, internalIDs []string) string {
	values := url.Values{}
	for _, id := range internalIDs {
		values.Add("scopes", id)
	}
	u := s.cfg.OAuthRedirectBase + "/oauth/launch/" + providerID
	if encoded := values.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
