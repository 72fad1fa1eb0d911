// Package github implements the GitHub provider runtime.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	oauthadapter "github.com/smallbiznis/valora-connect/internal/adapter/oauth"
	"github.com/smallbiznis/valora-connect/internal/domain/connect"
	"github.com/smallbiznis/valora-connect/internal/provider"
)

const (
	authURL    = "https://github.com/login/oauth/authorize"
	tokenURL   = "https://github.com/login/oauth/access_token"
	accountURL = "https://api.github.com/user"
)

// Config carries the OAuth app credentials for GitHub.
type Config struct {
	ClientID     string
	ClientSecret string
}

// Runtime is the GitHub provider plugin.
type Runtime struct {
	provider.Catalog
	cfg    Config
	client oauthadapter.ProviderClient
}

var _ provider.Runtime = (*Runtime)(nil)
var _ provider.AuthCodeFlow = (*Runtime)(nil)

// New constructs the GitHub runtime on top of the shared exchange client.
func New(cfg Config, client oauthadapter.ProviderClient) *Runtime {
	if client == nil {
		client = oauthadapter.NewHTTPProviderClient(nil)
	}
	return &Runtime{
		Catalog: provider.Catalog{
			Provider: connect.Provider{
				ID:          "github",
				DisplayName: "GitHub",
				IconURL:     "https://github.githubassets.com/images/modules/logos_page/GitHub-Mark.png",
				AuthKind:    connect.AuthKindOAuth2,
			},
			CapabilitySet: []connect.Capability{
				{ProviderID: "github", ID: "repos.read", RequiredScopes: []string{"repo"}},
				{ProviderID: "github", ID: "issues.write", RequiredScopes: []string{"repo"}},
				{ProviderID: "github", ID: "user.email.read", RequiredScopes: []string{"user:email"}},
			},
			TriggerSet: []connect.Trigger{
				{ProviderID: "github", ID: "repo.push"},
			},
		},
		cfg:    cfg,
		client: client,
	}
}

func (r *Runtime) endpoint() oauthadapter.Endpoint {
	return oauthadapter.Endpoint{
		ClientID:     r.cfg.ClientID,
		ClientSecret: r.cfg.ClientSecret,
		AuthURL:      authURL,
		TokenURL:     tokenURL,
		AccountURL:   accountURL,
	}
}

// BuildAuthURL renders the GitHub authorization URL for the requested scopes.
func (r *Runtime) BuildAuthURL(_ context.Context, scopes []string, state, redirectURI string) (string, error) {
	if r.cfg.ClientID == "" {
		return "", fmt.Errorf("github client id missing")
	}
	u, err := url.Parse(authURL)
	if err != nil {
		return "", fmt.Errorf("parse auth url: %w", err)
	}
	params := u.Query()
	params.Set("client_id", r.cfg.ClientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("state", state)
	params.Set("scope", strings.Join(scopes, " "))
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// ExchangeCallback swaps the code for a token and loads the account profile.
func (r *Runtime) ExchangeCallback(ctx context.Context, params url.Values, redirectURI string) (*connect.Exchange, error) {
	if errCode := params.Get("error"); errCode != "" {
		return nil, fmt.Errorf("authorization denied: %s", errCode)
	}
	code := params.Get("code")
	if code == "" {
		return nil, fmt.Errorf("authorization code missing")
	}

	ep := r.endpoint()
	token, err := r.client.ExchangeCode(ctx, ep, code, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("github exchange: %w", err)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return nil, fmt.Errorf("github exchange: empty access token")
	}

	payload, err := json.Marshal(token.Raw)
	if err != nil {
		return nil, fmt.Errorf("encode token: %w", err)
	}

	// GitHub reports granted scopes comma-separated.
	var scopes []string
	for _, s := range strings.Split(token.Scope, ",") {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			scopes = append(scopes, trimmed)
		}
	}

	account, err := r.client.FetchAccount(ctx, ep, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("github account: %w", err)
	}

	return &connect.Exchange{
		TokenPayload:    payload,
		Scopes:          scopes,
		ExternalAccount: account,
	}, nil
}
