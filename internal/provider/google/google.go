// Package google implements the Google provider runtime covering Gmail,
// Drive and Calendar capabilities.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	oauthadapter "github.com/smallbiznis/valora-connect/internal/adapter/oauth"
	"github.com/smallbiznis/valora-connect/internal/domain/connect"
	"github.com/smallbiznis/valora-connect/internal/provider"
)

const (
	authURL     = "https://accounts.google.com/o/oauth2/auth"
	tokenURL    = "https://oauth2.googleapis.com/token"
	userinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// Config carries the OAuth client credentials for the Google app.
type Config struct {
	ClientID     string
	ClientSecret string
}

// Runtime is the Google provider plugin.
type Runtime struct {
	provider.Catalog
	cfg     Config
	account oauthadapter.ProviderClient
}

var _ provider.Runtime = (*Runtime)(nil)
var _ provider.AuthCodeFlow = (*Runtime)(nil)

// New constructs the Google runtime. The account client is used only to load
// userinfo after a successful exchange; nil falls back to the default client.
func New(cfg Config, account oauthadapter.ProviderClient) *Runtime {
	if account == nil {
		account = oauthadapter.NewHTTPProviderClient(nil)
	}
	return &Runtime{
		Catalog: provider.Catalog{
			Provider: connect.Provider{
				ID:          "google",
				DisplayName: "Google",
				IconURL:     "https://www.gstatic.com/marketing-cms/assets/images/d5/dc/cfe9ce8b4425b410b49b7f2dd3f3/g.webp",
				AuthKind:    connect.AuthKindOAuth2,
			},
			CapabilitySet: []connect.Capability{
				{ProviderID: "google", ID: "gmail.messages.send", RequiredScopes: []string{"https://www.googleapis.com/auth/gmail.send"}},
				{ProviderID: "google", ID: "gmail.messages.read", RequiredScopes: []string{"https://www.googleapis.com/auth/gmail.readonly"}},
				{ProviderID: "google", ID: "drive.files.read", RequiredScopes: []string{"https://www.googleapis.com/auth/drive.readonly"}},
				{ProviderID: "google", ID: "drive.files.write", RequiredScopes: []string{"https://www.googleapis.com/auth/drive.file"}},
				{ProviderID: "google", ID: "calendar.events.read", RequiredScopes: []string{"https://www.googleapis.com/auth/calendar.readonly"}},
				{ProviderID: "google", ID: "calendar.events.write", RequiredScopes: []string{"https://www.googleapis.com/auth/calendar.events"}},
			},
			TriggerSet: []connect.Trigger{
				{ProviderID: "google", ID: "gmail.message.received"},
				{ProviderID: "google", ID: "calendar.event.created"},
			},
		},
		cfg:     cfg,
		account: account,
	}
}

func (r *Runtime) oauthConfig(scopes []string, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     r.cfg.ClientID,
		ClientSecret: r.cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
		},
	}
}

// BuildAuthURL renders the Google consent URL for the requested scopes.
func (r *Runtime) BuildAuthURL(_ context.Context, scopes []string, state, redirectURI string) (string, error) {
	if r.cfg.ClientID == "" {
		return "", fmt.Errorf("google client id missing")
	}
	conf := r.oauthConfig(scopes, redirectURI)
	return conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	), nil
}

// ExchangeCallback swaps the authorization code for tokens and loads account
// metadata. The granted scope set comes from the token response, not from
// what was requested.
func (r *Runtime) ExchangeCallback(ctx context.Context, params url.Values, redirectURI string) (*connect.Exchange, error) {
	if errCode := params.Get("error"); errCode != "" {
		return nil, fmt.Errorf("authorization denied: %s", errCode)
	}
	code := params.Get("code")
	if code == "" {
		return nil, fmt.Errorf("authorization code missing")
	}

	conf := r.oauthConfig(nil, redirectURI)
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google exchange: %w", err)
	}

	payload, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("encode token: %w", err)
	}

	var scopes []string
	if granted, ok := token.Extra("scope").(string); ok {
		scopes = strings.Fields(granted)
	}

	account, err := r.account.FetchAccount(ctx, oauthadapter.Endpoint{AccountURL: userinfoURL}, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("google userinfo: %w", err)
	}

	return &connect.Exchange{
		TokenPayload:    payload,
		Scopes:          scopes,
		ExternalAccount: account,
	}, nil
}
