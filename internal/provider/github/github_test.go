package github

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	oauthadapter "github.com/smallbiznis/valora-connect/internal/adapter/oauth"
)

type fakeClient struct {
	token      *oauthadapter.TokenResponse
	tokenErr   error
	account    map[string]any
	accountErr error

	gotCode        string
	gotRedirectURI string
}

func (f *fakeClient) ExchangeCode(_ context.Context, _ oauthadapter.Endpoint, code, redirectURI string) (*oauthadapter.TokenResponse, error) {
	f.gotCode = code
	f.gotRedirectURI = redirectURI
	return f.token, f.tokenErr
}

func (f *fakeClient) FetchAccount(context.Context, oauthadapter.Endpoint, string) (map[string]any, error) {
	return f.account, f.accountErr
}

func TestBuildAuthURL(t *testing.T) {
	rt := New(Config{ClientID: "client-id", ClientSecret: "shh"}, &fakeClient{})

	authURL, err := rt.BuildAuthURL(context.Background(), []string{"repo", "user:email"}, "state-token", "https://connect.example.com/oauth/callback/github")
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	require.Equal(t, "github.com", parsed.Host)
	require.Equal(t, "client-id", parsed.Query().Get("client_id"))
	require.Equal(t, "state-token", parsed.Query().Get("state"))
	require.Equal(t, "repo user:email", parsed.Query().Get("scope"))
	require.Equal(t, "https://connect.example.com/oauth/callback/github", parsed.Query().Get("redirect_uri"))
	require.NotContains(t, authURL, "shh")
}

func TestBuildAuthURLMissingClientID(t *testing.T) {
	rt := New(Config{}, &fakeClient{})
	_, err := rt.BuildAuthURL(context.Background(), nil, "state", "https://cb")
	require.Error(t, err)
}

func TestExchangeCallbackParsesCommaScopes(t *testing.T) {
	client := &fakeClient{
		token: &oauthadapter.TokenResponse{
			AccessToken: "gh-token",
			Scope:       "repo, user:email",
			Raw:         map[string]any{"access_token": "gh-token", "scope": "repo, user:email"},
		},
		account: map[string]any{"login": "octocat"},
	}
	rt := New(Config{ClientID: "client-id"}, client)

	params := url.Values{"code": {"auth-code"}, "state": {"state-token"}}
	exchange, err := rt.ExchangeCallback(context.Background(), params, "https://cb")
	require.NoError(t, err)

	require.Equal(t, "auth-code", client.gotCode)
	require.Equal(t, "https://cb", client.gotRedirectURI)
	require.Equal(t, []string{"repo", "user:email"}, exchange.Scopes)
	require.Equal(t, "octocat", exchange.ExternalAccount["login"])

	var payload map[string]any
	require.NoError(t, json.Unmarshal(exchange.TokenPayload, &payload))
	require.Equal(t, "gh-token", payload["access_token"])
}

func TestExchangeCallbackDeniedByUser(t *testing.T) {
	rt := New(Config{ClientID: "client-id"}, &fakeClient{})

	params := url.Values{"error": {"access_denied"}, "state": {"state-token"}}
	_, err := rt.ExchangeCallback(context.Background(), params, "https://cb")
	require.Error(t, err)
}

func TestExchangeCallbackMissingCode(t *testing.T) {
	rt := New(Config{ClientID: "client-id"}, &fakeClient{})

	_, err := rt.ExchangeCallback(context.Background(), url.Values{"state": {"s"}}, "https://cb")
	require.Error(t, err)
}

func TestExchangeCallbackEmptyAccessToken(t *testing.T) {
	client := &fakeClient{token: &oauthadapter.TokenResponse{Raw: map[string]any{}}}
	rt := New(Config{ClientID: "client-id"}, client)

	_, err := rt.ExchangeCallback(context.Background(), url.Values{"code": {"c"}}, "https://cb")
	require.Error(t, err)
}
