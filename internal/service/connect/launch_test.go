package connect

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/smallbiznis/valora-connect/internal/domain/connect"
	"github.com/smallbiznis/valora-connect/internal/provider"
)

func TestLaunchBuildsAuthURLAndPersistsTransaction(t *testing.T) {
	h := newHarness()

	authURL, err := h.service.Launch(context.Background(), 10, 42, "google", []string{"gmail.messages.send", "gmail.messages.read"})
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)
	require.ElementsMatch(t, []string{"gmail.send", "gmail.readonly"}, parsed.Query()["scope"])
	require.Equal(t, "https://connect.example.com/oauth/callback/google", parsed.Query().Get("redirect_uri"))

	tx := h.txRepo.byStateCopy(state)
	require.NotNil(t, tx)
	require.Equal(t, domain.TransactionPending, tx.Status)
	require.Equal(t, int64(10), tx.OrgID)
	require.Equal(t, int64(42), tx.UserID)
	require.Equal(t, "google", tx.ProviderID)
	require.ElementsMatch(t, []string{"gmail.send", "gmail.readonly"}, tx.RequestedScopes)
	require.Equal(t, "https://connect.example.com/oauth/callback/google", tx.RedirectURI)
}

func TestLaunchUniqueStatePerCall(t *testing.T) {
	h := newHarness()

	first, err := h.service.Launch(context.Background(), 10, 42, "google", []string{"gmail.messages.send"})
	require.NoError(t, err)
	second, err := h.service.Launch(context.Background(), 10, 42, "google", []string{"gmail.messages.send"})
	require.NoError(t, err)

	firstParsed, err := url.Parse(first)
	require.NoError(t, err)
	secondParsed, err := url.Parse(second)
	require.NoError(t, err)
	require.NotEqual(t, firstParsed.Query().Get("state"), secondParsed.Query().Get("state"))
}

func TestLaunchUnknownProvider(t *testing.T) {
	h := newHarness()

	_, err := h.service.Launch(context.Background(), 10, 42, "slack", nil)
	require.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestLaunchUnknownInternalIDsMapToNothing(t *testing.T) {
	h := newHarness()

	authURL, err := h.service.Launch(context.Background(), 10, 42, "google", []string{"gmail.messages.send", "does.not.exist"})
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	require.Equal(t, []string{"gmail.send"}, parsed.Query()["scope"])
}

func TestLaunchProviderWithoutAuthCodeFlow(t *testing.T) {
	webhookOnly := provider.Catalog{
		Provider: domain.Provider{ID: "webhook", DisplayName: "Webhook", AuthKind: domain.AuthKindNone},
	}
	h := newHarness(webhookOnly)

	_, err := h.service.Launch(context.Background(), 10, 42, "webhook", nil)
	require.ErrorIs(t, err, domain.ErrOAuthUnsupported)
}
