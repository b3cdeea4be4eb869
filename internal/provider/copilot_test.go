package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/aiprovidergw/gateway/internal/gwerrors"
)

func TestCopilotBearerToken_NotAuthenticated(t *testing.T) {
	p := NewCopilotProvider(oauth2.Config{}, "http://example.invalid", "gpt-4o", nil)

	_, err := p.bearerToken(context.Background())
	ge, ok := gwerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerrors.Auth, ge.Kind)
}

func TestCopilotBearerToken_ReturnsFreshCachedToken(t *testing.T) {
	p := NewCopilotProvider(oauth2.Config{}, "http://example.invalid", "gpt-4o", nil)
	p.SeedToken(&oauth2.Token{
		AccessToken: "cached-token",
		Expiry:      time.Now().Add(1 * time.Hour),
	})

	tok, err := p.bearerToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached-token", tok)
}

func TestCopilotBearerToken_NeedsRefreshWithoutRefreshTokenFails(t *testing.T) {
	p := NewCopilotProvider(oauth2.Config{}, "http://example.invalid", "gpt-4o", nil)
	p.SeedToken(&oauth2.Token{
		AccessToken: "stale-token",
		Expiry:      time.Now().Add(100 * time.Second), // inside the 300s refresh window
	})

	_, err := p.bearerToken(context.Background())
	ge, ok := gwerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerrors.Auth, ge.Kind)
}

func TestNeedsRefresh(t *testing.T) {
	assert.False(t, needsRefresh(&oauth2.Token{Expiry: time.Now().Add(1 * time.Hour)}))
	assert.True(t, needsRefresh(&oauth2.Token{Expiry: time.Now().Add(60 * time.Second)}))
	assert.False(t, needsRefresh(&oauth2.Token{})) // zero expiry means "does not expire"
}
