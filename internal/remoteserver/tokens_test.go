package remoteserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedeemPairingCodeIssuesToken(t *testing.T) {
	s := NewTokenStore()
	code := s.IssuePairingCode()

	token, ttl, ok := s.RedeemPairingCode(code)
	require.True(t, ok)
	assert.NotEmpty(t, token)
	assert.Equal(t, tokenTTL, ttl)
	assert.True(t, s.Validate(token))
}

func TestRedeemPairingCodeRejectsReuse(t *testing.T) {
	s := NewTokenStore()
	code := s.IssuePairingCode()

	_, _, ok := s.RedeemPairingCode(code)
	require.True(t, ok)

	_, _, ok = s.RedeemPairingCode(code)
	assert.False(t, ok)
}

func TestRedeemPairingCodeRejectsUnknown(t *testing.T) {
	s := NewTokenStore()
	_, _, ok := s.RedeemPairingCode("000000")
	assert.False(t, ok)
}

func TestRefreshRotatesToken(t *testing.T) {
	s := NewTokenStore()
	code := s.IssuePairingCode()
	token, _, ok := s.RedeemPairingCode(code)
	require.True(t, ok)

	newToken, _, ok := s.Refresh(token)
	require.True(t, ok)
	assert.NotEqual(t, token, newToken)
	assert.False(t, s.Validate(token))
	assert.True(t, s.Validate(newToken))
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	s := NewTokenStore()
	_, _, ok := s.Refresh("nope")
	assert.False(t, ok)
}

func TestSweepExpiredRemovesStaleEntries(t *testing.T) {
	s := NewTokenStore()
	s.mu.Lock()
	s.codes["stale"] = &pairingCode{code: "stale", expiresAt: time.Now().Add(-time.Second)}
	s.tokens["stale-token"] = &issuedToken{token: "stale-token", expiresAt: time.Now().Add(-time.Second)}
	s.mu.Unlock()

	s.sweepExpired()

	s.mu.Lock()
	_, codeExists := s.codes["stale"]
	_, tokenExists := s.tokens["stale-token"]
	s.mu.Unlock()
	assert.False(t, codeExists)
	assert.False(t, tokenExists)
}
