package remoteserver

import (
	"crypto/rand"
	"encoding/base32"
	"sync"
	"time"

	"github.com/google/uuid"
)

// pairingCodeTTL bounds how long a displayed pairing code stays valid.
const pairingCodeTTL = 120 * time.Second

// tokenTTL is how long an issued bearer token is valid before the client
// must call /v1/refresh.
const tokenTTL = 24 * time.Hour

type pairingCode struct {
	code      string
	expiresAt time.Time
	used      bool
}

type issuedToken struct {
	token     string
	expiresAt time.Time
}

// TokenStore tracks outstanding pairing codes and issued bearer tokens.
// Shared by every server worker goroutine behind a single mutex guarding
// the two maps.
type TokenStore struct {
	mu     sync.Mutex
	codes  map[string]*pairingCode
	tokens map[string]*issuedToken
}

// NewTokenStore creates an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		codes:  make(map[string]*pairingCode),
		tokens: make(map[string]*issuedToken),
	}
}

// IssuePairingCode mints a fresh human-displayable pairing code, valid
// for pairingCodeTTL.
func (s *TokenStore) IssuePairingCode() string {
	code := randomDigits(6)
	s.mu.Lock()
	s.codes[code] = &pairingCode{code: code, expiresAt: time.Now().Add(pairingCodeTTL)}
	s.mu.Unlock()
	return code
}

// RedeemPairingCode consumes code if it is present, unused, and
// unexpired, minting a fresh bearer token in exchange. ok is false for
// any other case (unknown, reused, or expired code).
func (s *TokenStore) RedeemPairingCode(code string) (token string, expiresIn time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, exists := s.codes[code]
	if !exists || pc.used || time.Now().After(pc.expiresAt) {
		return "", 0, false
	}
	pc.used = true

	tok := uuid.NewString()
	expiresAt := time.Now().Add(tokenTTL)
	s.tokens[tok] = &issuedToken{token: tok, expiresAt: expiresAt}
	return tok, tokenTTL, true
}

// Validate reports whether token is a currently valid, unexpired bearer
// token.
func (s *TokenStore) Validate(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.tokens[token]
	if !ok {
		return false
	}
	if time.Now().After(it.expiresAt) {
		delete(s.tokens, token)
		return false
	}
	return true
}

// Refresh revokes token and issues a new one in its place, provided token
// was valid. ok is false if token was unknown or already expired.
func (s *TokenStore) Refresh(token string) (newToken string, expiresIn time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, exists := s.tokens[token]
	if !exists {
		return "", 0, false
	}
	delete(s.tokens, token)
	if time.Now().After(it.expiresAt) {
		return "", 0, false
	}

	tok := uuid.NewString()
	expiresAt := time.Now().Add(tokenTTL)
	s.tokens[tok] = &issuedToken{token: tok, expiresAt: expiresAt}
	return tok, tokenTTL, true
}

// sweepExpired removes every expired pairing code and token. Intended to
// be called periodically so the maps don't grow unbounded.
func (s *TokenStore) sweepExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.codes {
		if now.After(v.expiresAt) {
			delete(s.codes, k)
		}
	}
	for k, v := range s.tokens {
		if now.After(v.expiresAt) {
			delete(s.tokens, k)
		}
	}
}

func randomDigits(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is catastrophic for the host; fall back to a
		// fixed-length base32 encoding of the zero buffer rather than
		// panicking, so pairing degrades rather than crashing the server.
		return base32.StdEncoding.EncodeToString(buf)[:n]
	}
	digits := make([]byte, n)
	for i, b := range buf {
		digits[i] = '0' + b%10
	}
	return string(digits)
}
