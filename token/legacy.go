package token

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/jrsteele09/lm-mcp-gateway/users"
	"github.com/pkg/errors"
)

// LegacyToken is an opaque bearer token kept in a server-side table.
type LegacyToken struct {
	Token     string
	Principal *users.Principal
	Scope     string
	ExpiresAt time.Time
}

// LegacyTokenStore holds opaque tokens for clients that cannot use self-describing ones.
type LegacyTokenStore interface {
	Issue(principal *users.Principal, scope string, ttl time.Duration) (*LegacyToken, error)
	// Lookup returns the token if present and unexpired. Expired entries are removed.
	Lookup(token string) (*LegacyToken, bool)
	Revoke(token string)
	Cleanup() int
}

// InMemoryLegacyTokenStore is a process-local LegacyTokenStore.
type InMemoryLegacyTokenStore struct {
	tokens  map[string]*LegacyToken
	lock    sync.RWMutex
	nowFunc func() time.Time
}

var _ LegacyTokenStore = (*InMemoryLegacyTokenStore)(nil)

func NewInMemoryLegacyTokenStore(nowFunc func() time.Time) *InMemoryLegacyTokenStore {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &InMemoryLegacyTokenStore{
		tokens:  make(map[string]*LegacyToken),
		nowFunc: nowFunc,
	}
}

func (s *InMemoryLegacyTokenStore) Issue(principal *users.Principal, scope string, ttl time.Duration) (*LegacyToken, error) {
	tokenBytes := make([]byte, 32) // 256 bits
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, errors.Wrap(err, "[InMemoryLegacyTokenStore.Issue] rand.Read")
	}

	t := &LegacyToken{
		Token:     hex.EncodeToString(tokenBytes),
		Principal: principal,
		Scope:     scope,
		ExpiresAt: s.nowFunc().Add(ttl),
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.tokens[t.Token] = t
	return t, nil
}

func (s *InMemoryLegacyTokenStore) Lookup(token string) (*LegacyToken, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return nil, false
	}
	if !s.nowFunc().Before(t.ExpiresAt) {
		delete(s.tokens, token)
		return nil, false
	}
	return t, true
}

func (s *InMemoryLegacyTokenStore) Revoke(token string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.tokens, token)
}

func (s *InMemoryLegacyTokenStore) Cleanup() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.nowFunc()
	removed := 0
	for k, t := range s.tokens {
		if !now.Before(t.ExpiresAt) {
			delete(s.tokens, k)
			removed++
		}
	}
	return removed
}
