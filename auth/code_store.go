package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/jrsteele09/lm-mcp-gateway/internal/errors"
	"github.com/jrsteele09/lm-mcp-gateway/oauthmodel"
	"github.com/jrsteele09/lm-mcp-gateway/users"
	pkgerrors "github.com/pkg/errors"
)

const (
	// DefaultCodeLifetime bounds how long an authorization code may wait for exchange.
	DefaultCodeLifetime  = 10 * time.Minute
	codeGenerationLength = 32
)

// CodeRecord is everything the token endpoint needs to honour an authorization code.
type CodeRecord struct {
	Code                string                    `json:"code"`
	Principal           *users.Principal          `json:"principal"`
	SessionID           string                    `json:"session_id"`
	ClientID            string                    `json:"client_id,omitempty"`
	RedirectURI         string                    `json:"redirect_uri"`
	CodeChallenge       string                    `json:"code_challenge"`
	CodeChallengeMethod oauthmodel.CodeMethodType `json:"code_challenge_method"`
	Scope               string                    `json:"scope"`
	Resources           []string                  `json:"resources,omitempty"`
	CreatedAt           time.Time                 `json:"created_at"`
	ExpiresAt           time.Time                 `json:"expires_at"`
}

// Expired reports whether the code is past its lifetime at now.
func (r *CodeRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// CodeStore holds pending authorization codes. Consume must be atomic: of any
// number of concurrent calls for the same code at most one returns the record.
type CodeStore interface {
	Save(ctx context.Context, record *CodeRecord) error
	Get(ctx context.Context, code string) (*CodeRecord, error)
	Consume(ctx context.Context, code string) (*CodeRecord, error)
}

// GenerateCode returns a random URL-safe authorization code.
func GenerateCode() (string, error) {
	bytes := make([]byte, codeGenerationLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", pkgerrors.Wrap(err, "[auth.GenerateCode] rand.Read")
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

var _ CodeStore = (*InMemoryCodeStore)(nil)

// InMemoryCodeStore is the single-process CodeStore.
type InMemoryCodeStore struct {
	mu      sync.Mutex
	codes   map[string]*CodeRecord
	nowTime func() time.Time
}

func NewInMemoryCodeStore(nowFunc func() time.Time) *InMemoryCodeStore {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &InMemoryCodeStore{
		codes:   make(map[string]*CodeRecord),
		nowTime: nowFunc,
	}
}

func (s *InMemoryCodeStore) Save(_ context.Context, record *CodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.codes[record.Code] = &cp
	return nil
}

// Get returns a copy of the record. Expired records are removed and reported as not found.
func (s *InMemoryCodeStore) Get(_ context.Context, code string) (*CodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.codes[code]
	if !ok {
		return nil, errors.ErrNotFound
	}
	if record.Expired(s.nowTime()) {
		delete(s.codes, code)
		return nil, errors.ErrNotFound
	}
	cp := *record
	return &cp, nil
}

func (s *InMemoryCodeStore) Consume(_ context.Context, code string) (*CodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.codes[code]
	if !ok {
		return nil, errors.ErrNotFound
	}
	delete(s.codes, code)
	if record.Expired(s.nowTime()) {
		return nil, errors.ErrNotFound
	}
	return record, nil
}

// Cleanup drops expired codes and returns how many were removed.
func (s *InMemoryCodeStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowTime()
	removed := 0
	for code, record := range s.codes {
		if record.Expired(now) {
			delete(s.codes, code)
			removed++
		}
	}
	return removed
}
