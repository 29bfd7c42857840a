package sessions

import (
	"context"
	"sort"
	"sync"

	"github.com/jrsteele09/lm-mcp-gateway/internal/errors"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is a single-instance Store. Sessions are copied in and out so
// callers never share a record with the store.
type InMemoryStore struct {
	sessions map[string]*UpstreamSession
	lock     sync.RWMutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*UpstreamSession),
	}
}

func (r *InMemoryStore) Upsert(_ context.Context, session *UpstreamSession) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func (r *InMemoryStore) Get(_ context.Context, sessionID string) (*UpstreamSession, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (r *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return errors.ErrSessionNotFound
	}
	delete(r.sessions, sessionID)
	return nil
}

func (r *InMemoryStore) List(_ context.Context) ([]*UpstreamSession, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*UpstreamSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		cp := *s
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list, nil
}
