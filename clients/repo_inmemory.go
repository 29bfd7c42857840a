package clients

import (
	"sort"
	"sync"

	"github.com/jrsteele09/lm-mcp-gateway/internal/errors"
	pkgerrors "github.com/pkg/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

type InMemoryRepo struct {
	clients map[string]*Client
	lock    sync.RWMutex
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		clients: make(map[string]*Client),
	}
}

func (r *InMemoryRepo) Upsert(client *Client) error {
	if client.ID == "" {
		return pkgerrors.Wrap(errors.ErrInvalidClient, "[InMemoryRepo.Upsert] missing client id")
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	r.clients[client.ID] = client
	return nil
}

func (r *InMemoryRepo) Delete(clientID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.clients, clientID)
	return nil
}

func (r *InMemoryRepo) Get(clientID string) (*Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	client, ok := r.clients[clientID]
	if !ok {
		return nil, pkgerrors.Wrapf(errors.ErrNotFound, "[InMemoryRepo.Get] client %s", clientID)
	}
	return client, nil
}

func (r *InMemoryRepo) List(offset, limit int) ([]*Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*Client, 0, len(r.clients))
	for _, v := range r.clients {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})

	if offset >= len(list) {
		return nil, nil
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end], nil
}
