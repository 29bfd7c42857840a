// Package redisstore provides a Redis-backed sessions.Store for multi-instance deployments.
package redisstore

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/jrsteele09/lm-mcp-gateway/internal/errors"
	"github.com/jrsteele09/lm-mcp-gateway/sessions"
	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ sessions.Store = (*Store)(nil)

// Store keeps each session as a JSON value plus an index set used by List.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
}

// New creates a Store over an existing client, e.g. one backed by miniredis in tests.
func New(client redis.UniversalClient, keyPrefix string) *Store {
	return &Store{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.keyPrefix + "session:" + sessionID
}

func (s *Store) indexKey() string {
	return s.keyPrefix + "sessions"
}

func (s *Store) Upsert(ctx context.Context, session *sessions.UpstreamSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return pkgerrors.Wrap(err, "[redisstore.Upsert] marshal")
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(session.ID), data, 0)
		pipe.SAdd(ctx, s.indexKey(), session.ID)
		return nil
	})
	return pkgerrors.Wrap(err, "[redisstore.Upsert]")
}

func (s *Store) Get(ctx context.Context, sessionID string) (*sessions.UpstreamSession, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if pkgerrors.Is(err, redis.Nil) {
			return nil, errors.ErrSessionNotFound
		}
		return nil, pkgerrors.Wrap(err, "[redisstore.Get]")
	}

	session := &sessions.UpstreamSession{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, pkgerrors.Wrap(err, "[redisstore.Get] unmarshal")
	}
	return session, nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.key(sessionID))
		pipe.SRem(ctx, s.indexKey(), sessionID)
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(err, "[redisstore.Delete]")
	}
	if del.Val() == 0 {
		return errors.ErrSessionNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]*sessions.UpstreamSession, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[redisstore.List] SMembers")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[redisstore.List] MGet")
	}

	list := make([]*sessions.UpstreamSession, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// Index entry without a value; drop it.
			s.client.SRem(ctx, s.indexKey(), ids[i])
			continue
		}
		session := &sessions.UpstreamSession{}
		if err := json.Unmarshal([]byte(str), session); err != nil {
			return nil, pkgerrors.Wrapf(err, "[redisstore.List] unmarshal %s", ids[i])
		}
		list = append(list, session)
	}
	return list, nil
}
