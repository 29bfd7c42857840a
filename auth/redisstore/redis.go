// Package redisstore provides a Redis-backed auth.CodeStore so that login and
// token exchange may land on different instances.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/lm-mcp-gateway/auth"
	"github.com/jrsteele09/lm-mcp-gateway/internal/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ auth.CodeStore = (*CodeStore)(nil)

// CodeStore keeps each code under its own key with a TTL matching the code lifetime.
type CodeStore struct {
	client    redis.UniversalClient
	keyPrefix string
	nowTime   func() time.Time
}

func New(client redis.UniversalClient, keyPrefix string) *CodeStore {
	return &CodeStore{
		client:    client,
		keyPrefix: keyPrefix,
		nowTime:   time.Now,
	}
}

func (s *CodeStore) key(code string) string {
	return s.keyPrefix + "code:" + code
}

func (s *CodeStore) Save(ctx context.Context, record *auth.CodeRecord) error {
	ttl := record.ExpiresAt.Sub(s.nowTime())
	if ttl <= 0 {
		return pkgerrors.New("[redisstore.CodeStore.Save] code already expired")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return pkgerrors.Wrap(err, "[redisstore.CodeStore.Save] marshal")
	}
	if err := s.client.Set(ctx, s.key(record.Code), data, ttl).Err(); err != nil {
		return pkgerrors.Wrap(err, "[redisstore.CodeStore.Save]")
	}
	return nil
}

func (s *CodeStore) Get(ctx context.Context, code string) (*auth.CodeRecord, error) {
	return s.decode(s.client.Get(ctx, s.key(code)).Bytes())
}

// Consume relies on GETDEL, so concurrent consumers of one code see it at most once.
func (s *CodeStore) Consume(ctx context.Context, code string) (*auth.CodeRecord, error) {
	return s.decode(s.client.GetDel(ctx, s.key(code)).Bytes())
}

func (s *CodeStore) decode(data []byte, err error) (*auth.CodeRecord, error) {
	if err != nil {
		if pkgerrors.Is(err, redis.Nil) {
			return nil, errors.ErrNotFound
		}
		return nil, pkgerrors.Wrap(err, "[redisstore.CodeStore]")
	}
	record := &auth.CodeRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, pkgerrors.Wrap(err, "[redisstore.CodeStore] unmarshal")
	}
	if record.Expired(s.nowTime()) {
		return nil, errors.ErrNotFound
	}
	return record, nil
}
