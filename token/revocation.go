package token

import (
	"sync"
	"time"
)

// RevokedTokenCache remembers revoked token ids until the token would have expired anyway
type RevokedTokenCache interface {
	Add(jti string, exp time.Time)
	IsRevoked(jti string) bool
	Cleanup() int
}

// InMemoryRevokedTokenCache is a process-local RevokedTokenCache
type InMemoryRevokedTokenCache struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
	nowFunc func() time.Time
}

func NewInMemoryRevokedTokenCache(nowFunc func() time.Time) *InMemoryRevokedTokenCache {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &InMemoryRevokedTokenCache{
		revoked: make(map[string]time.Time),
		nowFunc: nowFunc,
	}
}

func (c *InMemoryRevokedTokenCache) Add(jti string, exp time.Time) {
	if jti == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[jti] = exp
}

func (c *InMemoryRevokedTokenCache) IsRevoked(jti string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.revoked[jti]
	return exists
}

// Cleanup drops entries whose token has expired and returns how many were removed
func (c *InMemoryRevokedTokenCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFunc()
	removed := 0
	for jti, exp := range c.revoked {
		if now.After(exp) {
			delete(c.revoked, jti)
			removed++
		}
	}
	return removed
}
