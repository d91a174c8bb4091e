// File: internal/infra/redis/key_cache.go
package redis

import (
	"context"
	"sync"
	"time"

	"elearn-entitlements/internal/infra/adapters/iap"
)

var _ iap.KeyCache = (*KeyCache)(nil)

// KeyCache stores the remote authority's verification keys (JWK JSON) in
// Redis with a TTL, with an in-process copy in front so a Redis hiccup never
// blocks receipt verification. Read-mostly: stale-but-present beats blocking
// on a refresh.
type KeyCache struct {
	cli RedisClient

	mu    sync.RWMutex
	local map[string]localKey
}

type localKey struct {
	jwkJSON   string
	expiresAt time.Time
}

func NewKeyCache(cli RedisClient) *KeyCache {
	return &KeyCache{cli: cli, local: make(map[string]localKey)}
}

func (c *KeyCache) key(kid string) string { return "iap:key:" + kid }

func (c *KeyCache) Get(ctx context.Context, kid string) (string, bool) {
	c.mu.RLock()
	if k, ok := c.local[kid]; ok && time.Now().Before(k.expiresAt) {
		c.mu.RUnlock()
		return k.jwkJSON, true
	}
	c.mu.RUnlock()

	v, err := c.cli.Get(ctx, c.key(kid))
	if err != nil || v == "" {
		return "", false
	}
	c.mu.Lock()
	c.local[kid] = localKey{jwkJSON: v, expiresAt: time.Now().Add(iap.KeyTTL)}
	c.mu.Unlock()
	return v, true
}

func (c *KeyCache) Set(ctx context.Context, kid, jwkJSON string, ttl time.Duration) {
	c.mu.Lock()
	c.local[kid] = localKey{jwkJSON: jwkJSON, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	_ = c.cli.Set(ctx, c.key(kid), jwkJSON, ttl)
}
