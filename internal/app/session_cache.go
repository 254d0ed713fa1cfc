package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goizzi/backoffice-service/internal/domain"
)

// SessionCache stores session resolutions. A nil session is a cached negative result.
type SessionCache interface {
	Get(ctx context.Context, key string) (*domain.StaffSession, bool, error)
	Set(ctx context.Context, key string, session *domain.StaffSession, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryCacheEntry struct {
	session   *domain.StaffSession
	expiresAt time.Time
}

// MemorySessionCache is a process-local SessionCache.
type MemorySessionCache struct {
	mu      sync.Mutex
	entries map[string]memoryCacheEntry
	now     func() time.Time
}

func NewMemorySessionCache() *MemorySessionCache {
	return &MemorySessionCache{entries: map[string]memoryCacheEntry{}, now: time.Now}
}

func (c *MemorySessionCache) Get(_ context.Context, key string) (*domain.StaffSession, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return copySession(entry.session), true, nil
}

func (c *MemorySessionCache) Set(_ context.Context, key string, session *domain.StaffSession, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	// Sweep expired entries so rejected cookies do not accumulate.
	for k, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryCacheEntry{session: copySession(session), expiresAt: now.Add(ttl)}
	return nil
}

func (c *MemorySessionCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func copySession(s *domain.StaffSession) *domain.StaffSession {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// RedisSessionCache shares session resolutions between instances. Keys are hashed so
// raw cookies never reach Redis.
type RedisSessionCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSessionCache(client redis.UniversalClient, prefix string) *RedisSessionCache {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "backoffice"
	}
	return &RedisSessionCache{client: client, prefix: prefix + ":session"}
}

func (c *RedisSessionCache) key(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return c.prefix + ":" + hex.EncodeToString(sum[:])
}

func (c *RedisSessionCache) Get(ctx context.Context, key string) (*domain.StaffSession, bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var session *domain.StaffSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, false, err
	}
	return session, true, nil
}

func (c *RedisSessionCache) Set(ctx context.Context, key string, session *domain.StaffSession, ttl time.Duration) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), raw, ttl).Err()
}

func (c *RedisSessionCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}
