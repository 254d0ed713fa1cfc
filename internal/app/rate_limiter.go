package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts attempts per scope and subject in fixed windows.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RedisRateLimiter keeps fixed-window counters in Redis so that every replica shares
// them. A limiter without a client allows everything.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "backoffice"
	}
	return &RedisRateLimiter{client: client, prefix: prefix + ":ratelimit"}
}

// ConsumeRateLimit counts one attempt. The window key is created with its expiry by
// SET NX inside the same MULTI as the INCR, so the first attempt fixes the window.
func (r *RedisRateLimiter) ConsumeRateLimit(
	ctx context.Context,
	scope string,
	subject string,
	limit int,
	window time.Duration,
) (count int, retryAfterSeconds int, err error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	key, ok := r.key(scope, subject)
	if !ok {
		return 0, 0, nil
	}
	if window < time.Second {
		window = time.Second
	}

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, window)
		incr = pipe.Incr(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit %s: %w", key, err)
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = window
	}
	return int(incr.Val()), retryAfter(remaining), nil
}

func (r *RedisRateLimiter) key(scope, subject string) (string, bool) {
	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return "", false
	}
	return r.prefix + ":" + scope + ":" + subject, true
}

// retryAfter rounds up to whole seconds, never below one.
func retryAfter(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

type windowCounter struct {
	count   int
	resetAt time.Time
}

// memorySweepInterval bounds how often expired windows are dropped.
const memorySweepInterval = time.Minute

// MemoryRateLimiter is the single-instance fallback used when Redis is not configured.
type MemoryRateLimiter struct {
	mu        sync.Mutex
	counters  map[string]*windowCounter
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{counters: map[string]*windowCounter{}, now: time.Now}
}

func (m *MemoryRateLimiter) ConsumeRateLimit(
	_ context.Context,
	scope string,
	subject string,
	limit int,
	window time.Duration,
) (int, int, error) {
	if limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	key := strings.TrimSpace(scope) + ":" + strings.TrimSpace(subject)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Sub(m.lastSweep) >= memorySweepInterval {
		m.sweep(now)
	}
	counter, ok := m.counters[key]
	if !ok || !now.Before(counter.resetAt) {
		counter = &windowCounter{resetAt: now.Add(window)}
		m.counters[key] = counter
	}
	counter.count++
	return counter.count, retryAfter(counter.resetAt.Sub(now)), nil
}

// sweep drops windows that have closed. Callers hold mu.
func (m *MemoryRateLimiter) sweep(now time.Time) {
	for key, counter := range m.counters {
		if !now.Before(counter.resetAt) {
			delete(m.counters, key)
		}
	}
	m.lastSweep = now
}

// size reports the number of tracked windows.
func (m *MemoryRateLimiter) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counters)
}
