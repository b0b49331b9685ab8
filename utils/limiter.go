package utils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is a fixed-window counter keyed by arbitrary strings. It backs the email
// resend cooldown and the per-IP registration cap.
type Counter interface {
	// Hit increments key and returns the new count. The window starts at the first hit.
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
	// Count returns the current count for key, 0 when the window has lapsed.
	Count(ctx context.Context, key string) (int64, error)
	// Reset drops key so the next Hit opens a new window.
	Reset(ctx context.Context, key string) error
}

var hitScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then redis.call('PEXPIRE', KEYS[1], ARGV[1]) end
return n`)

type RedisCounter struct {
	rc *redis.Client
}

func NewRedisCounter(rc *redis.Client) *RedisCounter {
	return &RedisCounter{rc: rc}
}

func (c *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := hitScript.Run(ctx, c.rc, []string{"limit:" + key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("counter hit: %w", err)
	}
	return n, nil
}

func (c *RedisCounter) Count(ctx context.Context, key string) (int64, error) {
	n, err := c.rc.Get(ctx, "limit:"+key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter get: %w", err)
	}
	return n, nil
}

func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	if err := c.rc.Del(ctx, "limit:"+key).Err(); err != nil {
		return fmt.Errorf("counter reset: %w", err)
	}
	return nil
}

type memWindow struct {
	count   int64
	resetAt time.Time
}

type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]memWindow
	now     func() time.Time
}

func NewMemoryCounter(now func() time.Time) *MemoryCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounter{windows: map[string]memWindow{}, now: now}
}

func (c *MemoryCounter) Hit(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = memWindow{resetAt: now.Add(window)}
	}
	w.count++
	c.windows[key] = w
	return w.count, nil
}

func (c *MemoryCounter) Count(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.windows[key]
	if !ok || !c.now().Before(w.resetAt) {
		return 0, nil
	}
	return w.count, nil
}

func (c *MemoryCounter) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.windows, key)
	return nil
}

func (c *MemoryCounter) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, w := range c.windows {
		if !now.Before(w.resetAt) {
			delete(c.windows, k)
			n++
		}
	}
	return n
}
