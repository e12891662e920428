package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Throttle turns "notify on every pass" into "notify once per distinct state".
// ShouldNotify returns true, and records a marker, the first time a key is seen within the window.
type Throttle interface {
	ShouldNotify(ctx context.Context, key string) (bool, error)
}

// ThrottleKey scopes a marker to one order, recipient class and outcome fingerprint.
func ThrottleKey(orderID int, audience, fingerprint string) string {
	return fmt.Sprintf("exchange:notify:%d:%s:%s", orderID, audience, fingerprint)
}

// RedisThrottle stores markers with SET NX EX so concurrent passes on different
// instances agree on who sends.
type RedisThrottle struct {
	rdb    *redis.Client
	window time.Duration
}

func NewRedisThrottle(rdb *redis.Client, window time.Duration) *RedisThrottle {
	return &RedisThrottle{rdb: rdb, window: window}
}

func (t *RedisThrottle) ShouldNotify(ctx context.Context, key string) (bool, error) {
	return t.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), t.window).Result()
}

// MemoryThrottle is the single-process fallback. Markers expire lazily.
type MemoryThrottle struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	markers map[string]time.Time
}

func NewMemoryThrottle(window time.Duration) *MemoryThrottle {
	return &MemoryThrottle{window: window, now: time.Now, markers: map[string]time.Time{}}
}

func (t *MemoryThrottle) ShouldNotify(ctx context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if at, ok := t.markers[key]; ok && now.Sub(at) < t.window {
		return false, nil
	}
	t.markers[key] = now
	if len(t.markers) > 10000 {
		for k, at := range t.markers {
			if now.Sub(at) >= t.window {
				delete(t.markers, k)
			}
		}
	}
	return true, nil
}
