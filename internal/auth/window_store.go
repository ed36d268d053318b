// internal/auth/window_store.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateWindow is the fixed-window counter kept per user.
type RateWindow struct {
	Count   int       `json:"count"`
	ResetAt time.Time `json:"resetAt"`
}

// WindowStore owns the per-user rate windows.
//
// Hit applies one fixed-window admission at instant now: a missing or stale
// window (now after ResetAt) restarts at count 0 with ResetAt now+window, then
// the count is incremented unless it already reached quota. It returns the
// window after the hit and whether the hit was admitted.
type WindowStore interface {
	Hit(ctx context.Context, key string, quota int, window time.Duration, now time.Time) (RateWindow, bool, error)
	Get(ctx context.Context, key string) (RateWindow, bool, error)
	Close() error
}

// StoreType names a WindowStore driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

var (
	ErrInvalidStoreType = errors.New("invalid window store type")
	ErrMissingRedis     = errors.New("redis window store requires a client")
)

const defaultWindowKeyPrefix = "ratelimit:"

// StoreOption configures a WindowStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	keyPrefix   string
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithKeyPrefix sets the redis key prefix.
func WithKeyPrefix(prefix string) StoreOption {
	return func(c *storeConfig) {
		c.keyPrefix = prefix
	}
}

// NewWindowStore creates a WindowStore for the given driver.
func NewWindowStore(storeType StoreType, opts ...StoreOption) (WindowStore, error) {
	cfg := &storeConfig{keyPrefix: defaultWindowKeyPrefix}
	for _, opt := range opts {
		opt(cfg)
	}

	switch storeType {
	case StoreTypeMemory, "":
		return NewMemoryWindowStore(), nil
	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrMissingRedis
		}
		return NewRedisWindowStore(cfg.redisClient, cfg.keyPrefix), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStoreType, storeType)
	}
}

// MemoryWindowStore keeps windows in process memory. Stale windows are only
// reset when their owner makes another request, so the map grows with the
// number of distinct users until restart.
type MemoryWindowStore struct {
	mu      sync.RWMutex
	windows map[string]*RateWindow
	locks   *keyLocks
}

// NewMemoryWindowStore creates an empty in-memory store.
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{
		windows: make(map[string]*RateWindow),
		locks:   newKeyLocks(),
	}
}

// Hit implements WindowStore.
func (s *MemoryWindowStore) Hit(ctx context.Context, key string, quota int, window time.Duration, now time.Time) (RateWindow, bool, error) {
	var (
		result  RateWindow
		allowed bool
	)
	err := s.locks.with(key, func() error {
		w := s.load(key)
		if w == nil {
			w = &RateWindow{Count: 0, ResetAt: now.Add(window)}
			s.store(key, w)
		}

		if now.After(w.ResetAt) {
			w.Count = 0
			w.ResetAt = now.Add(window)
		}

		if w.Count < quota {
			w.Count++
			allowed = true
		}
		result = *w
		return nil
	})
	return result, allowed, err
}

// Get implements WindowStore.
func (s *MemoryWindowStore) Get(ctx context.Context, key string) (RateWindow, bool, error) {
	var (
		result RateWindow
		found  bool
	)
	err := s.locks.with(key, func() error {
		if w := s.load(key); w != nil {
			result, found = *w, true
		}
		return nil
	})
	return result, found, err
}

// Len returns the number of windows held, stale ones included.
func (s *MemoryWindowStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows)
}

// Close implements WindowStore.
func (s *MemoryWindowStore) Close() error {
	return nil
}

func (s *MemoryWindowStore) load(key string) *RateWindow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.windows[key]
}

func (s *MemoryWindowStore) store(key string, w *RateWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[key] = w
}

// fixedWindowScript runs the whole check atomically on the server.
// Returns {allowed, count, reset_at_ms}.
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local quota = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call('HMGET', key, 'count', 'reset_at')
local count = tonumber(state[1])
local reset_at = tonumber(state[2])

if count == nil or reset_at == nil or now > reset_at then
    count = 0
    reset_at = now + window
end

local allowed = 0
if count < quota then
    count = count + 1
    allowed = 1
end

redis.call('HSET', key, 'count', count, 'reset_at', reset_at)
redis.call('PEXPIRE', key, (reset_at - now) + window)

return {allowed, count, reset_at}
`)

// RedisWindowStore shares windows between processes through redis.
type RedisWindowStore struct {
	client *redis.Client
	prefix string
}

// NewRedisWindowStore creates a redis-backed store.
func NewRedisWindowStore(client *redis.Client, prefix string) *RedisWindowStore {
	if prefix == "" {
		prefix = defaultWindowKeyPrefix
	}
	return &RedisWindowStore{client: client, prefix: prefix}
}

// Hit implements WindowStore.
func (s *RedisWindowStore) Hit(ctx context.Context, key string, quota int, window time.Duration, now time.Time) (RateWindow, bool, error) {
	res, err := fixedWindowScript.Run(ctx, s.client,
		[]string{s.prefix + key},
		quota, window.Milliseconds(), now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return RateWindow{}, false, err
	}
	if len(res) != 3 {
		return RateWindow{}, false, fmt.Errorf("unexpected script result length %d", len(res))
	}

	return RateWindow{
		Count:   int(res[1]),
		ResetAt: time.UnixMilli(res[2]),
	}, res[0] == 1, nil
}

// Get implements WindowStore.
func (s *RedisWindowStore) Get(ctx context.Context, key string) (RateWindow, bool, error) {
	vals, err := s.client.HMGet(ctx, s.prefix+key, "count", "reset_at").Result()
	if err != nil {
		return RateWindow{}, false, err
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return RateWindow{}, false, nil
	}

	var count, resetAt int64
	if _, err := fmt.Sscan(fmt.Sprint(vals[0]), &count); err != nil {
		return RateWindow{}, false, err
	}
	if _, err := fmt.Sscan(fmt.Sprint(vals[1]), &resetAt); err != nil {
		return RateWindow{}, false, err
	}
	return RateWindow{Count: int(count), ResetAt: time.UnixMilli(resetAt)}, true, nil
}

// Close implements WindowStore.
func (s *RedisWindowStore) Close() error {
	return s.client.Close()
}
