package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"AIBank-Agent/pkg/logger"
)

// Cache stores resolved lookups. Implementations treat every backend failure
// as a miss.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool)
	Set(ctx context.Context, key string, result Result, ttl time.Duration)
}

type memoryEntry struct {
	result     Result
	expiresAt  time.Time
	accessedAt time.Time
}

// Memory cache defaults.
const (
	DefaultMaxEntries    = 1024
	DefaultSweepInterval = time.Minute
)

// MemoryCache is an in-process cache with per-entry expiry. It holds at most
// maxEntries results, evicting the least recently used one when full, and a
// background sweep drops expired entries.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	maxEntries int
	now        func() time.Time

	ticker    *time.Ticker
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// MemoryCacheConfig bounds a MemoryCache. Zero values select the defaults;
// a negative SweepInterval disables the background sweep.
type MemoryCacheConfig struct {
	MaxEntries    int
	SweepInterval time.Duration
}

// NewMemoryCache creates an empty cache with the default bounds.
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithConfig(MemoryCacheConfig{})
}

// NewMemoryCacheWithConfig creates an empty cache and starts its sweep.
func NewMemoryCacheWithConfig(cfg MemoryCacheConfig) *MemoryCache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	m := &MemoryCache{
		entries:    make(map[string]*memoryEntry),
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		m.ticker = time.NewTicker(cfg.SweepInterval)
		m.wg.Add(1)
		go m.sweepLoop()
	}
	return m
}

func (m *MemoryCache) sweepLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ticker.C:
			m.mu.Lock()
			m.removeExpiredLocked()
			m.mu.Unlock()
		case <-m.stop:
			return
		}
	}
}

func (m *MemoryCache) expired(entry *memoryEntry, now time.Time) bool {
	return !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt)
}

func (m *MemoryCache) removeExpiredLocked() {
	now := m.now()
	for key, entry := range m.entries {
		if m.expired(entry, now) {
			delete(m.entries, key)
		}
	}
}

func (m *MemoryCache) evictLRULocked() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, entry := range m.entries {
		if oldestKey == "" || entry.accessedAt.Before(oldest) {
			oldestKey, oldest = key, entry.accessedAt
		}
	}
	delete(m.entries, oldestKey)
}

// Get returns a live entry and evicts an expired one.
func (m *MemoryCache) Get(_ context.Context, key string) (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return Result{}, false
	}
	now := m.now()
	if m.expired(entry, now) {
		delete(m.entries, key)
		return Result{}, false
	}
	entry.accessedAt = now
	return entry.result, true
}

// Set stores result. A non-positive ttl never expires.
func (m *MemoryCache) Set(_ context.Context, key string, result Result, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		m.removeExpiredLocked()
		if len(m.entries) >= m.maxEntries {
			m.evictLRULocked()
		}
	}
	entry := &memoryEntry{result: result, accessedAt: now}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	m.entries[key] = entry
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the background sweep.
func (m *MemoryCache) Close() error {
	m.closeOnce.Do(func() {
		if m.ticker != nil {
			m.ticker.Stop()
		}
		close(m.stop)
		m.wg.Wait()
	})
	return nil
}

// RedisCacheConfig describes the Redis connection of the shared cache.
type RedisCacheConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// RedisCache shares lookups between instances.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisCache connects and pings Redis.
func NewRedisCache(ctx context.Context, cfg RedisCacheConfig) (*RedisCache, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisCacheFromClient(client, cfg.Prefix), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, logger: logger.Named("geocode-cache")}
}

// Get reads and decodes an entry.
func (r *RedisCache) Get(ctx context.Context, key string) (Result, bool) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("redis cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		return Result{}, false
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		r.logger.Warn("redis cache entry is corrupt", slog.String("key", key), slog.Any("error", err))
		return Result{}, false
	}
	return result, true
}

// Set encodes and writes an entry.
func (r *RedisCache) Set(ctx context.Context, key string, result Result, ttl time.Duration) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, ttl).Err(); err != nil {
		r.logger.Warn("redis cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

// Close releases the Redis connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
