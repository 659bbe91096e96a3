package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrDuplicateCommand is returned when a command ID was already processed
var ErrDuplicateCommand = errors.New("duplicate command")

// Deduplicator remembers command IDs for a bounded time
type Deduplicator interface {
	// Claim records key and reports whether it was new
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so a failed command can be retried
	Release(ctx context.Context, key string) error
}

// MemoryDeduplicator keeps command IDs in an in-process expiring LRU.
// It only deduplicates within one process.
type MemoryDeduplicator struct {
	mu    sync.Mutex
	cache *lru.LRU[string, struct{}]
}

// NewMemoryDeduplicator remembers up to size keys for ttl each
func NewMemoryDeduplicator(size int, ttl time.Duration) *MemoryDeduplicator {
	return &MemoryDeduplicator{
		cache: lru.NewLRU[string, struct{}](size, nil, ttl),
	}
}

func (d *MemoryDeduplicator) Claim(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.cache.Peek(key); ok {
		return false, nil
	}
	d.cache.Add(key, struct{}{})
	return true, nil
}

func (d *MemoryDeduplicator) Release(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache.Remove(key)
	return nil
}

// RedisDeduplicator claims command IDs with SETNX so every replica shares them
type RedisDeduplicator struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDeduplicator stores keys under prefix with the given ttl
func NewRedisDeduplicator(client *redis.Client, prefix string, ttl time.Duration) *RedisDeduplicator {
	if prefix == "" {
		prefix = "warden:cmd:"
	}
	return &RedisDeduplicator{client: client, prefix: prefix, ttl: ttl}
}

func (d *RedisDeduplicator) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, time.Now().UTC().Format(time.RFC3339Nano), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim command %s: %w", key, err)
	}
	return ok, nil
}

func (d *RedisDeduplicator) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release command %s: %w", key, err)
	}
	return nil
}
