// Package lock provides distributed mutual exclusion for order submission
// across cooperating instances of the runtime, grounded on
// the reference codebase's lock package (Redis-backed SETNX/Lua lock, with a
// no-op fallback for single-instance deployments).
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistributedLock is the mutual-exclusion capability the order router uses
// to coordinate order submission across processes.
type DistributedLock interface {
	Lock(ctx context.Context, key string, ttl time.Duration) error
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Extend(ctx context.Context, key string, ttl time.Duration) error
	Close() error
}

// RedisConfig configures the backing Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Config selects and configures a DistributedLock implementation.
type Config struct {
	Enabled bool
	Prefix  string
	Redis   RedisConfig
}

// New builds a DistributedLock per config. When disabled, it returns a
// zero-overhead NopLock suitable for single-instance deployments.
func New(config Config) (DistributedLock, error) {
	if !config.Enabled {
		return NewNopLock(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})
	return NewRedisLock(client, config.Prefix), nil
}

// NopLock is a no-op DistributedLock for single-instance mode: every Lock
// and TryLock call succeeds immediately.
type NopLock struct{}

func NewNopLock() *NopLock { return &NopLock{} }

func (n *NopLock) Lock(ctx context.Context, key string, ttl time.Duration) error { return nil }
func (n *NopLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (n *NopLock) Unlock(ctx context.Context, key string) error                   { return nil }
func (n *NopLock) Extend(ctx context.Context, key string, ttl time.Duration) error { return nil }
func (n *NopLock) Close() error                                                    { return nil }

// RedisLock implements DistributedLock with Redis SETNX and a compare-and-
// delete/expire Lua script so only the holder can release or extend a key.
type RedisLock struct {
	client *redis.Client
	prefix string

	mu       sync.Mutex
	lockKeys map[string]string // held key -> token, guarded by mu
}

func NewRedisLock(client *redis.Client, prefix string) *RedisLock {
	return &RedisLock{
		client:   client,
		prefix:   prefix,
		lockKeys: make(map[string]string),
	}
}

func generateToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Lock blocks, polling every 100ms, until it acquires key or ctx is done.
func (r *RedisLock) Lock(ctx context.Context, key string, ttl time.Duration) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		ok, err := r.TryLock(ctx, key, ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// TryLock attempts to acquire key without blocking.
func (r *RedisLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	lockKey := r.prefix + key
	token := generateToken()

	ok, err := r.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock: redis setnx failed: %w", err)
	}
	if ok {
		r.mu.Lock()
		r.lockKeys[key] = token
		r.mu.Unlock()
	}
	return ok, nil
}

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Unlock releases key, but only if this instance still holds its token.
func (r *RedisLock) Unlock(ctx context.Context, key string) error {
	r.mu.Lock()
	token, exists := r.lockKeys[key]
	r.mu.Unlock()
	if !exists {
		return fmt.Errorf("lock: not held: %s", key)
	}

	lockKey := r.prefix + key
	result, err := r.client.Eval(ctx, unlockScript, []string{lockKey}, token).Result()
	if err != nil {
		return fmt.Errorf("lock: redis eval failed: %w", err)
	}
	if n, _ := result.(int64); n == 0 {
		return fmt.Errorf("lock: not held or expired: %s", key)
	}

	r.mu.Lock()
	delete(r.lockKeys, key)
	r.mu.Unlock()
	return nil
}

const extendScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("expire", KEYS[1], ARGV[2])
else
	return 0
end`

// Extend renews the TTL of a lock this instance still holds.
func (r *RedisLock) Extend(ctx context.Context, key string, ttl time.Duration) error {
	r.mu.Lock()
	token, exists := r.lockKeys[key]
	r.mu.Unlock()
	if !exists {
		return fmt.Errorf("lock: not held: %s", key)
	}

	lockKey := r.prefix + key
	result, err := r.client.Eval(ctx, extendScript, []string{lockKey}, token, int(ttl.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("lock: redis eval failed: %w", err)
	}
	if n, _ := result.(int64); n == 0 {
		return fmt.Errorf("lock: not held or expired: %s", key)
	}
	return nil
}

// Close releases the underlying Redis client.
func (r *RedisLock) Close() error {
	return r.client.Close()
}
