package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// NonceRegistry records nonces per registering origin. A nonce validates
// only for the origin that registered it.
type NonceRegistry interface {
	Register(ctx context.Context, origin, nonce string) error
	Valid(ctx context.Context, origin, nonce string) (bool, error)
}

// MemoryRegistry is the faithful default: nonces live forever and may be
// reused across requests. That matches the observed protocol, which never
// expires or consumes a nonce; deployments wanting stronger CSRF guarantees
// should use NewExpiringRegistry or NewRedisRegistry instead.
type MemoryRegistry struct {
	mu       sync.Mutex
	byOrigin map[string]map[string]struct{}
}

// NewMemoryRegistry creates an empty unbounded registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{byOrigin: make(map[string]map[string]struct{})}
}

func (r *MemoryRegistry) Register(_ context.Context, origin, nonce string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byOrigin[origin]
	if !ok {
		set = make(map[string]struct{})
		r.byOrigin[origin] = set
	}
	set[nonce] = struct{}{}
	return nil
}

func (r *MemoryRegistry) Valid(_ context.Context, origin, nonce string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byOrigin[origin]
	if !ok {
		return false, nil
	}
	_, ok = set[nonce]
	return ok, nil
}

// ExpiringRegistry bounds nonce lifetime and count with an expirable LRU.
type ExpiringRegistry struct {
	cache *lru.LRU[string, struct{}]
}

// NewExpiringRegistry creates a registry holding at most size nonces, each
// valid for ttl.
func NewExpiringRegistry(size int, ttl time.Duration) *ExpiringRegistry {
	return &ExpiringRegistry{cache: lru.NewLRU[string, struct{}](size, nil, ttl)}
}

func registryKey(origin, nonce string) string {
	return origin + "\x00" + nonce
}

func (r *ExpiringRegistry) Register(_ context.Context, origin, nonce string) error {
	r.cache.Add(registryKey(origin, nonce), struct{}{})
	return nil
}

func (r *ExpiringRegistry) Valid(_ context.Context, origin, nonce string) (bool, error) {
	_, ok := r.cache.Get(registryKey(origin, nonce))
	return ok, nil
}

// RedisRegistry shares nonces across processes, with a TTL.
type RedisRegistry struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRegistry creates a redis-backed registry. An empty prefix falls
// back to "stagingauth:nonce".
func NewRedisRegistry(client *redis.Client, prefix string, ttl time.Duration) *RedisRegistry {
	if prefix == "" {
		prefix = "stagingauth:nonce"
	}
	return &RedisRegistry{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisRegistry) key(origin, nonce string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, origin, nonce)
}

func (r *RedisRegistry) Register(ctx context.Context, origin, nonce string) error {
	if err := r.client.Set(ctx, r.key(origin, nonce), "1", r.ttl).Err(); err != nil {
		return fmt.Errorf("nonce register failed: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Valid(ctx context.Context, origin, nonce string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(origin, nonce)).Result()
	if err != nil {
		return false, fmt.Errorf("nonce lookup failed: %w", err)
	}
	return n > 0, nil
}
