package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const claimPrefix = "monthly-cycle:v1:"

// Claimer hands out at-most-once ownership of a key.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisClaimer coordinates replicas through SETNX.
type RedisClaimer struct {
	cache *redis.Client
}

// NewRedisClaimer constructs a Redis-backed claimer.
func NewRedisClaimer(cache *redis.Client) *RedisClaimer {
	return &RedisClaimer{cache: cache}
}

func (r *RedisClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.cache.SetNX(ctx, claimPrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (r *RedisClaimer) Release(ctx context.Context, key string) error {
	return r.cache.Del(ctx, claimPrefix+key).Err()
}

// localClaimer only protects a single process.
type localClaimer struct {
	mu      sync.Mutex
	claimed map[string]time.Time
}

func newLocalClaimer() *localClaimer {
	return &localClaimer{claimed: make(map[string]time.Time)}
}

func (l *localClaimer) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if expires, ok := l.claimed[key]; ok && now.Before(expires) {
		return false, nil
	}
	l.claimed[key] = now.Add(ttl)
	return true, nil
}

func (l *localClaimer) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claimed, key)
	return nil
}
