// Package redis implements the statistics idempotency guard on Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wonderwork/funnel-upsell/internal/domain/statistic"
)

// DefaultKeyPrefix namespaces idempotency keys.
const DefaultKeyPrefix = "funnel:idempotency:"

var _ statistic.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore claims keys with SET NX so that concurrent instances agree
// on the first claimant.
type IdempotencyStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewIdempotencyStore returns a store using client. An empty keyPrefix selects
// DefaultKeyPrefix.
func NewIdempotencyStore(client redis.UniversalClient, keyPrefix string) *IdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &IdempotencyStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// NewClient parses a redis:// URL and verifies the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// Claim reports whether key was newly claimed.
func (s *IdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming %q: %w", key, err)
	}
	return ok, nil
}

// Release drops a claim so the operation can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("releasing %q: %w", key, err)
	}
	return nil
}
