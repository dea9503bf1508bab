package dedup

import (
	"context"
	"fmt"
	"time"
)

const webhookScope = "stripe-webhook"

type keyValue interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// RedisStore shares processed-event markers between instances.
type RedisStore struct {
	kv  keyValue
	ttl time.Duration
}

func NewRedisStore(kv keyValue, ttl time.Duration) (*RedisStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{kv: kv, ttl: ttl}, nil
}

func (s *RedisStore) TryAcquire(ctx context.Context, eventID, eventType string) (bool, error) {
	if eventID == "" {
		return false, errEventIDRequired
	}
	set, err := s.kv.SetNX(ctx, s.kv.IdempotencyKey(webhookScope, eventID), eventType, s.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return set, nil
}

func (s *RedisStore) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errEventIDRequired
	}
	return s.kv.Del(ctx, s.kv.IdempotencyKey(webhookScope, eventID))
}
