package pendingauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/phoenix-backend/pkg/redis"
)

type keyValue interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	PendingAuthKey(sessionID string) string
}

// RedisStore shares staged tokens between instances. The validity window is the
// key TTL; the first read shortens it to the read grace.
type RedisStore struct {
	kv        keyValue
	validity  time.Duration
	readGrace time.Duration
	now       func() time.Time
}

func NewRedisStore(kv keyValue, validity, readGrace time.Duration) (*RedisStore, error) {
	if kv == nil {
		return nil, errors.New("redis client is required")
	}
	if validity <= 0 {
		validity = DefaultValidity
	}
	if readGrace <= 0 {
		readGrace = DefaultReadGrace
	}
	return &RedisStore{kv: kv, validity: validity, readGrace: readGrace, now: time.Now}, nil
}

func (s *RedisStore) Put(ctx context.Context, sessionID string, tokens Tokens) error {
	if sessionID == "" {
		return errSessionIDRequired
	}
	if tokens.CreatedAt.IsZero() {
		tokens.CreatedAt = s.now().UTC()
	}
	raw, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("marshal pending tokens: %w", err)
	}
	return s.kv.Set(ctx, s.kv.PendingAuthKey(sessionID), string(raw), s.validity)
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Tokens, error) {
	if sessionID == "" {
		return nil, errSessionIDRequired
	}
	key := s.kv.PendingAuthKey(sessionID)
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if redis.IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load pending tokens: %w", err)
	}
	var tokens Tokens
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return nil, fmt.Errorf("decode pending tokens: %w", err)
	}

	remaining := s.validity - s.now().Sub(tokens.CreatedAt)
	if remaining > s.readGrace {
		if _, err := s.kv.Expire(ctx, key, s.readGrace); err != nil {
			return nil, fmt.Errorf("shorten pending tokens ttl: %w", err)
		}
	}
	return &tokens, nil
}

// Sweep is a no-op: Redis expires keys on its own.
func (s *RedisStore) Sweep(context.Context) (int, error) {
	return 0, nil
}
