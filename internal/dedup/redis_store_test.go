package dedup

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubKV struct {
	keys   map[string]time.Duration
	setErr error
}

func (s *stubKV) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	if s.setErr != nil {
		return false, s.setErr
	}
	if s.keys == nil {
		s.keys = map[string]time.Duration{}
	}
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = ttl
	return true, nil
}

func (s *stubKV) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(s.keys, k)
	}
	return nil
}

func (s *stubKV) IdempotencyKey(scope, id string) string {
	return "phx:idempotency:" + scope + ":" + id
}

func TestRedisStoreAcquireAndRelease(t *testing.T) {
	kv := &stubKV{}
	store, err := NewRedisStore(kv, time.Hour)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if ok, _ := store.TryAcquire(ctx, "evt_1", "invoice.paid"); !ok {
		t.Fatalf("expected first acquire")
	}
	if ttl := kv.keys["phx:idempotency:stripe-webhook:evt_1"]; ttl != time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	if ok, _ := store.TryAcquire(ctx, "evt_1", "invoice.paid"); ok {
		t.Fatalf("expected duplicate")
	}
	if err := store.Release(ctx, "evt_1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := store.TryAcquire(ctx, "evt_1", "invoice.paid"); !ok {
		t.Fatalf("expected acquire after release")
	}
}

func TestRedisStorePropagatesErrors(t *testing.T) {
	store, _ := NewRedisStore(&stubKV{setErr: errors.New("conn refused")}, time.Hour)
	if _, err := store.TryAcquire(context.Background(), "evt_1", "t"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestGuardInvertsAcquire(t *testing.T) {
	guard, err := NewGuard(NewCache(CacheOptions{}))
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	ctx := context.Background()
	if dup, _ := guard.CheckAndMark(ctx, "evt_1", "t"); dup {
		t.Fatalf("first delivery is not a duplicate")
	}
	if dup, _ := guard.CheckAndMark(ctx, "evt_1", "t"); !dup {
		t.Fatalf("second delivery is a duplicate")
	}
	_ = guard.Delete(ctx, "evt_1")
	if dup, _ := guard.CheckAndMark(ctx, "evt_1", "t"); dup {
		t.Fatalf("released delivery is not a duplicate")
	}
}
