package dedup

import (
	"context"
	"errors"
)

// Guard adapts a Store to the check-then-release flow used by webhook controllers.
type Guard struct {
	store Store
}

func NewGuard(store Store) (*Guard, error) {
	if store == nil {
		return nil, errors.New("dedup store is required")
	}
	return &Guard{store: store}, nil
}

// CheckAndMark reports whether the event was already processed, marking it otherwise.
func (g *Guard) CheckAndMark(ctx context.Context, eventID, eventType string) (bool, error) {
	acquired, err := g.store.TryAcquire(ctx, eventID, eventType)
	if err != nil {
		return false, err
	}
	return !acquired, nil
}

// Delete releases the marker so a provider retry is processed again.
func (g *Guard) Delete(ctx context.Context, eventID string) error {
	return g.store.Release(ctx, eventID)
}
