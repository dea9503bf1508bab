package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/phoenix-backend/pkg/logger"
)

type purger interface {
	Purge() int
}

type sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// NewDedupPurgeJob drops expired processed-event records.
func NewDedupPurgeJob(cache purger, logg *logger.Logger) (Job, error) {
	if cache == nil {
		return nil, fmt.Errorf("dedup cache required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &dedupPurgeJob{cache: cache, logg: logg}, nil
}

type dedupPurgeJob struct {
	cache purger
	logg  *logger.Logger
}

func (j *dedupPurgeJob) Name() string { return "dedup-purge" }

func (j *dedupPurgeJob) Run(ctx context.Context) error {
	if n := j.cache.Purge(); n > 0 {
		j.logg.Info(j.logg.WithField(ctx, "purged", n), "dedup.expired_events_purged")
	}
	return nil
}

// NewPendingAuthSweepJob expires staged auto-login tokens.
func NewPendingAuthSweepJob(store sweeper, logg *logger.Logger) (Job, error) {
	if store == nil {
		return nil, fmt.Errorf("pending auth store required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &pendingAuthSweepJob{store: store, logg: logg}, nil
}

type pendingAuthSweepJob struct {
	store sweeper
	logg  *logger.Logger
}

func (j *pendingAuthSweepJob) Name() string { return "pending-auth-sweep" }

func (j *pendingAuthSweepJob) Run(ctx context.Context) error {
	n, err := j.store.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep pending auth: %w", err)
	}
	if n > 0 {
		j.logg.Info(j.logg.WithField(ctx, "expired", n), "pendingauth.expired_tokens_swept")
	}
	return nil
}
