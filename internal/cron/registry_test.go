package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresJobs(t *testing.T) {
	registry := NewRegistry(nil)
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	registry.Register(jobA)
	registry.Register(jobB)
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("jobs returned out of order")
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

type countingPurger struct{ calls, n int }

func (c *countingPurger) Purge() int { c.calls++; return c.n }

type countingSweeper struct {
	calls int
	err   error
}

func (c *countingSweeper) Sweep(context.Context) (int, error) { c.calls++; return 2, c.err }

func TestSweepJobs(t *testing.T) {
	p := &countingPurger{n: 3}
	purge, err := NewDedupPurgeJob(p, nil)
	if err != nil {
		t.Fatalf("new purge job: %v", err)
	}
	if err := purge.Run(context.Background()); err != nil || p.calls != 1 {
		t.Fatalf("purge run: err=%v calls=%d", err, p.calls)
	}

	s := &countingSweeper{}
	sweep, err := NewPendingAuthSweepJob(s, nil)
	if err != nil {
		t.Fatalf("new sweep job: %v", err)
	}
	if err := sweep.Run(context.Background()); err != nil || s.calls != 1 {
		t.Fatalf("sweep run: err=%v calls=%d", err, s.calls)
	}

	if _, err := NewDedupPurgeJob(nil, nil); err == nil {
		t.Fatalf("expected error for nil cache")
	}
}
