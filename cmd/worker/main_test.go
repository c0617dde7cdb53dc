package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"airemaster/internal/jobs"
)

type stubClaimer struct {
	olderThan time.Duration
	limit     int
	jobs      []*jobs.Job
	err       error
}

func (s *stubClaimer) ClaimOrphaned(_ context.Context, olderThan time.Duration, limit int) ([]*jobs.Job, error) {
	s.olderThan, s.limit = olderThan, limit
	if len(s.jobs) > limit {
		return s.jobs[:limit], s.err
	}
	return s.jobs, s.err
}

type stubResumer struct {
	active  int
	resumed []string
	fail    string
}

func (s *stubResumer) Resume(job *jobs.Job) error {
	if job.ID == s.fail {
		return errors.New("closed")
	}
	s.resumed = append(s.resumed, job.ID)
	return nil
}

func (s *stubResumer) Active() int { return s.active }

func newWorker(c *stubClaimer, r *stubResumer) *jobWorker {
	return &jobWorker{
		ctx:         context.Background(),
		claims:      c,
		jobs:        r,
		logger:      zerolog.Nop(),
		interval:    time.Millisecond,
		orphanAfter: 11 * time.Minute,
		capacity:    3,
	}
}

func TestScanClaimsFreeSlots(t *testing.T) {
	c := &stubClaimer{jobs: []*jobs.Job{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	r := &stubResumer{active: 1, fail: "b"}
	n, err := newWorker(c, r).scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if c.limit != 2 || c.olderThan != 11*time.Minute {
		t.Fatalf("claim args = %s, %d", c.olderThan, c.limit)
	}
	if n != 1 || len(r.resumed) != 1 || r.resumed[0] != "a" {
		t.Fatalf("resumed %d %v", n, r.resumed)
	}
}

func TestScanSkipsWhenFull(t *testing.T) {
	c := &stubClaimer{jobs: []*jobs.Job{{ID: "a"}}}
	r := &stubResumer{active: 3}
	if n, err := newWorker(c, r).scan(); err != nil || n != 0 || c.limit != 0 {
		t.Fatalf("scan when full = %d, %v (limit %d)", n, err, c.limit)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &stubClaimer{err: errors.New("db down")}
	w := newWorker(c, &stubResumer{})
	w.ctx = ctx
	done := make(chan error, 1)
	go func() { done <- w.Run() }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
