package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type memStore struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	writes int
}

func newMemStore() *memStore { return &memStore{jobs: map[string]*Job{}} }

func (s *memStore) Insert(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	cp := *job
	return &cp, nil
}

func (s *memStore) UpdateStatus(_ context.Context, id string, from Status, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	if job.Status != from {
		return ErrStatusConflict
	}
	s.writes++
	job.Status = u.Status
	job.ResultReference = u.ResultReference
	if u.LastError != "" {
		job.LastError = u.LastError
	}
	job.Attempts = u.Attempts
	return nil
}

func (s *memStore) RequestCancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.CancelRequested = true
	}
	return nil
}

func (s *memStore) CancelRequested(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	return ok && job.CancelRequested, nil
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// scriptedProvider answers checks from a script and repeats the last entry.
type scriptedProvider struct {
	mu        sync.Mutex
	script    []Observation
	checkErr  error
	submitErr error
	checks    int
	cancelled []string
	checked   chan struct{}
}

func (p *scriptedProvider) Submit(_ context.Context, req Request) (Handle, error) {
	if p.submitErr != nil {
		return Handle{}, p.submitErr
	}
	return Handle{ExternalID: "ext-1", StatusURL: "https://provider.test/predictions/ext-1"}, nil
}

func (p *scriptedProvider) Check(_ context.Context, _ Handle) (Observation, error) {
	p.mu.Lock()
	p.checks++
	n := p.checks
	p.mu.Unlock()
	if p.checked != nil {
		select {
		case p.checked <- struct{}{}:
		default:
		}
	}
	if p.checkErr != nil {
		return Observation{}, p.checkErr
	}
	if len(p.script) == 0 {
		return Observation{Status: "processing"}, nil
	}
	idx := n - 1
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	return p.script[idx], nil
}

func (p *scriptedProvider) CancelExternal(_ context.Context, h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, h.ExternalID)
	return nil
}

func (p *scriptedProvider) checkCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checks
}

func testMapping(t *testing.T) StatusMapping {
	t.Helper()
	m, err := ParseStatusMapping("succeeded=succeeded,failed=failed,canceled=failed,starting=pending,processing=pending")
	if err != nil {
		t.Fatalf("mapping: %v", err)
	}
	return m
}

func newTestPoller(t *testing.T, store Store, provider Provider) *Poller {
	t.Helper()
	p, err := NewPoller(Options{
		Providers:   map[string]Provider{"replicate": provider},
		Store:       store,
		Mapping:     testMapping(t),
		OrphanAfter: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	return p
}

func fastConfig(maxAttempts int) PollConfig {
	return PollConfig{Interval: time.Millisecond, MaxAttempts: maxAttempts, BackoffMultiplier: 1.5, MaxInterval: 4 * time.Millisecond}
}

func submitJob(t *testing.T, p *Poller) *Job {
	t.Helper()
	job, err := p.Submit(context.Background(), Request{OwnerID: "owner", Kind: KindUpscale, Provider: "replicate", Input: map[string]any{"image": "https://in/a.png"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return job
}

func TestAwaitCompletionSucceedsAfterPendingChecks(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{script: []Observation{
		{Status: "processing"},
		{Status: "processing"},
		{Status: "succeeded", Output: "https://x/y.png"},
	}}
	p := newTestPoller(t, store, provider)
	job := submitJob(t, p)

	res, err := p.AwaitCompletion(context.Background(), job, PollConfig{Interval: time.Millisecond, MaxAttempts: 10})
	if err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	if res != "https://x/y.png" {
		t.Fatalf("result = %q", res)
	}
	if provider.checkCount() != 3 {
		t.Fatalf("checks = %d, want 3", provider.checkCount())
	}
	stored, _ := store.Get(context.Background(), job.ID)
	if stored.Status != StatusSucceeded || stored.ResultReference != "https://x/y.png" || stored.Attempts != 3 {
		t.Fatalf("stored job = %+v", stored)
	}
}

func TestAwaitCompletionImmediateSuccessChecksOnce(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{script: []Observation{{Status: "succeeded", Output: "https://x/1.png"}}}
	p := newTestPoller(t, store, provider)
	job := submitJob(t, p)

	if _, err := p.AwaitCompletion(context.Background(), job, fastConfig(5)); err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	if provider.checkCount() != 1 {
		t.Fatalf("checks = %d, want 1", provider.checkCount())
	}
}

func TestAwaitCompletionBoundsChecks(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{}
	p := newTestPoller(t, store, provider)
	job := submitJob(t, p)

	_, err := p.AwaitCompletion(context.Background(), job, fastConfig(4))
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if provider.checkCount() != 4 {
		t.Fatalf("checks = %d, want 4", provider.checkCount())
	}
	stored, _ := store.Get(context.Background(), job.ID)
	if stored.Status != StatusTimedOut || stored.ResultReference != "" {
		t.Fatalf("stored job = %+v", stored)
	}
}

func TestAwaitCompletionCheckErrorsConsumeAttempts(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{checkErr: errors.New("connection reset")}
	p := newTestPoller(t, store, provider)
	job := submitJob(t, p)

	_, err := p.AwaitCompletion(context.Background(), job, fastConfig(3))
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if provider.checkCount() != 3 {
		t.Fatalf("checks = %d, want 3", provider.checkCount())
	}
}

func TestAwaitCompletionWallClockCeiling(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{}
	p := newTestPoller(t, store, provider)
	job := submitJob(t, p)

	cfg := PollConfig{Interval: 5 * time.Millisecond, MaxAttempts: 100000, MaxDuration: 40 * time.Millisecond}
	start := time.Now()
	_, err := p.AwaitCompletion(context.Background(), job, cfg)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("wall-clock ceiling not honoured: %s", elapsed)
	}
	if p.Active() != 0 {
		t.Fatalf("active pollers = %d, want 0", p.Active())
	}
	stored, _ := store.Get(context.Background(), job.ID)
	if stored.Status != StatusTimedOut {
		t.Fatalf("stored status = %s", stored.Status)
	}
}

func TestAwaitCompletionProviderFailure(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{script: []Observation{{Status: "failed", Error: "NSFW content detected"}}}
	p := newTestPoller(t, store, provider)
	job := submitJob(t, p)

	_, err := p.AwaitCompletion(context.Background(), job, fastConfig(5))
	var jobErr *JobError
	if !errors.As(err, &jobErr) || jobErr.Kind != ErrorProviderFailed || jobErr.Message != "NSFW content detected" {
		t.Fatalf("expected provider failure, got %v", err)
	}
}

func TestAwaitCompletionSuccessWithoutOutputFails(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{script: []Observation{{Status: "succeeded"}}}
	p := newTestPoller(t, store, provider)
	job := submitJob(t, p)

	_, err := p.AwaitCompletion(context.Background(), job, fastConfig(5))
	if !errors.Is(err, ErrProviderFailed) {
		t.Fatalf("expected ErrProviderFailed, got %v", err)
	}
	stored, _ := store.Get(context.Background(), job.ID)
	if stored.Status != StatusFailed || stored.ResultReference != "" {
		t.Fatalf("stored job = %+v", stored)
	}
}

func TestAwaitCompletionUnknownStatusIsPending(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{script: []Observation{
		{Status: "warming-up"},
		{Status: "succeeded", Output: "https://x/2.png"},
	}}
	p := newTestPoller(t, store, provider)
	job := submitJob(t, p)

	res, err := p.AwaitCompletion(context.Background(), job, fastConfig(5))
	if err != nil || res != "https://x/2.png" {
		t.Fatalf("AwaitCompletion = %q, %v", res, err)
	}
	if provider.checkCount() != 2 {
		t.Fatalf("checks = %d, want 2", provider.checkCount())
	}
}

func TestAwaitCompletionTerminalJobIsNotPolled(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{}
	p := newTestPoller(t, store, provider)
	job := &Job{ID: "done", Provider: "replicate", Status: StatusSucceeded, ResultReference: "https://x/done.png"}
	_ = store.Insert(context.Background(), job)

	res, err := p.AwaitCompletion(context.Background(), job, fastConfig(5))
	if err != nil || res != "https://x/done.png" {
		t.Fatalf("AwaitCompletion = %q, %v", res, err)
	}
	if provider.checkCount() != 0 || store.writeCount() != 0 {
		t.Fatalf("terminal job touched: checks=%d writes=%d", provider.checkCount(), store.writeCount())
	}
}

func TestAwaitCompletionRejectsInvalidConfig(t *testing.T) {
	store := newMemStore()
	p := newTestPoller(t, store, &scriptedProvider{})
	job := submitJob(t, p)
	if _, err := p.AwaitCompletion(context.Background(), job, PollConfig{Interval: time.Millisecond}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestAwaitCompletionRejectsDurationPastOrphanThreshold(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{}
	p := newTestPoller(t, store, provider)
	job := submitJob(t, p)
	cfg := fastConfig(3)
	cfg.MaxDuration = time.Minute
	if _, err := p.AwaitCompletion(context.Background(), job, cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if provider.checkCount() != 0 {
		t.Fatalf("provider checked %d times", provider.checkCount())
	}
	cfg.MaxDuration = 30 * time.Second
	if err := p.CheckConfig(cfg); err != nil {
		t.Fatalf("CheckConfig: %v", err)
	}
}

func TestCancelStopsActivePoller(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{checked: make(chan struct{}, 1)}
	p := newTestPoller(t, store, provider)
	job := submitJob(t, p)

	type result struct {
		res string
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := p.AwaitCompletion(context.Background(), job, PollConfig{Interval: 10 * time.Millisecond, MaxAttempts: 100000})
		done <- result{res, err}
	}()

	select {
	case <-provider.checked:
	case <-time.After(2 * time.Second):
		t.Fatal("poller never checked")
	}
	if err := p.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got := <-done
	if !errors.Is(got.err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", got.err)
	}
	checks := provider.checkCount()
	time.Sleep(40 * time.Millisecond)
	if provider.checkCount() != checks {
		t.Fatalf("checks continued after cancel: %d -> %d", checks, provider.checkCount())
	}
	stored, _ := store.Get(context.Background(), job.ID)
	if stored.Status != StatusFailed || stored.LastError != ReasonCancelled {
		t.Fatalf("stored job = %+v", stored)
	}
	if p.Active() != 0 {
		t.Fatalf("active pollers = %d", p.Active())
	}
}

func TestCancelFlagStopsPollerOnNextTick(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{}
	p := newTestPoller(t, store, provider)
	job := submitJob(t, p)
	_ = store.RequestCancel(context.Background(), job.ID)

	_, err := p.AwaitCompletion(context.Background(), job, fastConfig(10))
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if provider.checkCount() != 0 {
		t.Fatalf("checks = %d, want 0", provider.checkCount())
	}
}

func TestCancelSubmittedJobWithoutPoller(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{}
	p := newTestPoller(t, store, provider)
	job := submitJob(t, p)

	if err := p.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	stored, _ := store.Get(context.Background(), job.ID)
	if stored.Status != StatusFailed || stored.LastError != ReasonCancelled {
		t.Fatalf("stored job = %+v", stored)
	}
	if len(provider.cancelled) != 1 || provider.cancelled[0] != "ext-1" {
		t.Fatalf("provider-side cancel = %v", provider.cancelled)
	}

	// the stale in-memory copy must not resurrect the job
	_, err := p.AwaitCompletion(context.Background(), job, fastConfig(3))
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if provider.checkCount() != 0 {
		t.Fatalf("checks = %d, want 0", provider.checkCount())
	}
}

func TestCancelTerminalJobIsNoop(t *testing.T) {
	store := newMemStore()
	p := newTestPoller(t, store, &scriptedProvider{})
	job := &Job{ID: "t1", Provider: "replicate", Status: StatusSucceeded, ResultReference: "r"}
	_ = store.Insert(context.Background(), job)

	if err := p.Cancel(context.Background(), "t1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if store.writeCount() != 0 {
		t.Fatalf("writes = %d, want 0", store.writeCount())
	}
}

func TestParentCancelLeavesJobPolling(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{checked: make(chan struct{}, 1)}
	p := newTestPoller(t, store, provider)
	job := submitJob(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.AwaitCompletion(ctx, job, PollConfig{Interval: 10 * time.Millisecond, MaxAttempts: 100000})
		done <- err
	}()
	<-provider.checked
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	stored, _ := store.Get(context.Background(), job.ID)
	if stored.Status != StatusPolling {
		t.Fatalf("stored status = %s, want polling", stored.Status)
	}
}

func TestSecondPollerIsRejected(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{checked: make(chan struct{}, 1)}
	p := newTestPoller(t, store, provider)
	job := submitJob(t, p)

	done := make(chan error, 1)
	go func() {
		_, err := p.AwaitCompletion(context.Background(), job, PollConfig{Interval: 10 * time.Millisecond, MaxAttempts: 100000})
		done <- err
	}()
	<-provider.checked

	again, _ := store.Get(context.Background(), job.ID)
	if _, err := p.AwaitCompletion(context.Background(), again, fastConfig(3)); !errors.Is(err, ErrAlreadyPolling) {
		t.Fatalf("expected ErrAlreadyPolling, got %v", err)
	}
	if err := p.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	<-done
}

func TestSubmitFailureRecordsFailedJob(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{submitErr: errors.New("401 unauthorized")}
	p := newTestPoller(t, store, provider)

	job, err := p.Submit(context.Background(), Request{Kind: KindUpscale, Provider: "replicate"})
	var subErr *SubmissionError
	if !errors.As(err, &subErr) || subErr.Provider != "replicate" {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
	stored, getErr := store.Get(context.Background(), job.ID)
	if getErr != nil {
		t.Fatalf("Get: %v", getErr)
	}
	if stored.Status != StatusFailed || stored.LastError == "" {
		t.Fatalf("stored job = %+v", stored)
	}
}

func TestSubmitUnknownProvider(t *testing.T) {
	p := newTestPoller(t, newMemStore(), &scriptedProvider{})
	if _, err := p.Submit(context.Background(), Request{Kind: KindUpscale, Provider: "nope"}); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}
