package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"airemaster/internal/infra"
)

var (
	errCancelRequested = errors.New("cancel requested")
	errWallClock       = errors.New("wall-clock budget exhausted")
)

// Options configures a Poller.
type Options struct {
	Providers map[string]Provider
	Store     Store
	Mapping   StatusMapping
	Logger    *infra.Logger
	// OrphanAfter is how long a non-terminal job may sit without updates before
	// Cancel assumes no process is polling it. It must exceed the MaxDuration
	// of every AwaitCompletion, or Cancel could fail a job another process is
	// still polling; CheckConfig enforces this. Zero means never.
	OrphanAfter time.Duration
	Now         func() time.Time
	NewID       func() string
}

// Poller submits jobs and drives each one to a terminal state. At most one
// AwaitCompletion runs per job in a process.
type Poller struct {
	providers   map[string]Provider
	store       Store
	mapping     StatusMapping
	logger      *infra.Logger
	orphanAfter time.Duration
	now         func() time.Time
	newID       func() string

	mu     sync.Mutex
	active map[string]*activePoll
}

type activePoll struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// NewPoller validates opts and returns a Poller.
func NewPoller(opts Options) (*Poller, error) {
	if opts.Store == nil {
		return nil, errors.New("jobs: store is required")
	}
	if len(opts.Providers) == 0 {
		return nil, errors.New("jobs: at least one provider is required")
	}
	if len(opts.Mapping) == 0 {
		return nil, errors.New("jobs: status mapping is required")
	}
	p := &Poller{
		providers:   opts.Providers,
		store:       opts.Store,
		mapping:     opts.Mapping,
		logger:      opts.Logger,
		orphanAfter: opts.OrphanAfter,
		now:         opts.Now,
		newID:       opts.NewID,
		active:      make(map[string]*activePoll),
	}
	if p.logger == nil {
		p.logger = infra.NopLogger()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newID == nil {
		p.newID = uuid.NewString
	}
	return p, nil
}

// Submit sends req to its provider and records the job. A provider or transport
// failure is recorded as a failed job and returned as *SubmissionError.
func (p *Poller) Submit(ctx context.Context, req Request) (*Job, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("jobs: unknown kind %q", req.Kind)
	}
	provider, ok := p.providers[req.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, req.Provider)
	}
	now := p.now()
	job := &Job{
		ID:          p.newID(),
		OwnerID:     req.OwnerID,
		Kind:        req.Kind,
		Provider:    req.Provider,
		Model:       req.Model,
		Input:       req.Input,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	logger := p.logger.With().Str("job_id", job.ID).Str("provider", job.Provider).Str("kind", string(job.Kind)).Logger()

	h, err := provider.Submit(ctx, req)
	if err != nil {
		job.Status = StatusFailed
		job.LastError = err.Error()
		if insertErr := p.store.Insert(context.WithoutCancel(ctx), job); insertErr != nil {
			logger.Error().Err(insertErr).Msg("jobs: record failed submission")
		}
		logger.Warn().Err(err).Msg("jobs: submission failed")
		return job, &SubmissionError{Provider: req.Provider, JobID: job.ID, Err: err}
	}

	job.ExternalJobID = h.ExternalID
	job.StatusURL = h.StatusURL
	job.Status = StatusSubmitted
	if err := p.store.Insert(context.WithoutCancel(ctx), job); err != nil {
		p.cancelExternal(ctx, job)
		return nil, fmt.Errorf("jobs: record submitted job: %w", err)
	}
	logger.Info().Str("external_id", h.ExternalID).Msg("jobs: submitted")
	return job, nil
}

// CheckConfig validates cfg and rejects a MaxDuration that does not end the
// poll before the job could be taken for an orphan.
func (p *Poller) CheckConfig(cfg PollConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if p.orphanAfter > 0 && cfg.MaxDuration >= p.orphanAfter {
		return fmt.Errorf("%w: max duration %s is not below the orphan threshold %s", ErrInvalidConfig, cfg.MaxDuration, p.orphanAfter)
	}
	return nil
}

// AwaitCompletion polls the provider until job reaches a terminal state and
// returns the result reference or a *JobError. Terminal outcomes are persisted
// before they are returned. Cancelling ctx stops polling and returns ctx.Err()
// without writing a terminal status.
func (p *Poller) AwaitCompletion(ctx context.Context, job *Job, cfg PollConfig) (string, error) {
	if job == nil {
		return "", errors.New("jobs: nil job")
	}
	if job.Status.Terminal() {
		return job.outcome()
	}
	if err := p.CheckConfig(cfg); err != nil {
		return "", err
	}
	provider, ok := p.providers[job.Provider]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, job.Provider)
	}

	pollCtx, release, err := p.register(ctx, job.ID)
	if err != nil {
		return "", err
	}
	defer release()
	if cfg.MaxDuration > 0 {
		var stop context.CancelFunc
		pollCtx, stop = context.WithTimeoutCause(pollCtx, cfg.MaxDuration, errWallClock)
		defer stop()
	}

	logger := p.logger.With().Str("job_id", job.ID).Str("provider", job.Provider).Logger()

	if job.Status == StatusSubmitted {
		if err := p.transition(ctx, job, Update{Status: StatusPolling}); err != nil {
			if job.Status.Terminal() {
				return job.outcome()
			}
			return "", err
		}
	}

	timer := time.NewTimer(cfg.Interval)
	timer.Stop()
	defer timer.Stop()

	base := job.Attempts
	wait := cfg.Interval
	for attempt := 1; ; attempt++ {
		if result, stop, err := p.interrupted(ctx, pollCtx, job, cfg, base+attempt-1); stop {
			return result, err
		}

		obs, err := provider.Check(pollCtx, job.handle())
		switch {
		case err != nil && pollCtx.Err() != nil:
			// interrupted mid-check; the top of the loop decides how to stop
			continue
		case err != nil:
			logger.Warn().Err(err).Int("attempt", attempt).Msg("jobs: status check failed")
		default:
			if result, done, err := p.observe(ctx, job, obs, base+attempt); done {
				return result, err
			}
			logger.Debug().Int("attempt", attempt).Str("status", obs.Status).Msg("jobs: still running")
		}

		if attempt >= cfg.MaxAttempts {
			return p.finish(ctx, job, Update{
				Status:    StatusTimedOut,
				LastError: fmt.Sprintf("no terminal status after %d checks", attempt),
				Attempts:  base + attempt,
			})
		}

		timer.Reset(wait)
		select {
		case <-pollCtx.Done():
			timer.Stop()
		case <-timer.C:
		}
		wait = cfg.next(wait)
	}
}

// Cancel stops polling for the job. A local poller is signalled and awaited so
// the cancelled state is persisted when Cancel returns; otherwise the cancel
// flag is raised for whichever process polls the job, and jobs nobody polls
// are failed directly. Provider-side cancellation is best effort.
func (p *Poller) Cancel(ctx context.Context, id string) error {
	p.mu.Lock()
	entry := p.active[id]
	p.mu.Unlock()

	if entry != nil {
		entry.cancel(errCancelRequested)
		select {
		case <-entry.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if job, err := p.store.Get(ctx, id); err == nil {
			p.cancelExternal(ctx, job)
		}
		return nil
	}

	job, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	if err := p.store.RequestCancel(ctx, id); err != nil {
		return fmt.Errorf("jobs: request cancel: %w", err)
	}
	p.cancelExternal(ctx, job)
	if job.Status == StatusSubmitted || job.stale(p.now(), p.orphanAfter) {
		_, err := p.finish(ctx, job, Update{Status: StatusFailed, LastError: ReasonCancelled, Attempts: job.Attempts})
		if err != nil && !errors.Is(err, ErrCancelled) && !job.Status.Terminal() {
			return err
		}
	}
	return nil
}

// Active returns the number of jobs currently polled by this process.
func (p *Poller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

func (p *Poller) register(ctx context.Context, id string) (context.Context, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.active[id]; busy {
		return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyPolling, id)
	}
	pollCtx, cancel := context.WithCancelCause(ctx)
	entry := &activePoll{cancel: cancel, done: make(chan struct{})}
	p.active[id] = entry
	return pollCtx, func() {
		p.mu.Lock()
		delete(p.active, id)
		p.mu.Unlock()
		cancel(nil)
		close(entry.done)
	}, nil
}

// interrupted runs at the top of every tick and reports whether polling must stop.
func (p *Poller) interrupted(ctx, pollCtx context.Context, job *Job, cfg PollConfig, checks int) (string, bool, error) {
	if pollCtx.Err() != nil {
		cause := context.Cause(pollCtx)
		switch {
		case errors.Is(cause, errCancelRequested):
			result, err := p.finish(ctx, job, Update{Status: StatusFailed, LastError: ReasonCancelled, Attempts: checks})
			return result, true, err
		case errors.Is(cause, errWallClock):
			result, err := p.finish(ctx, job, Update{
				Status:    StatusTimedOut,
				LastError: fmt.Sprintf("wall-clock budget of %s exhausted", cfg.MaxDuration),
				Attempts:  checks,
			})
			return result, true, err
		default:
			return "", true, ctx.Err()
		}
	}
	requested, err := p.store.CancelRequested(pollCtx, job.ID)
	if err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("jobs: read cancel flag")
		return "", false, nil
	}
	if requested {
		result, err := p.finish(ctx, job, Update{Status: StatusFailed, LastError: ReasonCancelled, Attempts: checks})
		return result, true, err
	}
	return "", false, nil
}

// observe maps one provider observation and finishes the job when it is terminal.
func (p *Poller) observe(ctx context.Context, job *Job, obs Observation, checks int) (string, bool, error) {
	outcome, known := p.mapping.Resolve(obs.Status)
	if !known {
		p.logger.Warn().Str("job_id", job.ID).Str("status", obs.Status).Msg("jobs: unmapped provider status treated as pending")
	}
	var u Update
	switch outcome {
	case OutcomeSucceeded:
		output := strings.TrimSpace(obs.Output)
		if output == "" {
			u = Update{Status: StatusFailed, LastError: "provider reported success without output"}
		} else {
			u = Update{Status: StatusSucceeded, ResultReference: output}
		}
	case OutcomeFailed:
		msg := strings.TrimSpace(obs.Error)
		if msg == "" {
			msg = fmt.Sprintf("provider status %q", obs.Status)
		}
		u = Update{Status: StatusFailed, LastError: msg}
	case OutcomeTimedOut:
		u = Update{Status: StatusTimedOut, LastError: fmt.Sprintf("provider status %q", obs.Status)}
	default:
		return "", false, nil
	}
	u.Attempts = checks
	result, err := p.finish(ctx, job, u)
	return result, true, err
}

// finish persists a terminal update and returns the job's outcome.
func (p *Poller) finish(ctx context.Context, job *Job, u Update) (string, error) {
	if err := p.transition(ctx, job, u); err != nil {
		if errors.Is(err, ErrStatusConflict) && job.Status.Terminal() {
			return job.outcome()
		}
		return "", err
	}
	event := p.logger.Info()
	if u.Status != StatusSucceeded {
		event = p.logger.Warn().Str("reason", u.LastError)
	}
	event.Str("job_id", job.ID).Str("status", string(u.Status)).Int("attempts", job.Attempts).Msg("jobs: finished")
	return job.outcome()
}

// transition writes exactly one status change. On a conflict the job is
// reloaded so callers can see what another writer decided.
func (p *Poller) transition(ctx context.Context, job *Job, u Update) error {
	from := job.Status
	next := *job
	if err := next.apply(u, p.now()); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("jobs: rejected transition")
		return err
	}
	persistCtx := context.WithoutCancel(ctx)
	if err := p.store.UpdateStatus(persistCtx, job.ID, from, u); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			if latest, getErr := p.store.Get(persistCtx, job.ID); getErr == nil {
				*job = *latest
			}
		}
		return fmt.Errorf("jobs: persist %s -> %s for %s: %w", from, u.Status, job.ID, err)
	}
	*job = next
	return nil
}

func (p *Poller) cancelExternal(ctx context.Context, job *Job) {
	provider, ok := p.providers[job.Provider]
	if !ok || job.ExternalJobID == "" {
		return
	}
	canceller, ok := provider.(Canceller)
	if !ok {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := canceller.CancelExternal(cctx, job.handle()); err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("jobs: provider-side cancel failed")
	}
}
