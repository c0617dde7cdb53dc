package media

import (
	"context"
	"errors"
	"fmt"

	"airemaster/internal/domain"
	"airemaster/internal/jobs"
)

// ErrClosed is returned once the service has started shutting down.
var ErrClosed = errors.New("media: service is closed")

type ingestMeta struct {
	prompt string
	size   string
}

type completion struct {
	view *View
	err  error
}

func (s *Service) runJob(ctx context.Context, ownerID string, kind jobs.Kind, input map[string]any, meta ingestMeta, wait bool) (*jobs.Job, *View, error) {
	if s.runner == nil || s.jobProvider == "" {
		return nil, nil, fmt.Errorf("%w: %s jobs", domain.ErrNotConfigured, kind)
	}
	job, err := s.runner.Submit(ctx, jobs.Request{
		OwnerID:  ownerID,
		Kind:     kind,
		Provider: s.jobProvider,
		Input:    input,
	})
	if err != nil {
		return job, nil, err
	}
	done, err := s.track(*job, meta)
	if err != nil {
		return job, nil, err
	}
	if !wait {
		return job, nil, nil
	}

	select {
	case res := <-done:
		if latest, err := s.jobs.Get(context.WithoutCancel(ctx), job.ID); err == nil {
			job = latest
		}
		var jobErr *jobs.JobError
		if errors.As(res.err, &jobErr) {
			// the job itself carries the failure
			return job, nil, nil
		}
		return job, res.view, res.err
	case <-ctx.Done():
		return job, nil, nil
	}
}

// Resume polls a job recovered from another process and ingests its result.
func (s *Service) Resume(job *jobs.Job) error {
	if job == nil {
		return errors.New("media: nil job")
	}
	meta := ingestMeta{}
	if prompt, ok := job.Input["prompt"].(string); ok {
		meta.prompt = prompt
	}
	_, err := s.track(*job, meta)
	return err
}

// Active returns the number of jobs tracked by this service.
func (s *Service) Active() int {
	return int(s.active.Load())
}

// track polls job in the background. The job is copied so the caller's value
// is never written concurrently.
func (s *Service) track(job jobs.Job, meta ingestMeta) (<-chan completion, error) {
	if s.runner == nil {
		return nil, fmt.Errorf("%w: jobs", domain.ErrNotConfigured)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.wg.Add(1)
	s.active.Add(1)
	s.mu.Unlock()

	done := make(chan completion, 1)
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)
		done <- s.complete(&job, meta)
	}()
	return done, nil
}

func (s *Service) complete(job *jobs.Job, meta ingestMeta) completion {
	select {
	case s.sem <- struct{}{}:
	case <-s.ctx.Done():
		return completion{err: s.ctx.Err()}
	}
	defer func() { <-s.sem }()

	logger := s.logger.With().Str("job_id", job.ID).Str("kind", string(job.Kind)).Logger()
	ref, err := s.runner.AwaitCompletion(s.ctx, job, s.pollCfg)
	if err != nil {
		var jobErr *jobs.JobError
		switch {
		case errors.As(err, &jobErr):
			logger.Info().Str("outcome", string(jobErr.Kind)).Msg("media: job ended without result")
		case errors.Is(err, context.Canceled):
			logger.Info().Msg("media: stopped polling at shutdown")
		default:
			logger.Error().Err(err).Msg("media: polling failed")
		}
		return completion{err: err}
	}

	// The success is already persisted, so shutdown must not abort the copy
	// into storage: nothing would pick the result up again.
	ingestCtx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.ingestTimeout)
	defer cancel()
	view, err := s.ingestURL(ingestCtx, &domain.Media{
		OwnerID: job.OwnerID,
		Type:    domain.MediaTypeGeneration,
		Prompt:  meta.prompt,
		Service: job.Provider,
		Size:    meta.size,
		JobID:   job.ID,
	}, ref, "png")
	if errors.Is(err, domain.ErrAlreadyExists) {
		logger.Info().Msg("media: job result already stored by another poller")
		return completion{}
	}
	if err != nil {
		logger.Error().Err(err).Str("result", ref).Msg("media: ingest job result")
		return completion{err: err}
	}
	logger.Info().Str("media_id", view.ID).Msg("media: job result stored")
	return completion{view: view}
}

// Close stops accepting jobs and waits for running pollers until ctx ends;
// pollers still running then are cancelled and their jobs left for recovery.
// Results already being ingested are finished first, bounded by the ingest
// timeout.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-drained
		return ctx.Err()
	}
}
