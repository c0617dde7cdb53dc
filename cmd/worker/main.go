package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"airemaster/internal/bootstrap"
	"airemaster/internal/infra"
	"airemaster/internal/jobs"
)

// claimer hands out jobs no process has touched for a while.
type claimer interface {
	ClaimOrphaned(ctx context.Context, olderThan time.Duration, limit int) ([]*jobs.Job, error)
}

// resumer polls a recovered job in the background.
type resumer interface {
	Resume(job *jobs.Job) error
	Active() int
}

type jobWorker struct {
	ctx         context.Context
	claims      claimer
	jobs        resumer
	logger      infra.Logger
	interval    time.Duration
	orphanAfter time.Duration
	capacity    int
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	c, err := bootstrap.Build(ctx, cfg, pool, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to wire services")
	}
	if c.Poller == nil {
		logger.Fatal().Msg("worker: no job provider configured, nothing to recover")
	}

	worker := &jobWorker{
		ctx:         ctx,
		claims:      c.Jobs,
		jobs:        c.Media,
		logger:      logger,
		interval:    cfg.WorkerScanInterval,
		orphanAfter: cfg.OrphanAfter(),
		capacity:    cfg.MaxConcurrentPoll,
	}
	if err := worker.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker: stopped with error")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Media.Close(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("worker: jobs left for the next scan")
	}
	logger.Info().Msg("worker: stopped")
}

// Run scans for orphaned jobs every interval until the context ends.
func (w *jobWorker) Run() error {
	w.logger.Info().Dur("orphan_after", w.orphanAfter).Msg("worker: started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.scan(); err != nil {
			w.logger.Error().Err(err).Msg("worker: scan failed")
		}
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		case <-ticker.C:
		}
	}
}

// scan claims as many orphaned jobs as there are free polling slots and hands
// them to the media service.
func (w *jobWorker) scan() (int, error) {
	free := w.capacity - w.jobs.Active()
	if free <= 0 {
		return 0, nil
	}
	claimed, err := w.claims.ClaimOrphaned(w.ctx, w.orphanAfter, free)
	if err != nil {
		return 0, err
	}
	resumed := 0
	for _, job := range claimed {
		if err := w.jobs.Resume(job); err != nil {
			w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: resume failed")
			continue
		}
		w.logger.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("worker: resumed orphaned job")
		resumed++
	}
	return resumed, nil
}
