// Package bootstrap assembles the object graph shared by the api and worker
// binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"airemaster/internal/adapter/repo"
	"airemaster/internal/infra"
	"airemaster/internal/infra/credentials"
	"airemaster/internal/jobs"
	"airemaster/internal/media"
	"airemaster/internal/providers/openai"
	"airemaster/internal/providers/replicate"
	"airemaster/internal/providers/stability"
	"airemaster/internal/storage"
)

// Components are the wired services of one process.
type Components struct {
	SQL    *infra.SQLRunner
	Users  *repo.UserRepository
	Jobs   *repo.JobRepository
	Poller *jobs.Poller
	Media  *media.Service
	// Files is set for the filesystem storage backend only.
	Files *storage.FileStore
}

// PollConfig maps the polling settings onto the poller's config.
func PollConfig(cfg *infra.Config) jobs.PollConfig {
	return jobs.PollConfig{
		Interval:          cfg.PollInterval,
		MaxAttempts:       cfg.PollMaxAttempts,
		BackoffMultiplier: cfg.PollBackoff,
		MaxInterval:       cfg.PollMaxInterval,
		MaxDuration:       cfg.PollMaxDuration,
	}
}

// Build wires repositories, storage, providers, the poller and the media
// service on top of db. Missing provider credentials disable the matching
// service instead of failing startup.
func Build(ctx context.Context, cfg *infra.Config, db infra.SQLExecutor, logger *infra.Logger) (*Components, error) {
	sql := infra.NewSQLRunner(db, *logger)
	c := &Components{
		SQL:   sql,
		Users: repo.NewUserRepository(sql),
		Jobs:  repo.NewJobRepository(sql),
	}

	store, err := c.objectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mapping, err := jobs.ParseStatusMapping(cfg.ProviderStatusMap)
	if err != nil {
		return nil, fmt.Errorf("PROVIDER_STATUS_MAP: %w", err)
	}

	creds := credentials.NewStore(sql)
	httpClient := &http.Client{Timeout: 60 * time.Second}

	providers := map[string]jobs.Provider{}
	replicateToken, err := creds.Resolve(ctx, credentials.ProviderReplicate, cfg.ReplicateAPIToken)
	if err != nil {
		logger.Warn().Err(err).Msg("bootstrap: failed to load replicate token from store")
	}
	rep, err := replicate.NewClient(replicate.Options{
		Token:   replicateToken,
		BaseURL: cfg.ReplicateBaseURL,
		Versions: map[jobs.Kind]string{
			jobs.KindUpscale:           cfg.ReplicateUpscaleVersion,
			jobs.KindBackgroundRemoval: cfg.ReplicateBackgroundModel,
			jobs.KindTextToImage:       cfg.ReplicateTextToImage,
		},
		HTTPClient: httpClient,
		Logger:     logger,
	})
	switch {
	case errors.Is(err, replicate.ErrMissingToken):
		logger.Warn().Msg("bootstrap: replicate token missing, upscaling disabled")
	case err != nil:
		return nil, err
	default:
		providers[replicate.Name] = rep
	}

	var images media.ImageGenerator
	openaiKey, err := creds.Resolve(ctx, credentials.ProviderOpenAI, cfg.OpenAIAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("bootstrap: failed to load openai key from store")
	}
	oa, err := openai.NewClient(openai.Options{
		APIKey:       openaiKey,
		BaseURL:      cfg.OpenAIBaseURL,
		Organization: cfg.OpenAIOrg,
		Model:        cfg.OpenAIImageModel,
		HTTPClient:   httpClient,
		Logger:       logger,
	})
	switch {
	case errors.Is(err, openai.ErrMissingAPIKey):
		logger.Warn().Msg("bootstrap: openai key missing, dalle disabled")
	case err != nil:
		return nil, err
	default:
		images = oa
	}

	var renderer media.ImageRenderer
	stabilityKey, err := creds.Resolve(ctx, credentials.ProviderStability, cfg.DreamstudioAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("bootstrap: failed to load stability key from store")
	}
	st, err := stability.NewClient(stability.Options{
		APIKey:     stabilityKey,
		BaseURL:    cfg.StabilityBaseURL,
		Engine:     cfg.StabilityEngine,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	switch {
	case errors.Is(err, stability.ErrMissingAPIKey):
		logger.Warn().Msg("bootstrap: dreamstudio key missing, dreamstudio disabled")
	case err != nil:
		return nil, err
	default:
		renderer = st
	}

	opts := media.Options{
		Media:         repo.NewMediaRepository(sql),
		Generations:   repo.NewGenerationRepository(sql),
		Stats:         repo.NewStatsRepository(sql),
		Jobs:          c.Jobs,
		Store:         store,
		Images:        images,
		Renderer:      renderer,
		PollConfig:    PollConfig(cfg),
		SignTTL:       cfg.SignedURLTTL,
		MaxConcurrent: cfg.MaxConcurrentPoll,
		Fetcher:       media.NewHTTPFetcher(httpClient, cfg.MaxUploadBytes),
		Logger:        logger,
	}
	if len(providers) > 0 {
		c.Poller, err = jobs.NewPoller(jobs.Options{
			Providers:   providers,
			Store:       c.Jobs,
			Mapping:     mapping,
			Logger:      logger,
			OrphanAfter: cfg.OrphanAfter(),
		})
		if err != nil {
			return nil, err
		}
		if err := c.Poller.CheckConfig(opts.PollConfig); err != nil {
			return nil, err
		}
		opts.Runner = c.Poller
		opts.JobProvider = replicate.Name
	}
	c.Media, err = media.NewService(opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Components) objectStore(ctx context.Context, cfg *infra.Config) (storage.ObjectStore, error) {
	switch cfg.StorageBackend {
	case infra.StorageBackendFilesystem:
		path := strings.TrimSpace(cfg.StoragePath)
		if !filepath.IsAbs(path) {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
		}
		files, err := storage.NewFileStore(path, cfg.StorageBaseURL, cfg.StorageSecret)
		if err != nil {
			return nil, err
		}
		c.Files = files
		return files, nil
	default:
		s3, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			MaxRetries:      cfg.S3MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
}
