// Package media orchestrates uploads, generations and provider jobs on top of
// the repositories, the object store and the job poller.
package media

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"airemaster/internal/domain"
	"airemaster/internal/infra"
	"airemaster/internal/jobs"
	"airemaster/internal/providers/openai"
	"airemaster/internal/providers/stability"
	"airemaster/internal/storage"
	"airemaster/pkg/zip"
)

// Services accepted by Generate.
const (
	ServiceDalle       = "dalle"
	ServiceDreamstudio = "dreamstudio"
	ServiceReplicate   = "replicate"
	ServiceMidjourney  = "midjourney"
)

const (
	signConcurrency      = 8
	defaultIngestTimeout = 2 * time.Minute
)

// ImageGenerator produces images synchronously.
type ImageGenerator interface {
	Generate(ctx context.Context, req openai.ImageRequest) ([]string, error)
}

// ImageRenderer produces image bytes synchronously.
type ImageRenderer interface {
	Generate(ctx context.Context, req stability.ImageRequest) ([]stability.Image, error)
}

// JobRunner is the part of the job poller the service drives.
type JobRunner interface {
	Submit(ctx context.Context, req jobs.Request) (*jobs.Job, error)
	AwaitCompletion(ctx context.Context, job *jobs.Job, cfg jobs.PollConfig) (string, error)
	Cancel(ctx context.Context, id string) error
}

// JobReader loads persisted jobs.
type JobReader interface {
	Get(ctx context.Context, id string) (*jobs.Job, error)
}

// Options wires a Service.
type Options struct {
	Media       domain.MediaRepository
	Generations domain.GenerationRepository
	Stats       domain.StatsRepository
	Jobs        JobReader
	Store       storage.ObjectStore
	Runner      JobRunner
	// Images is optional; without it the dalle service is unavailable.
	Images ImageGenerator
	// Renderer is optional; without it the dreamstudio service is unavailable.
	Renderer ImageRenderer
	// JobProvider names the provider asynchronous jobs are submitted to.
	JobProvider   string
	PollConfig    jobs.PollConfig
	SignTTL       time.Duration
	MaxConcurrent int
	// IngestTimeout bounds copying one job result into storage.
	IngestTimeout time.Duration
	Fetcher       Fetcher
	Logger        *infra.Logger
}

// Service implements the media operations exposed over HTTP.
type Service struct {
	media       domain.MediaRepository
	generations domain.GenerationRepository
	stats       domain.StatsRepository
	jobs        JobReader
	store       storage.ObjectStore
	runner      JobRunner
	images      ImageGenerator
	renderer    ImageRenderer
	jobProvider string
	pollCfg     jobs.PollConfig
	signTTL     time.Duration
	fetcher     Fetcher
	logger      *infra.Logger

	ingestTimeout time.Duration

	// background pollers share ctx and are bounded by sem
	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}
	wg     sync.WaitGroup
	active atomic.Int64
	mu     sync.Mutex
	closed bool
}

// NewService validates opts and returns a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Media == nil || opts.Generations == nil || opts.Store == nil {
		return nil, errors.New("media: repositories and store are required")
	}
	if opts.Runner != nil {
		if opts.Jobs == nil {
			return nil, errors.New("media: job reader is required with a job runner")
		}
		if err := opts.PollConfig.Validate(); err != nil {
			return nil, err
		}
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	signTTL := opts.SignTTL
	if signTTL <= 0 {
		signTTL = 7 * 24 * time.Hour
	}
	ingestTimeout := opts.IngestTimeout
	if ingestTimeout <= 0 {
		ingestTimeout = defaultIngestTimeout
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = NewHTTPFetcher(nil, 0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		media:       opts.Media,
		generations: opts.Generations,
		stats:       opts.Stats,
		jobs:        opts.Jobs,
		store:       opts.Store,
		runner:      opts.Runner,
		images:      opts.Images,
		renderer:    opts.Renderer,
		jobProvider: opts.JobProvider,
		pollCfg:     opts.PollConfig,
		signTTL:     signTTL,
		fetcher:     fetcher,
		logger:      logger,

		ingestTimeout: ingestTimeout,

		ctx:    ctx,
		cancel: cancel,
		sem:    make(chan struct{}, maxConcurrent),
	}, nil
}

// UploadSource stores a user-supplied source image.
func (s *Service) UploadSource(ctx context.Context, ownerID, fileExtension, contentType string, data []byte) (*View, error) {
	ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(fileExtension), "."))
	if !validExtension(ext) {
		return nil, fmt.Errorf("%w: file extension %q", domain.ErrInvalidInput, fileExtension)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", domain.ErrInvalidInput)
	}
	if contentType == "" {
		contentType = contentTypeFor(ext)
	}
	m := &domain.Media{OwnerID: ownerID, Type: domain.MediaTypeSource, FileExtension: ext}
	return s.persist(ctx, m, data, contentType)
}

// ListMedia returns the owner's media newest first, each with a signed URL.
func (s *Service) ListMedia(ctx context.Context, ownerID string) ([]View, error) {
	items, err := s.media.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.sign(ctx, items)
}

// DeleteMedium soft-deletes a medium.
func (s *Service) DeleteMedium(ctx context.Context, ownerID, id string) error {
	return s.media.SoftDelete(ctx, ownerID, id)
}

// GenerateRequest mirrors the /generate body.
type GenerateRequest struct {
	Prompt           string
	Quantity         int
	Service          string
	Size             string
	UpscaleIndex     *int
	DiscordMessageID string
	Wait             bool
}

// GenerateResult carries whatever the chosen service produced.
type GenerateResult struct {
	Media      []View
	Job        *jobs.Job
	Generation *domain.Generation
}

// Generate creates images with the requested service. dalle and dreamstudio
// answer synchronously, replicate runs as a polled job and midjourney is
// queued for the external bot.
func (s *Service) Generate(ctx context.Context, ownerID string, req GenerateRequest) (*GenerateResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrInvalidInput)
	}
	service := strings.ToLower(strings.TrimSpace(req.Service))
	if service == "" {
		service = ServiceDalle
	}
	size := strings.TrimSpace(req.Size)
	if size == "" {
		size = "512"
	}

	switch service {
	case ServiceDalle:
		views, err := s.generateDalle(ctx, ownerID, prompt, req.Quantity, size)
		if err != nil {
			return nil, err
		}
		return &GenerateResult{Media: views}, nil
	case ServiceDreamstudio:
		views, err := s.generateDreamstudio(ctx, ownerID, prompt, req.Quantity, size)
		if err != nil {
			return nil, err
		}
		return &GenerateResult{Media: views}, nil
	case ServiceReplicate:
		// a job carries one result reference
		if req.Quantity > 1 {
			return nil, fmt.Errorf("%w: replicate generates one image per request", domain.ErrInvalidInput)
		}
		input := map[string]any{"prompt": prompt}
		if px, err := strconv.Atoi(size); err == nil {
			input["width"], input["height"] = px, px
		}
		job, view, err := s.runJob(ctx, ownerID, jobs.KindTextToImage, input, ingestMeta{prompt: prompt, size: size}, req.Wait)
		result := &GenerateResult{Job: job}
		if view != nil {
			result.Media = []View{*view}
		}
		return result, err
	case ServiceMidjourney:
		g := &domain.Generation{
			OwnerID:          ownerID,
			Service:          ServiceMidjourney,
			Prompt:           prompt,
			UpscaleIndex:     req.UpscaleIndex,
			DiscordMessageID: req.DiscordMessageID,
		}
		if err := s.generations.Insert(ctx, g); err != nil {
			return nil, err
		}
		return &GenerateResult{Generation: g}, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedService, req.Service)
}

func (s *Service) generateDalle(ctx context.Context, ownerID, prompt string, quantity int, size string) ([]View, error) {
	if s.images == nil {
		return nil, fmt.Errorf("%w: dalle", domain.ErrNotConfigured)
	}
	urls, err := s.images.Generate(ctx, openai.ImageRequest{Prompt: prompt, N: quantity, Size: size})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	views := make([]View, 0, len(urls))
	for _, u := range urls {
		view, err := s.ingestURL(ctx, &domain.Media{
			OwnerID: ownerID,
			Type:    domain.MediaTypeGeneration,
			Prompt:  prompt,
			Service: ServiceDalle,
			Size:    size,
		}, u, domain.DefaultFileExtension)
		if err != nil {
			return views, err
		}
		views = append(views, *view)
	}
	return views, nil
}

func (s *Service) generateDreamstudio(ctx context.Context, ownerID, prompt string, quantity int, size string) ([]View, error) {
	if s.renderer == nil {
		return nil, fmt.Errorf("%w: dreamstudio", domain.ErrNotConfigured)
	}
	images, err := s.renderer.Generate(ctx, stability.ImageRequest{Prompt: prompt, N: quantity, Size: size})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	views := make([]View, 0, len(images))
	for _, img := range images {
		m := &domain.Media{
			OwnerID:       ownerID,
			Type:          domain.MediaTypeGeneration,
			FileExtension: extensionFor(img.ContentType, "", domain.DefaultFileExtension),
			Prompt:        prompt,
			Service:       ServiceDreamstudio,
			Size:          size,
		}
		contentType := img.ContentType
		if contentType == "" {
			contentType = contentTypeFor(m.FileExtension)
		}
		view, err := s.persist(ctx, m, img.Data, contentType)
		if err != nil {
			return views, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// TransformRequest mirrors the /upscale-media body. Exactly one of MediaID and
// URL names the source image.
type TransformRequest struct {
	MediaID string
	URL     string
	Kind    jobs.Kind
	Wait    bool
}

// Transform submits an upscale or background-removal job for a source image.
// The job is polled in the background; with Wait the call blocks until the
// result is ingested or ctx ends, whichever comes first.
func (s *Service) Transform(ctx context.Context, ownerID string, req TransformRequest) (*jobs.Job, *View, error) {
	switch req.Kind {
	case jobs.KindUpscale, jobs.KindBackgroundRemoval:
	default:
		return nil, nil, fmt.Errorf("%w: unsupported transform %q", domain.ErrInvalidInput, req.Kind)
	}
	source := strings.TrimSpace(req.URL)
	meta := ingestMeta{}
	if req.MediaID != "" {
		m, err := s.media.Get(ctx, ownerID, req.MediaID)
		if err != nil {
			return nil, nil, err
		}
		source, err = s.store.Sign(ctx, storage.MediaKey(m.ID, m.Extension()), s.signTTL)
		if err != nil {
			return nil, nil, err
		}
		meta.prompt, meta.size = m.Prompt, m.Size
	}
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return nil, nil, fmt.Errorf("%w: source image url is required", domain.ErrInvalidInput)
	}
	return s.runJob(ctx, ownerID, req.Kind, map[string]any{"image": source}, meta, req.Wait)
}

// Job returns one of the owner's jobs.
func (s *Service) Job(ctx context.Context, ownerID, id string) (*jobs.Job, error) {
	if s.jobs == nil {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return job, nil
}

// CancelJob cancels one of the owner's jobs and returns its latest state.
func (s *Service) CancelJob(ctx context.Context, ownerID, id string) (*jobs.Job, error) {
	if _, err := s.Job(ctx, ownerID, id); err != nil {
		return nil, err
	}
	if s.runner == nil {
		return nil, fmt.Errorf("%w: job runner", domain.ErrNotConfigured)
	}
	if err := s.runner.Cancel(ctx, id); err != nil {
		return nil, err
	}
	return s.jobs.Get(ctx, id)
}

// Archive zips the stored bytes of the named media.
func (s *Service) Archive(ctx context.Context, ownerID string, ids []string) ([]byte, error) {
	items, err := s.media.ListByIDs(ctx, ownerID, ids)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("media: %w", domain.ErrNotFound)
	}
	assets := make([]zip.Asset, 0, len(items))
	for _, m := range items {
		data, err := s.store.Get(ctx, storage.MediaKey(m.ID, m.Extension()))
		if err != nil {
			return nil, err
		}
		assets = append(assets, zip.Asset{
			Filename: m.ID + "." + m.Extension(),
			Data:     data,
			Modified: m.CreatedAt,
		})
	}
	return zip.ArchiveAssets(assets)
}

// Stats returns dashboard counters.
func (s *Service) Stats(ctx context.Context) (*domain.Stats, error) {
	if s.stats == nil {
		return &domain.Stats{JobsByStatus: map[string]int{}}, nil
	}
	return s.stats.Summary(ctx)
}

// sign attaches signed URLs, signing concurrently.
func (s *Service) sign(ctx context.Context, items []domain.Media) ([]View, error) {
	views := make([]View, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(signConcurrency)
	for i := range items {
		i := i
		m := items[i]
		g.Go(func() error {
			u, err := s.store.Sign(gctx, storage.MediaKey(m.ID, m.Extension()), s.signTTL)
			if err != nil {
				return err
			}
			views[i] = newView(m, u)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// persist inserts the row, writes the object and signs its URL.
func (s *Service) persist(ctx context.Context, m *domain.Media, data []byte, contentType string) (*View, error) {
	if err := s.media.Insert(ctx, m); err != nil {
		return nil, err
	}
	key := storage.MediaKey(m.ID, m.Extension())
	if err := s.store.Put(ctx, key, data, contentType); err != nil {
		if delErr := s.media.SoftDelete(context.WithoutCancel(ctx), m.OwnerID, m.ID); delErr != nil {
			s.logger.Error().Err(delErr).Str("media_id", m.ID).Msg("media: hide row after failed upload")
		}
		return nil, err
	}
	u, err := s.store.Sign(ctx, key, s.signTTL)
	if err != nil {
		return nil, err
	}
	view := newView(*m, u)
	return &view, nil
}

func (s *Service) ingestURL(ctx context.Context, m *domain.Media, rawURL, fallbackExt string) (*View, error) {
	data, contentType, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	m.FileExtension = extensionFor(contentType, rawURL, fallbackExt)
	if contentType == "" {
		contentType = contentTypeFor(m.FileExtension)
	}
	return s.persist(ctx, m, data, contentType)
}
