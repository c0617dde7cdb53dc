package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"airemaster/internal/domain"
	"airemaster/internal/infra"
	"airemaster/internal/jobs"
	"airemaster/internal/media"
	"airemaster/internal/middleware"
)

// MediaService is the application layer behind the handlers.
type MediaService interface {
	UploadSource(ctx context.Context, ownerID, fileExtension, contentType string, data []byte) (*media.View, error)
	ListMedia(ctx context.Context, ownerID string) ([]media.View, error)
	DeleteMedium(ctx context.Context, ownerID, id string) error
	Generate(ctx context.Context, ownerID string, req media.GenerateRequest) (*media.GenerateResult, error)
	Transform(ctx context.Context, ownerID string, req media.TransformRequest) (*jobs.Job, *media.View, error)
	Job(ctx context.Context, ownerID, id string) (*jobs.Job, error)
	CancelJob(ctx context.Context, ownerID, id string) (*jobs.Job, error)
	Archive(ctx context.Context, ownerID string, ids []string) ([]byte, error)
	Stats(ctx context.Context) (*domain.Stats, error)
	UnstartedGenerations(ctx context.Context) ([]media.GenerationView, error)
	StartGenerations(ctx context.Context) ([]media.GenerationView, error)
	FinishGeneration(ctx context.Context, id, url, discordMessageID string) (*media.GenerationView, error)
	CollectGeneratedMedia(ctx context.Context) ([]media.View, error)
}

// SignedFiles serves objects behind signed URLs for the filesystem backend.
type SignedFiles interface {
	Verify(key, expires, signature string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

type App struct {
	Media MediaService
	// Files is nil unless media are stored on the local filesystem.
	Files          SignedFiles
	Ping           func(ctx context.Context) error
	MaxUploadBytes int64
	Logger         *infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) logger() *infra.Logger {
	if a.Logger == nil {
		return infra.NopLogger()
	}
	return a.Logger
}

// fail maps service errors onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var subErr *jobs.SubmissionError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnsupportedService):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, domain.ErrNotConfigured), errors.Is(err, media.ErrClosed):
		a.error(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	case errors.As(err, &subErr), errors.Is(err, domain.ErrProviderFailure):
		a.logger().Warn().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("provider call failed")
		a.error(w, http.StatusBadGateway, "provider_failure", "image provider request failed")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		a.error(w, http.StatusGatewayTimeout, "timeout", "request cancelled")
	default:
		a.logger().Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
