package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"airemaster/internal/http/handlers"
	"airemaster/internal/middleware"
)

type Options struct {
	Users           middleware.UserResolver
	Logger          zerolog.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
		middleware.RateLimit(opts.RateLimitPerMin, time.Minute),
	)

	// Public
	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Get("/static/*", app.StaticFile)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AccessCode(opts.Users, opts.Logger))

		r.Post("/generate", app.Generate)
		r.Post("/upload-source-media", app.UploadSourceMedia)
		r.Post("/get-media", app.GetMedia)
		r.Post("/delete-medium", app.DeleteMedium)
		r.Post("/upscale-media", app.UpscaleMedia)

		r.Get("/get-unstarted-midjourney-generations", app.UnstartedGenerations)
		r.Post("/start-midjourney-generations", app.StartGenerations)
		r.Post("/finished-midjourney-generation", app.FinishedGeneration)
		r.Post("/get-newly-generated-media", app.NewlyGeneratedMedia)

		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Get("/", app.JobStatus)
			r.Post("/cancel", app.CancelJob)
		})
		r.Post("/media/archive", app.ArchiveMedia)
		r.Get("/stats", app.StatsSummary)
	})

	return r
}
