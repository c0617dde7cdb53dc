package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"airemaster/internal/bootstrap"
	"airemaster/internal/http/handlers"
	httpapi "airemaster/internal/http/httpapi"
	"airemaster/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	c, err := bootstrap.Build(ctx, cfg, dbpool, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire services")
	}

	app := &handlers.App{
		Media:          c.Media,
		Ping:           dbpool.Ping,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         &logger,
	}
	if c.Files != nil {
		app.Files = c.Files
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Users:           c.Users,
		Logger:          logger,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	server := infra.NewHTTPServer(cfg, router, &logger)
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Str("storage", cfg.StorageBackend).Msg("API listening")
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}

	// Pollers still running after the drain window are abandoned to the worker.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelDrain()
	if err := c.Media.Close(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("background jobs left for recovery")
	}
	logger.Info().Msg("server stopped")
}
