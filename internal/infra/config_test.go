package infra

import (
	"testing"
	"time"
)

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when DATABASE_URL is missing")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("POLL_INTERVAL_MS", "")
	t.Setenv("SIGNED_URL_TTL_SECONDS", "")
	t.Setenv("STABILITY_BASE_URL", "")
	t.Setenv("STABILITY_ENGINE", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "3401" {
		t.Fatalf("Port mismatch: got %q want 3401", cfg.Port)
	}
	if cfg.StorageBackend != StorageBackendS3 {
		t.Fatalf("StorageBackend mismatch: got %q", cfg.StorageBackend)
	}
	if cfg.S3Bucket != "ai-remaster" {
		t.Fatalf("S3Bucket mismatch: got %q", cfg.S3Bucket)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("PollInterval mismatch: got %s", cfg.PollInterval)
	}
	if cfg.SignedURLTTL != 7*24*time.Hour {
		t.Fatalf("SignedURLTTL mismatch: got %s", cfg.SignedURLTTL)
	}
	if cfg.StorageBaseURL != "http://localhost:3401/static" {
		t.Fatalf("StorageBaseURL mismatch: got %q", cfg.StorageBaseURL)
	}
	if cfg.StabilityBaseURL != "https://api.stability.ai" || cfg.StabilityEngine != "stable-diffusion-v1-6" {
		t.Fatalf("stability defaults mismatch: %q %q", cfg.StabilityBaseURL, cfg.StabilityEngine)
	}
}

func TestLoadConfigFilesystemNeedsSigningSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("STORAGE_BACKEND", "filesystem")
	t.Setenv("STORAGE_SIGNING_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error without STORAGE_SIGNING_SECRET")
	}

	t.Setenv("STORAGE_SIGNING_SECRET", "s3cret")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageBackend != StorageBackendFilesystem {
		t.Fatalf("StorageBackend mismatch: got %q", cfg.StorageBackend)
	}
}

func TestLoadConfigRejectsUnboundedPolling(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("POLL_MAX_ATTEMPTS", "0")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for zero max attempts")
	}

	t.Setenv("POLL_MAX_ATTEMPTS", "3")
	t.Setenv("POLL_MAX_DURATION_SECONDS", "-1")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for negative max duration")
	}
}

func TestLoadConfigRequiresOrphanGrace(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("POLL_MAX_DURATION_SECONDS", "30")
	t.Setenv("WORKER_ORPHAN_GRACE_SECONDS", "0")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for zero orphan grace")
	}
}

func TestLoadConfigParsesPollingAndOrigins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("POLL_MAX_ATTEMPTS", "7")
	t.Setenv("POLL_MAX_DURATION_SECONDS", "30")
	t.Setenv("POLL_BACKOFF_MULTIPLIER", "2")
	t.Setenv("WORKER_ORPHAN_GRACE_SECONDS", "10")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example.com, ,https://b.example.com ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PollMaxAttempts != 7 || cfg.PollBackoff != 2 {
		t.Fatalf("polling mismatch: attempts=%d backoff=%v", cfg.PollMaxAttempts, cfg.PollBackoff)
	}
	if got := cfg.OrphanAfter(); got != 40*time.Second {
		t.Fatalf("OrphanAfter = %s, want 40s", got)
	}
	expected := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.AllowedOrigins) != len(expected) {
		t.Fatalf("AllowedOrigins mismatch: %#v", cfg.AllowedOrigins)
	}
	for i, origin := range expected {
		if cfg.AllowedOrigins[i] != origin {
			t.Fatalf("AllowedOrigins[%d] = %q, want %q", i, cfg.AllowedOrigins[i], origin)
		}
	}
}
