package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends understood by LoadConfig.
const (
	StorageBackendS3         = "s3"
	StorageBackendFilesystem = "filesystem"
)

const defaultStatusMap = "succeeded=succeeded,failed=failed,canceled=failed,starting=pending,processing=pending"

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	StorageBackend  string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKeyID   string
	S3SecretKey     string
	S3MaxRetries    int
	StoragePath     string
	StorageBaseURL  string
	StorageSecret   string
	SignedURLTTL    time.Duration
	MaxUploadBytes  int64
	AllowedOrigins  []string
	RateLimitPerMin int

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIOrg        string
	OpenAIImageModel string

	DreamstudioAPIKey string
	StabilityBaseURL  string
	StabilityEngine   string

	ReplicateAPIToken        string
	ReplicateBaseURL         string
	ReplicateUpscaleVersion  string
	ReplicateBackgroundModel string
	ReplicateTextToImage     string

	PollInterval      time.Duration
	PollMaxAttempts   int
	PollBackoff       float64
	PollMaxInterval   time.Duration
	PollMaxDuration   time.Duration
	ProviderStatusMap string
	MaxConcurrentPoll int

	WorkerScanInterval time.Duration
	WorkerOrphanGrace  time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "3401")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),

		StorageBackend:  strings.ToLower(getEnv("STORAGE_BACKEND", StorageBackendS3)),
		S3Bucket:        getEnv("S3_BUCKET", "ai-remaster"),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		S3AccessKeyID:   os.Getenv("AWS_ACCESS_KEY_ID"),
		S3SecretKey:     os.Getenv("AWS_SECRET_ACCESS_KEY"),
		S3MaxRetries:    getEnvInt("S3_MAX_RETRIES", 3),
		StoragePath:     getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:  getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		StorageSecret:   os.Getenv("STORAGE_SIGNING_SECRET"),
		SignedURLTTL:    time.Second * time.Duration(getEnvInt("SIGNED_URL_TTL_SECONDS", 60*60*24*7)),
		MaxUploadBytes:  int64(getEnvInt("MAX_UPLOAD_MB", 50)) << 20,
		AllowedOrigins:  splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:        os.Getenv("OPENAI_ORG"),
		OpenAIImageModel: getEnv("OPENAI_IMAGE_MODEL", "dall-e-2"),

		DreamstudioAPIKey: os.Getenv("DREAMSTUDIO_API_KEY"),
		StabilityBaseURL:  getEnv("STABILITY_BASE_URL", "https://api.stability.ai"),
		StabilityEngine:   getEnv("STABILITY_ENGINE", "stable-diffusion-v1-6"),

		ReplicateAPIToken:        os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL:         getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ReplicateUpscaleVersion:  getEnv("REPLICATE_UPSCALE_VERSION", "9117a98dd15e931011b8b960963a2dec20ab493c6c0d3a134525273da1616abc"),
		ReplicateBackgroundModel: os.Getenv("REPLICATE_BACKGROUND_VERSION"),
		ReplicateTextToImage:     os.Getenv("REPLICATE_TEXT_TO_IMAGE_VERSION"),

		PollInterval:      time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 5000)),
		PollMaxAttempts:   getEnvInt("POLL_MAX_ATTEMPTS", 120),
		PollBackoff:       getEnvFloat("POLL_BACKOFF_MULTIPLIER", 1.5),
		PollMaxInterval:   time.Millisecond * time.Duration(getEnvInt("POLL_MAX_INTERVAL_MS", 30000)),
		PollMaxDuration:   time.Second * time.Duration(getEnvInt("POLL_MAX_DURATION_SECONDS", 600)),
		ProviderStatusMap: getEnv("PROVIDER_STATUS_MAP", defaultStatusMap),
		MaxConcurrentPoll: getEnvInt("MAX_CONCURRENT_POLLS", 16),

		WorkerScanInterval: time.Second * time.Duration(getEnvInt("WORKER_SCAN_INTERVAL_SECONDS", 15)),
		WorkerOrphanGrace:  time.Second * time.Duration(getEnvInt("WORKER_ORPHAN_GRACE_SECONDS", 60)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 60)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.StorageBackend {
	case StorageBackendS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required for the s3 storage backend")
		}
	case StorageBackendFilesystem:
		if cfg.StorageSecret == "" {
			return nil, fmt.Errorf("STORAGE_SIGNING_SECRET is required for the filesystem storage backend")
		}
		if _, err := url.Parse(cfg.StorageBaseURL); err != nil {
			return nil, fmt.Errorf("STORAGE_BASE_URL is invalid: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	if cfg.PollMaxAttempts < 1 {
		return nil, fmt.Errorf("POLL_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.PollMaxDuration <= 0 {
		return nil, fmt.Errorf("POLL_MAX_DURATION_SECONDS must be positive")
	}
	if cfg.WorkerOrphanGrace <= 0 {
		return nil, fmt.Errorf("WORKER_ORPHAN_GRACE_SECONDS must be positive")
	}

	return cfg, nil
}

// OrphanAfter reports how long a non-terminal job may go without updates before
// it is considered abandoned by the process that polled it. It always exceeds
// PollMaxDuration, which the poller requires.
func (c *Config) OrphanAfter() time.Duration {
	return c.PollMaxDuration + c.WorkerOrphanGrace
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
