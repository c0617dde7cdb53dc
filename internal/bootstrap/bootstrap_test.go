package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"airemaster/internal/infra"
)

// tokenDB answers integration token lookups from a map.
type tokenDB map[string]string

func (d tokenDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (d tokenDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	provider, _ := args[0].(string)
	return tokenRow{token: d[provider]}
}

func (d tokenDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type tokenRow struct{ token string }

func (r tokenRow) Scan(dest ...any) error {
	if r.token == "" {
		return pgx.ErrNoRows
	}
	*dest[0].(*string) = r.token
	return nil
}

func testConfig(t *testing.T) *infra.Config {
	return &infra.Config{
		StorageBackend:    infra.StorageBackendFilesystem,
		StoragePath:       t.TempDir(),
		StorageBaseURL:    "http://localhost:3401/static",
		StorageSecret:     "secret",
		SignedURLTTL:      time.Hour,
		ProviderStatusMap: "succeeded=succeeded,failed=failed,starting=pending",
		PollInterval:      time.Second,
		PollMaxAttempts:   5,
		PollBackoff:       1.5,
		PollMaxInterval:   5 * time.Second,
		PollMaxDuration:   time.Minute,
		WorkerOrphanGrace: 30 * time.Second,
		MaxConcurrentPoll: 4,
	}
}

func TestBuildWithoutProviderCredentials(t *testing.T) {
	c, err := Build(context.Background(), testConfig(t), tokenDB{}, infra.NopLogger())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if c.Poller != nil {
		t.Fatal("poller must be disabled without a replicate token")
	}
	if c.Files == nil || c.Media == nil || c.Users == nil {
		t.Fatalf("incomplete components: %+v", c)
	}
}

func TestBuildUsesStoredTokens(t *testing.T) {
	db := tokenDB{"replicate": "r8_stored", "openai": "sk-stored", "stability": "sk-stab"}
	c, err := Build(context.Background(), testConfig(t), db, infra.NopLogger())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if c.Poller == nil {
		t.Fatal("expected poller when a replicate token is stored")
	}
}

func TestBuildRejectsBadStatusMap(t *testing.T) {
	cfg := testConfig(t)
	cfg.ProviderStatusMap = "succeeded"
	if _, err := Build(context.Background(), cfg, tokenDB{}, infra.NopLogger()); err == nil {
		t.Fatal("expected status map error")
	}
}

func TestPollConfig(t *testing.T) {
	got := PollConfig(testConfig(t))
	if err := got.Validate(); err != nil {
		t.Fatalf("mapped config invalid: %v", err)
	}
	if got.MaxAttempts != 5 || got.MaxDuration != time.Minute || got.BackoffMultiplier != 1.5 {
		t.Fatalf("unexpected mapping: %+v", got)
	}
}
