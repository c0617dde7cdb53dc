// Package credentials keeps provider API tokens in the integration_tokens
// table so they can be rotated without redeploying.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"airemaster/internal/infra"
	"airemaster/internal/sqlinline"
)

const (
	ProviderReplicate = "replicate"
	ProviderOpenAI    = "openai"
	ProviderStability = "stability"
)

// Known reports whether provider names a supported integration.
func Known(provider string) bool {
	switch provider {
	case ProviderReplicate, ProviderOpenAI, ProviderStability:
		return true
	}
	return false
}

type Store struct {
	sql infra.SQLExecutor
	now func() time.Time
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql, now: time.Now}
}

// Token returns the stored token, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("credentials: load %s token: %w", provider, err)
	}
	return strings.TrimSpace(token), nil
}

// Resolve prefers a token from the environment and falls back to the store.
func (s *Store) Resolve(ctx context.Context, provider, fromEnv string) (string, error) {
	if v := strings.TrimSpace(fromEnv); v != "" {
		return v, nil
	}
	return s.Token(ctx, provider)
}

// Set stores token for provider, replacing any previous one.
func (s *Store) Set(ctx context.Context, provider, token string) error {
	if !Known(provider) {
		return fmt.Errorf("credentials: unknown provider %q", provider)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("credentials: %s token is required", provider)
	}
	return s.upsert(ctx, provider, token, map[string]any{
		"rotated_at": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw); err != nil {
		return fmt.Errorf("credentials: store %s token: %w", provider, err)
	}
	return nil
}
