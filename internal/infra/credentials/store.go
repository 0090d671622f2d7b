package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"adspack/internal/infra"
	"adspack/internal/sqlinline"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Store persists provider API keys in the integration_tokens table.
type Store struct {
	sql infra.SQLExecutor
	now func() time.Time
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql, now: time.Now}
}

// KnownProvider reports whether name is a provider whose key can be stored.
func KnownProvider(name string) bool {
	switch name {
	case ProviderGemini, ProviderOpenAI:
		return true
	}
	return false
}

func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderGemini)
}

func (s *Store) OpenAIAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderOpenAI)
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("load %s token: %w", provider, err)
	}
	return strings.TrimSpace(token), nil
}

// Resolve prefers the explicit value (usually from the environment) and falls
// back to the stored key.
func (s *Store) Resolve(ctx context.Context, provider, explicit string) (string, error) {
	if v := strings.TrimSpace(explicit); v != "" {
		return v, nil
	}
	if s == nil || s.sql == nil {
		return "", nil
	}
	return s.Token(ctx, provider)
}

// SetToken stores key for provider, replacing any previous value.
func (s *Store) SetToken(ctx context.Context, provider, key string) error {
	if !KnownProvider(provider) {
		return fmt.Errorf("unknown provider %q", provider)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	return s.upsert(ctx, provider, key, map[string]any{
		"updated_by": "providerkey",
		"stored_at":  s.now().UTC().Format(time.RFC3339),
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
		return fmt.Errorf("store %s token: %w", provider, err)
	}
	return nil
}
