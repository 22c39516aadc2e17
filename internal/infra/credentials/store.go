package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"menu3d/internal/infra"
	"menu3d/internal/sqlinline"
)

// ProviderReplicate identifies the inference provider token row.
const ProviderReplicate = "replicate"

// ErrEmptyToken is returned when a blank token is stored.
var ErrEmptyToken = errors.New("token is required")

// Store persists provider credentials in integration_tokens.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored token for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetToken upserts the token for provider. props is stored as jsonb.
func (s *Store) SetToken(ctx context.Context, provider, token string, props map[string]any) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, strings.TrimSpace(provider), token, raw)
	return err
}

// DeleteToken removes the stored token for provider.
func (s *Store) DeleteToken(ctx context.Context, provider string) error {
	_, err := s.sql.Exec(ctx, sqlinline.QDeleteIntegrationToken, strings.TrimSpace(provider))
	return err
}

// ResolveReplicateToken prefers the environment token and falls back to the
// stored one.
func ResolveReplicateToken(ctx context.Context, envToken string, store *Store) (string, error) {
	if envToken = strings.TrimSpace(envToken); envToken != "" {
		return envToken, nil
	}
	if store == nil {
		return "", nil
	}
	return store.Token(ctx, ProviderReplicate)
}
