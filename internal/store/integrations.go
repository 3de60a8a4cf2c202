package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gitpulse/gitpulse-indexer/models"
)

// IntegrationForOwner returns the org-scoped app integration for the given
// login, or (nil, nil) when none is registered.
func (s *Store) IntegrationForOwner(ctx context.Context, orgLogin string) (*models.Integration, error) {
	var integ models.Integration
	err := s.db.Get(ctx, &integ,
		`SELECT id, org_login, app_id, private_key_pem, created_at
		   FROM integrations WHERE org_login = ?`, orgLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &integ, nil
}

// SaveIntegration upserts an app integration keyed by org login.
func (s *Store) SaveIntegration(ctx context.Context, integ *models.Integration) error {
	if integ.CreatedAt.IsZero() {
		integ.CreatedAt = s.now()
	}
	return s.db.Upsert(ctx, "integrations", integ, []string{"org_login"})
}

// OAuthTokenForOwner returns the stored user token for the repository owner,
// or (nil, nil) when none exists.
func (s *Store) OAuthTokenForOwner(ctx context.Context, ownerID int64) (*models.OAuthToken, error) {
	var tok models.OAuthToken
	err := s.db.Get(ctx, &tok,
		`SELECT id, owner_id, access_token, scopes, expires_at, created_at
		   FROM oauth_tokens WHERE owner_id = ?`, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// SaveOAuthToken upserts a user token keyed by owner id.
func (s *Store) SaveOAuthToken(ctx context.Context, tok *models.OAuthToken) error {
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = s.now()
	}
	return s.db.Upsert(ctx, "oauth_tokens", tok, []string{"owner_id"})
}
