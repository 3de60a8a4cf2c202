package store

import (
	"context"
	"fmt"

	"github.com/gitpulse/gitpulse-indexer/models"
)

const repositoryCols = `id, full_name, clone_url, default_branch, is_indexed, owner_id, private, created_at, updated_at`

// UpsertRepository inserts or updates a repository keyed by full name.
func (s *Store) UpsertRepository(ctx context.Context, repo *models.Repository) error {
	if !models.ValidFullName(repo.FullName) {
		return fmt.Errorf("invalid repository name %q", repo.FullName)
	}
	now := s.now()
	if repo.CreatedAt.IsZero() {
		repo.CreatedAt = now
	}
	repo.UpdatedAt = now
	return s.db.Upsert(ctx, "repositories", repo, []string{"full_name"})
}

// GetRepository loads a repository by id.
func (s *Store) GetRepository(ctx context.Context, id int64) (*models.Repository, error) {
	var repo models.Repository
	err := s.db.Get(ctx, &repo,
		`SELECT `+repositoryCols+` FROM repositories WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("loading repository %d: %w", id, err)
	}
	return &repo, nil
}

// GetRepositoryByFullName loads a repository by its owner/name identifier.
func (s *Store) GetRepositoryByFullName(ctx context.Context, fullName string) (*models.Repository, error) {
	if !models.ValidFullName(fullName) {
		return nil, fmt.Errorf("invalid repository name %q", fullName)
	}
	var repo models.Repository
	err := s.db.Get(ctx, &repo,
		`SELECT `+repositoryCols+` FROM repositories WHERE full_name = ?`, fullName)
	if err != nil {
		return nil, fmt.Errorf("loading repository %s: %w", fullName, err)
	}
	return &repo, nil
}

// ListRepositories returns all tracked repositories ordered by id.
func (s *Store) ListRepositories(ctx context.Context) ([]models.Repository, error) {
	var repos []models.Repository
	err := s.db.Select(ctx, &repos,
		`SELECT `+repositoryCols+` FROM repositories ORDER BY id`)
	return repos, err
}

// MarkIndexed flips the is_indexed flag once a full commit backfill finished.
func (s *Store) MarkIndexed(ctx context.Context, repositoryID int64) error {
	return s.db.Exec(ctx,
		`UPDATE repositories SET is_indexed = 1, updated_at = ? WHERE id = ?`,
		s.now(), repositoryID)
}
