package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gitpulse/gitpulse-indexer/models"
)

// UpsertCommit inserts or updates a commit keyed by (full name, sha).
func (s *Store) UpsertCommit(ctx context.Context, c *models.Commit) error {
	if !models.ValidFullName(c.RepositoryFullName) {
		return fmt.Errorf("invalid repository name %q", c.RepositoryFullName)
	}
	c.IndexedAt = s.now()
	return s.db.Upsert(ctx, "commits", c, []string{"repository_full_name", "sha"})
}

// CommitCount returns the number of stored commits for the repository.
func (s *Store) CommitCount(ctx context.Context, fullName string) (int64, error) {
	var rows []struct {
		N int64 `db:"n"`
	}
	err := s.db.Select(ctx, &rows,
		`SELECT COUNT(*) AS n FROM commits WHERE repository_full_name = ?`, fullName)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	return rows[0].N, nil
}

// UpsertPullRequest inserts or updates a PR keyed by (full name, number).
func (s *Store) UpsertPullRequest(ctx context.Context, pr *models.PullRequest) error {
	if !models.ValidFullName(pr.RepositoryFullName) {
		return fmt.Errorf("invalid repository name %q", pr.RepositoryFullName)
	}
	pr.IndexedAt = s.now()
	return s.db.Upsert(ctx, "pull_requests", pr, []string{"repository_full_name", "number"})
}

// UpsertRelease inserts or updates a release keyed by the provider id.
func (s *Store) UpsertRelease(ctx context.Context, r *models.Release) error {
	if !models.ValidFullName(r.RepositoryFullName) {
		return fmt.Errorf("invalid repository name %q", r.RepositoryFullName)
	}
	r.IndexedAt = s.now()
	return s.db.Upsert(ctx, "releases", r, []string{"release_id"})
}

// UpsertDeployment inserts or updates a deployment keyed by the provider id.
func (s *Store) UpsertDeployment(ctx context.Context, d *models.Deployment) error {
	if !models.ValidFullName(d.RepositoryFullName) {
		return fmt.Errorf("invalid repository name %q", d.RepositoryFullName)
	}
	d.IndexedAt = s.now()
	return s.db.Upsert(ctx, "deployments", d, []string{"deployment_id"})
}

// GetDeployment loads a persisted deployment by provider id; (nil, nil) when
// the record does not exist yet.
func (s *Store) GetDeployment(ctx context.Context, deploymentID int64) (*models.Deployment, error) {
	var d models.Deployment
	err := s.db.Get(ctx, &d,
		`SELECT id, deployment_id, repository_full_name, environment, creator, created_at, updated_at, statuses, indexed_at
		   FROM deployments WHERE deployment_id = ?`, deploymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
