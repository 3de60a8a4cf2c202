package store

import (
	"context"
	"time"

	"github.com/gitpulse/gitpulse-indexer/models"
)

// AppendKLOC appends a size snapshot; history rows are never mutated.
func (s *Store) AppendKLOC(ctx context.Context, rec *models.RepositoryKLOCHistory) error {
	if rec.CalculatedAt.IsZero() {
		rec.CalculatedAt = s.now()
	}
	_, err := s.db.Insert(ctx, "repository_kloc_history", rec)
	return err
}

// LatestKLOCAt returns the calculated_at of the most recent snapshot for the
// repository, or the zero time when none exists.
func (s *Store) LatestKLOCAt(ctx context.Context, repositoryID int64) (time.Time, error) {
	var rows []models.RepositoryKLOCHistory
	err := s.db.Select(ctx, &rows,
		`SELECT id, repository_id, kloc, total_lines, language_breakdown, calculated_at
		   FROM repository_kloc_history
		  WHERE repository_id = ? ORDER BY calculated_at DESC LIMIT 1`,
		repositoryID)
	if err != nil || len(rows) == 0 {
		return time.Time{}, err
	}
	return rows[0].CalculatedAt, nil
}

// KLOCFresh reports whether a snapshot newer than maxAge exists.
func (s *Store) KLOCFresh(ctx context.Context, repositoryID int64, maxAge time.Duration) (bool, error) {
	at, err := s.LatestKLOCAt(ctx, repositoryID)
	if err != nil {
		return false, err
	}
	if at.IsZero() {
		return false, nil
	}
	return s.now().Sub(at) < maxAge, nil
}
