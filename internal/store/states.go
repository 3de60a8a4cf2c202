package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gitpulse/gitpulse-indexer/models"
)

const stateCols = `id, repository_id, repository_full_name, entity, status, last_indexed_at, last_run_at, retry_count, max_retries, batch_size_days, error_message, total_indexed, created_at, updated_at`

// defaultBatchDays is the per-entity backfill window width in days.
var defaultBatchDays = map[models.Entity]int{
	models.EntityCommits:      7,
	models.EntityPullRequests: 30,
	models.EntityDeployments:  30,
	models.EntityReleases:     90,
	models.EntityCodeQL:       365,
}

// DefaultBatchDays returns the default window width for the entity.
func DefaultBatchDays(entity models.Entity) int {
	if d, ok := defaultBatchDays[entity]; ok {
		return d
	}
	return 7
}

// minRunInterval is the per-entity floor between two runs for the same pair.
func minRunInterval(entity models.Entity) time.Duration {
	if entity == models.EntityCodeQL {
		return 6 * time.Hour
	}
	return time.Minute
}

// GetOrCreateState returns the singleton IndexingState for the pair, creating
// it with entity defaults on first encounter.
func (s *Store) GetOrCreateState(ctx context.Context, repo *models.Repository, entity models.Entity) (*models.IndexingState, error) {
	state, err := s.getState(ctx, repo.ID, entity)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := s.now()
	fresh := &models.IndexingState{
		RepositoryID:       repo.ID,
		RepositoryFullName: repo.FullName,
		Entity:             entity,
		Status:             models.StatusPending,
		MaxRetries:         models.DefaultMaxRetries,
		BatchSizeDays:      DefaultBatchDays(entity),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if _, err := s.db.Insert(ctx, "indexing_state", fresh); err != nil {
		// Another worker created the row between our read and write;
		// re-read it.
		if state, rerr := s.getState(ctx, repo.ID, entity); rerr == nil {
			return state, nil
		}
		return nil, fmt.Errorf("creating indexing state for %s/%s: %w", repo.FullName, entity, err)
	}
	return s.getState(ctx, repo.ID, entity)
}

func (s *Store) getState(ctx context.Context, repositoryID int64, entity models.Entity) (*models.IndexingState, error) {
	var state models.IndexingState
	err := s.db.Get(ctx, &state,
		`SELECT `+stateCols+` FROM indexing_state WHERE repository_id = ? AND entity = ?`,
		repositoryID, entity)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// ShouldRun decides whether a worker may start on the pair right now.
// Denied when the pair is already running, ran too recently, or has
// exhausted its retries in error state.
func (s *Store) ShouldRun(state *models.IndexingState) bool {
	if state.Status == models.StatusRunning {
		return false
	}
	if state.Status == models.StatusError && state.RetryCount >= state.MaxRetries {
		return false
	}
	if state.LastRunAt != nil {
		if s.now().Sub(*state.LastRunAt) < minRunInterval(state.Entity) {
			return false
		}
	}
	return true
}

// Begin claims the pair for the calling worker with a compare-and-set on
// (status, updated_at). It returns false when another worker claimed the row
// first. A previous error status charges one retry on the way in.
func (s *Store) Begin(ctx context.Context, state *models.IndexingState) (bool, error) {
	now := s.now()
	retries := state.RetryCount
	if state.Status == models.StatusError {
		retries++
	}
	n, err := s.db.ExecRows(ctx,
		`UPDATE indexing_state
		    SET status = ?, last_run_at = ?, retry_count = ?, updated_at = ?
		  WHERE id = ? AND status = ? AND updated_at = ?`,
		models.StatusRunning, now, retries, now,
		state.ID, state.Status, state.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("claiming indexing state %d: %w", state.ID, err)
	}
	if n == 0 {
		return false, nil
	}
	state.Status = models.StatusRunning
	state.LastRunAt = &now
	state.RetryCount = retries
	state.UpdatedAt = now
	return true, nil
}

// Complete marks a successful run: the cursor advances, the retry budget and
// error message reset, and the processed count accumulates.
func (s *Store) Complete(ctx context.Context, state *models.IndexingState, cursor time.Time, processed int) error {
	now := s.now()
	err := s.db.Exec(ctx,
		`UPDATE indexing_state
		    SET status = ?, last_indexed_at = ?, total_indexed = total_indexed + ?,
		        error_message = '', retry_count = 0, updated_at = ?
		  WHERE id = ?`,
		models.StatusCompleted, cursor, processed, now, state.ID)
	if err != nil {
		return fmt.Errorf("completing indexing state %d: %w", state.ID, err)
	}
	state.Status = models.StatusCompleted
	state.LastIndexedAt = &cursor
	state.TotalIndexed += int64(processed)
	state.ErrorMessage = ""
	state.RetryCount = 0
	state.UpdatedAt = now
	return nil
}

// CompleteKeepCursor marks a run successful without moving the cursor
// (used when a backfill window came back empty).
func (s *Store) CompleteKeepCursor(ctx context.Context, state *models.IndexingState, processed int) error {
	cursor := s.now()
	if state.LastIndexedAt != nil {
		cursor = *state.LastIndexedAt
	}
	return s.Complete(ctx, state, cursor, processed)
}

// Fail records a failed run.
func (s *Store) Fail(ctx context.Context, state *models.IndexingState, runErr error) error {
	now := s.now()
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	err := s.db.Exec(ctx,
		`UPDATE indexing_state
		    SET status = ?, error_message = ?, retry_count = retry_count + 1, updated_at = ?
		  WHERE id = ?`,
		models.StatusError, msg, now, state.ID)
	if err != nil {
		return fmt.Errorf("failing indexing state %d: %w", state.ID, err)
	}
	state.Status = models.StatusError
	state.ErrorMessage = msg
	state.RetryCount++
	state.UpdatedAt = now
	return nil
}

// Release puts a claimed pair back to pending without charging a retry.
// Used for rate-limit deferrals, where the run never really started.
func (s *Store) Release(ctx context.Context, state *models.IndexingState) error {
	now := s.now()
	err := s.db.Exec(ctx,
		`UPDATE indexing_state SET status = ?, updated_at = ? WHERE id = ?`,
		models.StatusPending, now, state.ID)
	if err != nil {
		return fmt.Errorf("releasing indexing state %d: %w", state.ID, err)
	}
	state.Status = models.StatusPending
	state.UpdatedAt = now
	return nil
}

// ReapStuck transitions rows stuck in running for longer than maxAge back to
// pending, charging one retry capped at max_retries. Returns how many rows
// were reaped.
func (s *Store) ReapStuck(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge)
	return s.db.ExecRows(ctx,
		`UPDATE indexing_state
		    SET status = ?,
		        retry_count = CASE WHEN retry_count + 1 > max_retries THEN max_retries ELSE retry_count + 1 END,
		        updated_at = ?
		  WHERE status = ? AND updated_at < ?`,
		models.StatusPending, s.now(), models.StatusRunning, cutoff)
}

// StateFor reloads the current row for the pair.
func (s *Store) StateFor(ctx context.Context, repositoryID int64, entity models.Entity) (*models.IndexingState, error) {
	return s.getState(ctx, repositoryID, entity)
}
