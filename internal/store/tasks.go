package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gitpulse/gitpulse-indexer/models"
)

const taskCols = `id, name, entity, repository_id, next_run, schedule_type, created_at, updated_at`

// TaskName is the canonical name for a per-repository follow-up task.
func TaskName(entity models.Entity, repositoryID int64) string {
	return fmt.Sprintf("%s_indexing_repo_%d", entity, repositoryID)
}

// RetryTaskName is the canonical name for a rate-limit deferral task.
func RetryTaskName(entity models.Entity, repositoryID int64) string {
	return TaskName(entity, repositoryID) + "_retry"
}

// ScheduleTask upserts a task by canonical name: an existing row gets its
// next_run moved in place. This is the deduplication primitive that keeps
// repeated deferrals from fanning out.
func (s *Store) ScheduleTask(ctx context.Context, name string, entity models.Entity, repositoryID int64, nextRun time.Time, scheduleType string) error {
	now := s.now()
	task := &models.ScheduledTask{
		Name:         name,
		Entity:       entity,
		RepositoryID: repositoryID,
		NextRun:      nextRun,
		ScheduleType: scheduleType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.Upsert(ctx, "scheduled_tasks", task, []string{"name"}); err != nil {
		return fmt.Errorf("scheduling task %s: %w", name, err)
	}
	return nil
}

// EnqueueTask places an immediately runnable task on the queue.
func (s *Store) EnqueueTask(ctx context.Context, entity models.Entity, repositoryID int64) error {
	return s.ScheduleTask(ctx, TaskName(entity, repositoryID), entity, repositoryID, s.now(), "once")
}

// DueTasks returns tasks whose next_run has passed, oldest first.
func (s *Store) DueTasks(ctx context.Context, limit int) ([]models.ScheduledTask, error) {
	var tasks []models.ScheduledTask
	err := s.db.Select(ctx, &tasks,
		`SELECT `+taskCols+` FROM scheduled_tasks WHERE next_run <= ? ORDER BY next_run LIMIT ?`,
		s.now(), limit)
	return tasks, err
}

// ClaimTask removes the task row; the claim succeeded only when the delete
// hit exactly one row, so two dispatchers cannot both own it.
func (s *Store) ClaimTask(ctx context.Context, task models.ScheduledTask) (bool, error) {
	n, err := s.db.ExecRows(ctx,
		`DELETE FROM scheduled_tasks WHERE id = ? AND updated_at = ?`,
		task.ID, task.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("claiming task %s: %w", task.Name, err)
	}
	return n == 1, nil
}

// TaskByName loads a scheduled task by canonical name.
func (s *Store) TaskByName(ctx context.Context, name string) (*models.ScheduledTask, error) {
	var task models.ScheduledTask
	err := s.db.Get(ctx, &task,
		`SELECT `+taskCols+` FROM scheduled_tasks WHERE name = ?`, name)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// CountTasksByName returns how many rows carry the given canonical name.
// With the unique constraint this is 0 or 1; tests assert on it directly.
func (s *Store) CountTasksByName(ctx context.Context, name string) (int, error) {
	var rows []models.ScheduledTask
	err := s.db.Select(ctx, &rows,
		`SELECT `+taskCols+` FROM scheduled_tasks WHERE name = ?`, name)
	return len(rows), err
}
