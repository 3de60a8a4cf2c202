// Package scheduler polls the task queue, runs pipelines on a worker pool
// and fans out the daily per-repository indexing tasks.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gitpulse/gitpulse-indexer/internal/indexer"
	"github.com/gitpulse/gitpulse-indexer/internal/store"
	"github.com/gitpulse/gitpulse-indexer/models"
)

const (
	pollInterval = 15 * time.Second
	pollBatch    = 64
)

// Dispatcher drains due tasks from the queue into a fixed worker pool. Each
// worker owns one (repository, entity) job at a time; follow-up intents
// returned by the pipelines are written back to the queue here.
type Dispatcher struct {
	store   *store.Store
	indexer *indexer.Indexer
	workers int
}

// NewDispatcher creates a dispatcher with the given pool size.
func NewDispatcher(st *store.Store, ix *indexer.Indexer, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 3
	}
	return &Dispatcher{store: st, indexer: ix, workers: workers}
}

// Run polls for due tasks until the context is cancelled. Blocks.
func (d *Dispatcher) Run(ctx context.Context) {
	jobs := make(chan models.ScheduledTask, pollBatch)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for task := range jobs {
				d.runTask(ctx, workerID, task)
			}
		}(i)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	d.pollOnce(ctx, jobs)
	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case <-ticker.C:
			d.pollOnce(ctx, jobs)
		}
	}
}

// pollOnce claims due tasks and hands them to the pool. Claiming deletes the
// row, so a task lost to a crash here reappears via the daily fan-out.
func (d *Dispatcher) pollOnce(ctx context.Context, jobs chan<- models.ScheduledTask) {
	tasks, err := d.store.DueTasks(ctx, pollBatch)
	if err != nil {
		slog.Warn("Polling due tasks failed", "error", err)
		return
	}
	for _, task := range tasks {
		claimed, err := d.store.ClaimTask(ctx, task)
		if err != nil {
			slog.Warn("Claiming task failed", "task", task.Name, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		select {
		case jobs <- task:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) runTask(ctx context.Context, workerID int, task models.ScheduledTask) {
	res := d.indexer.Run(ctx, task.Entity, task.RepositoryID)
	slog.Info("Pipeline run finished",
		"worker", workerID, "task", task.Name,
		"repo", res.RepositoryFullName, "entity", task.Entity,
		"status", res.Status, "processed", res.Processed, "has_more", res.HasMore)
	if len(res.Errors) > 0 {
		slog.Warn("Pipeline run reported errors",
			"task", task.Name, "errors", res.Errors)
	}

	if fu := res.FollowUp; fu != nil {
		if err := d.store.ScheduleTask(ctx, fu.Name, fu.Entity, fu.RepositoryID, fu.NextRun, "once"); err != nil {
			slog.Warn("Scheduling follow-up failed", "task", fu.Name, "error", err)
		}
	}
}
