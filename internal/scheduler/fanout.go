package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gitpulse/gitpulse-indexer/internal/metrics"
	"github.com/gitpulse/gitpulse-indexer/internal/store"
	"github.com/gitpulse/gitpulse-indexer/models"
)

// stuckAge is how long a running state may sit untouched before the reaper
// returns it to pending.
const stuckAge = time.Hour

// entityStagger spreads the per-entity daily sweeps across the hour so all
// pipelines do not hit the same credential budget at once.
var entityStagger = map[models.Entity]time.Duration{
	models.EntityCommits:      0,
	models.EntityPullRequests: 10 * time.Minute,
	models.EntityReleases:     20 * time.Minute,
	models.EntityDeployments:  30 * time.Minute,
	models.EntityCodeQL:       40 * time.Minute,
}

// FanOutResult aggregates the per-repository outcome of one sweep.
type FanOutResult struct {
	Entity    models.Entity `json:"entity"`
	Total     int           `json:"total"`
	Scheduled int           `json:"successfully_scheduled"`
	Failed    int           `json:"failed_to_schedule"`
	Results   []string      `json:"results,omitempty"`
}

// Sweeper owns the recurring jobs: the daily per-entity fan-out and the
// hourly stuck-state reaper.
type Sweeper struct {
	store *store.Store
	cron  *cron.Cron
	now   func() time.Time
}

// NewSweeper creates a Sweeper; Start registers and runs the cron entries.
func NewSweeper(st *store.Store) *Sweeper {
	return &Sweeper{store: st, cron: cron.New(), now: func() time.Time { return time.Now().UTC() }}
}

// Start registers the recurring entries and starts the cron runner.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("5 2 * * *", func() { s.FanOutAll(ctx) }); err != nil {
		return fmt.Errorf("registering daily fan-out: %w", err)
	}
	if _, err := s.cron.AddFunc("@hourly", func() { s.Reap(ctx) }); err != nil {
		return fmt.Errorf("registering reaper: %w", err)
	}
	s.cron.Start()
	slog.Info("Sweeper started", "entities", len(models.AllEntities))
	return nil
}

// Stop halts the cron runner.
func (s *Sweeper) Stop() { s.cron.Stop() }

// FanOutAll enqueues one task per (repository, entity), staggered per entity.
func (s *Sweeper) FanOutAll(ctx context.Context) []FanOutResult {
	results := make([]FanOutResult, 0, len(models.AllEntities))
	for _, entity := range models.AllEntities {
		results = append(results, s.FanOut(ctx, entity))
	}
	return results
}

// FanOut enumerates repositories and schedules the per-repo task for one
// entity. Scheduling failures are counted and logged, never fatal; the next
// daily sweep retries them.
func (s *Sweeper) FanOut(ctx context.Context, entity models.Entity) FanOutResult {
	res := FanOutResult{Entity: entity}

	repos, err := s.store.ListRepositories(ctx)
	if err != nil {
		slog.Error("Fan-out could not list repositories", "entity", entity, "error", err)
		res.Results = append(res.Results, err.Error())
		return res
	}
	res.Total = len(repos)

	nextRun := s.now().Add(entityStagger[entity])
	for _, repo := range repos {
		name := store.TaskName(entity, repo.ID)
		if err := s.store.ScheduleTask(ctx, name, entity, repo.ID, nextRun, "once"); err != nil {
			res.Failed++
			res.Results = append(res.Results, fmt.Sprintf("%s: %v", repo.FullName, err))
			slog.Warn("Fan-out scheduling failed", "repo", repo.FullName, "entity", entity, "error", err)
			continue
		}
		res.Scheduled++
	}

	slog.Info("Fan-out complete", "entity", entity,
		"total", res.Total, "scheduled", res.Scheduled, "failed", res.Failed)
	return res
}

// Reap returns long-running states to pending, charging one retry each.
func (s *Sweeper) Reap(ctx context.Context) {
	n, err := s.store.ReapStuck(ctx, stuckAge)
	if err != nil {
		slog.Error("Reaping stuck states failed", "error", err)
		return
	}
	if n > 0 {
		metrics.StuckReaped.Add(float64(n))
		slog.Info("Reaped stuck indexing states", "count", n)
	}
}
