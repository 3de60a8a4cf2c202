// Package indexer implements the per-(repository, entity) fetch → parse →
// upsert → prune pipelines and the state machine around them.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gitpulse/gitpulse-indexer/internal/config"
	"github.com/gitpulse/gitpulse-indexer/internal/metrics"
	"github.com/gitpulse/gitpulse-indexer/internal/store"
	"github.com/gitpulse/gitpulse-indexer/internal/token"
	"github.com/gitpulse/gitpulse-indexer/models"
)

// LocalRunOutcome is what the local-clone commit pipeline reports back.
type LocalRunOutcome struct {
	Processed int
	Skipped   bool
	Reason    string
	Cursor    time.Time
}

// LocalCommitRunner ingests commits from a local clone instead of the API.
// Implemented by the gitlocal package.
type LocalCommitRunner interface {
	Run(ctx context.Context, repo *models.Repository, since *time.Time) (LocalRunOutcome, error)
	ComputeKLOC(ctx context.Context, repo *models.Repository) error
}

// Indexer runs one pipeline window per call. All dependencies are injected
// so pipelines are testable with in-memory fakes and httptest servers.
type Indexer struct {
	cfg    *config.Config
	store  *store.Store
	broker *token.Broker
	local  LocalCommitRunner

	now       func() time.Time
	pageDelay time.Duration
}

// New creates an Indexer. local may be nil when the API service is selected.
func New(cfg *config.Config, st *store.Store, broker *token.Broker, local LocalCommitRunner) *Indexer {
	return &Indexer{
		cfg:       cfg,
		store:     st,
		broker:    broker,
		local:     local,
		now:       func() time.Time { return time.Now().UTC() },
		pageDelay: 100 * time.Millisecond,
	}
}

// WithClock overrides the indexer clock (tests).
func (ix *Indexer) WithClock(now func() time.Time) *Indexer {
	ix.now = now
	return ix
}

// runOutcome is the inner result of one entity fetch over one window.
type runOutcome struct {
	processed  int
	hasMore    bool
	finished   bool // backfill reached the beginning of history
	cursor     time.Time
	note       string
	itemErrors []string
}

// Run executes one pipeline window for the pair and returns the outcome,
// including any follow-up intent for the dispatcher to act on.
func (ix *Indexer) Run(ctx context.Context, entity models.Entity, repositoryID int64) Result {
	start := ix.now()
	res := ix.run(ctx, entity, repositoryID)
	metrics.ObserveRun(string(entity), string(res.Status), res.Processed, ix.now().Sub(start))
	return res
}

func (ix *Indexer) run(ctx context.Context, entity models.Entity, repositoryID int64) Result {
	repo, err := ix.store.GetRepository(ctx, repositoryID)
	if err != nil {
		return Result{Status: StatusFailed, RepositoryID: repositoryID,
			Errors: []string{fmt.Sprintf("loading repository: %v", err)}}
	}
	res := Result{RepositoryID: repo.ID, RepositoryFullName: repo.FullName}

	if !models.ValidFullName(repo.FullName) {
		res.Status = StatusFailed
		res.Errors = append(res.Errors, fmt.Sprintf("invalid repository name %q", repo.FullName))
		return res
	}

	state, err := ix.store.GetOrCreateState(ctx, repo, entity)
	if err != nil {
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	if !ix.store.ShouldRun(state) {
		res.Status = StatusSkipped
		res.Reason = fmt.Sprintf("state is %s (retries %d/%d)", state.Status, state.RetryCount, state.MaxRetries)
		return res
	}

	if entity == models.EntityCommits && ix.cfg.Indexer.Service == "git_local" && ix.local != nil {
		return ix.runLocalCommits(ctx, repo, state, res)
	}

	desc := Describe(entity, ix.cfg.Indexer)

	cred, err := ix.broker.Resolve(ctx, repo, operationFor(entity, repo))
	if err != nil {
		_ = ix.store.Fail(ctx, state, err)
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	rate, err := ix.broker.CheckRateLimit(ctx, cred.Token)
	if err != nil {
		_ = ix.store.Fail(ctx, state, err)
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	if rate.Remaining < desc.RateThreshold {
		// Defer before claiming: retry_count stays untouched and no
		// substantive call is made against the exhausted budget.
		nextRun := rate.Reset.Add(desc.ResetSlack)
		metrics.RateLimitDeferrals.WithLabelValues(string(entity)).Inc()
		slog.Info("Rate budget below threshold; deferring",
			"repo", repo.FullName, "entity", entity,
			"remaining", rate.Remaining, "threshold", desc.RateThreshold,
			"next_run", nextRun)
		res.Status = StatusRateLimited
		res.ScheduledFor = &nextRun
		res.FollowUp = &FollowUp{
			Name:         store.RetryTaskName(entity, repo.ID),
			Entity:       entity,
			RepositoryID: repo.ID,
			NextRun:      nextRun,
			Retry:        true,
		}
		return res
	}

	claimed, err := ix.store.Begin(ctx, state)
	if err != nil {
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	if !claimed {
		res.Status = StatusSkipped
		res.Reason = "another worker claimed this pair"
		return res
	}

	client, err := ix.broker.Client(ctx, cred.Token)
	if err != nil {
		_ = ix.store.Fail(ctx, state, err)
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	win := deriveWindow(desc, state.LastIndexedAt, ix.now())
	res.Since, res.Until = win.Since, win.Until

	var outcome runOutcome
	var runErr error
	switch entity {
	case models.EntityCommits:
		outcome, runErr = ix.runCommits(ctx, client, repo, win, desc)
	case models.EntityPullRequests:
		outcome, runErr = ix.runPullRequests(ctx, client, repo, win, desc)
	case models.EntityReleases:
		outcome, runErr = ix.runReleases(ctx, client, repo, win, desc)
	case models.EntityDeployments:
		outcome, runErr = ix.runDeployments(ctx, client, repo, win, desc)
	case models.EntityCodeQL:
		outcome, runErr = ix.runCodeQL(ctx, client, repo, desc)
	default:
		runErr = fmt.Errorf("unknown entity %q", entity)
	}

	if runErr != nil {
		return ix.finishError(ctx, state, desc, repo, res, runErr)
	}
	return ix.finishSuccess(ctx, state, desc, repo, res, outcome)
}

// finishError maps a pipeline error through the taxonomy and settles state.
func (ix *Indexer) finishError(ctx context.Context, state *models.IndexingState, desc Descriptor, repo *models.Repository, res Result, runErr error) Result {
	switch Classify(runErr) {
	case KindNotFoundOrDisabled:
		note := "not available"
		if desc.Entity == models.EntityCodeQL {
			note = "CodeQL not available"
		}
		if err := ix.store.Complete(ctx, state, ix.now(), 0); err != nil {
			slog.Warn("Completing state after feature-off failed", "error", err)
		}
		slog.Info("Entity not available for repository",
			"repo", repo.FullName, "entity", desc.Entity, "error", runErr)
		res.Status = StatusSuccess
		res.Reason = note
		return res

	case KindRateLimited:
		// The budget died mid-run; put the pair back without charging a
		// retry and defer.
		if err := ix.store.Release(ctx, state); err != nil {
			slog.Warn("Releasing state after mid-run rate limit failed", "error", err)
		}
		nextRun := ix.now().Add(desc.ResetSlack)
		metrics.RateLimitDeferrals.WithLabelValues(string(desc.Entity)).Inc()
		res.Status = StatusRateLimited
		res.ScheduledFor = &nextRun
		res.FollowUp = &FollowUp{
			Name:         store.RetryTaskName(desc.Entity, repo.ID),
			Entity:       desc.Entity,
			RepositoryID: repo.ID,
			NextRun:      nextRun,
			Retry:        true,
		}
		return res

	case KindPermissionDenied:
		if err := ix.store.Fail(ctx, state, runErr); err != nil {
			slog.Warn("Recording permission failure failed", "error", err)
		}
		slog.Warn("Permission denied for repository",
			"repo", repo.FullName, "entity", desc.Entity, "error", runErr)
		res.Status = StatusFailed
		res.Reason = "permission_denied"
		res.Errors = append(res.Errors, runErr.Error())
		return res

	default: // transient
		if err := ix.store.Fail(ctx, state, runErr); err != nil {
			slog.Warn("Recording transient failure failed", "error", err)
		}
		res.Status = StatusFailed
		res.Errors = append(res.Errors, runErr.Error())
		return res
	}
}

// finishSuccess settles the state cursor and derives the follow-up intent.
func (ix *Indexer) finishSuccess(ctx context.Context, state *models.IndexingState, desc Descriptor, repo *models.Repository, res Result, outcome runOutcome) Result {
	res.Processed = outcome.processed
	res.HasMore = outcome.hasMore
	res.Errors = append(res.Errors, outcome.itemErrors...)
	res.Reason = outcome.note

	var err error
	if desc.Direction == DirectionBackfill && outcome.finished && outcome.processed == 0 {
		err = ix.store.CompleteKeepCursor(ctx, state, 0)
	} else {
		err = ix.store.Complete(ctx, state, outcome.cursor, outcome.processed)
	}
	if err != nil {
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	res.Status = StatusSuccess

	if desc.Entity == models.EntityCommits && outcome.finished {
		if err := ix.store.MarkIndexed(ctx, repo.ID); err != nil {
			slog.Warn("Marking repository indexed failed", "repo", repo.FullName, "error", err)
		}
		ix.maybeComputeKLOC(ctx, repo)
	}

	if outcome.hasMore {
		res.FollowUp = &FollowUp{
			Name:         store.TaskName(desc.Entity, repo.ID),
			Entity:       desc.Entity,
			RepositoryID: repo.ID,
			NextRun:      ix.now().Add(30 * time.Second),
		}
	}
	return res
}

// runLocalCommits drives the git_local commit path through the same state
// machine as the API variant.
func (ix *Indexer) runLocalCommits(ctx context.Context, repo *models.Repository, state *models.IndexingState, res Result) Result {
	claimed, err := ix.store.Begin(ctx, state)
	if err != nil {
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	if !claimed {
		res.Status = StatusSkipped
		res.Reason = "another worker claimed this pair"
		return res
	}

	outcome, err := ix.local.Run(ctx, repo, state.LastIndexedAt)
	if err != nil {
		if cerr := ix.store.Fail(ctx, state, err); cerr != nil {
			slog.Warn("Recording local-clone failure failed", "error", cerr)
		}
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	if outcome.Skipped {
		// Terminal clone conditions are not charged against the retry
		// budget; the pair goes back to pending untouched.
		if cerr := ix.store.Release(ctx, state); cerr != nil {
			slog.Warn("Releasing state after clone skip failed", "error", cerr)
		}
		res.Status = StatusCloneSkip
		res.Reason = outcome.Reason
		return res
	}

	if err := ix.store.Complete(ctx, state, outcome.Cursor, outcome.Processed); err != nil {
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	if err := ix.store.MarkIndexed(ctx, repo.ID); err != nil {
		slog.Warn("Marking repository indexed failed", "repo", repo.FullName, "error", err)
	}
	res.Status = StatusSuccess
	res.Processed = outcome.Processed
	return res
}

// maybeComputeKLOC appends a size snapshot when none exists within the last
// 30 days and a local pipeline is available to compute one.
func (ix *Indexer) maybeComputeKLOC(ctx context.Context, repo *models.Repository) {
	if ix.local == nil {
		return
	}
	fresh, err := ix.store.KLOCFresh(ctx, repo.ID, 30*24*time.Hour)
	if err != nil {
		slog.Warn("Checking KLOC freshness failed", "repo", repo.FullName, "error", err)
		return
	}
	if fresh {
		return
	}
	if err := ix.local.ComputeKLOC(ctx, repo); err != nil {
		slog.Warn("KLOC computation failed", "repo", repo.FullName, "error", err)
	}
}
