package indexer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gitpulse/gitpulse-indexer/internal/config"
	"github.com/gitpulse/gitpulse-indexer/internal/database"
	"github.com/gitpulse/gitpulse-indexer/internal/store"
	"github.com/gitpulse/gitpulse-indexer/internal/token"
	"github.com/gitpulse/gitpulse-indexer/models"
)

func configWith(batch, thresholds map[string]int) config.IndexerConfig {
	return config.IndexerConfig{BatchSizeDays: batch, RateThresholds: thresholds}
}

type harness struct {
	ix    *Indexer
	store *store.Store
	repo  *models.Repository
	now   *time.Time
}

// newHarness wires an Indexer against a temp SQLite store and an httptest
// upstream. The clock is frozen and shared across store, broker and indexer.
func newHarness(t *testing.T, mux *http.ServeMux) *harness {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	dbPath := filepath.Join(t.TempDir(), "indexer-test.db")
	db, err := database.NewSQLite(config.DatabaseConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("new sqlite db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	clock := func() time.Time { return now }

	st := store.New(db).WithClock(clock)
	cfg := &config.Config{
		GitHub:  config.GitHubConfig{Host: "github.com", OAuthAppSecret: "public-token"},
		Indexer: config.IndexerConfig{Service: "api", Workers: 1},
	}
	broker := token.NewBroker(cfg.GitHub, st).WithClock(clock)
	if err := broker.SetBaseURL(srv.URL); err != nil {
		t.Fatalf("set base url: %v", err)
	}

	ix := New(cfg, st, broker, nil).WithClock(clock)
	ix.pageDelay = 0

	ctx := context.Background()
	repo := &models.Repository{
		FullName: "acme/billing",
		CloneURL: "https://github.com/acme/billing.git",
	}
	if err := st.UpsertRepository(ctx, repo); err != nil {
		t.Fatalf("seed repository: %v", err)
	}
	loaded, err := st.GetRepositoryByFullName(ctx, "acme/billing")
	if err != nil {
		t.Fatalf("load repository: %v", err)
	}

	return &harness{ix: ix, store: st, repo: loaded, now: &now}
}

// serveRateLimit registers a /rate_limit handler with the given remaining
// budget.
func serveRateLimit(mux *http.ServeMux, remaining int, reset time.Time) {
	mux.HandleFunc("/rate_limit", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"resources":{"core":{"limit":5000,"remaining":%d,"reset":%d}}}`,
			remaining, reset.Unix())
	})
}

func TestRunCommitsBackfillWindow(t *testing.T) {
	mux := http.NewServeMux()
	now := time.Now().UTC().Truncate(time.Second)
	serveRateLimit(mux, 4500, now.Add(30*time.Minute))

	authored := now.Add(-48 * time.Hour).Format(time.RFC3339)
	commit := func(sha, message string) string {
		return fmt.Sprintf(`{
			"sha": %q,
			"commit": {
				"author": {"name": "Ada", "email": "ada@example.com", "date": %q},
				"committer": {"name": "Ada", "email": "ada@example.com", "date": %q},
				"message": %q
			},
			"stats": {"additions": 3, "deletions": 1, "total": 4},
			"files": [{"filename": "main.go", "status": "modified", "additions": 3, "deletions": 1}]
		}`, sha, authored, authored, message)
	}
	mux.HandleFunc("/repos/acme/billing/commits", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("since") == "" || r.URL.Query().Get("until") == "" {
			t.Errorf("expected since/until query params, got %q", r.URL.RawQuery)
		}
		fmt.Fprintf(w, "[%s,%s]", commit("a1", "fix: null deref"), commit("b2", "Add pagination"))
	})
	mux.HandleFunc("/repos/acme/billing/commits/a1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, commit("a1", "fix: null deref"))
	})
	mux.HandleFunc("/repos/acme/billing/commits/b2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, commit("b2", "Add pagination"))
	})

	h := newHarness(t, mux)
	ctx := context.Background()

	res := h.ix.Run(ctx, models.EntityCommits, h.repo.ID)
	if res.Status != StatusSuccess {
		t.Fatalf("expected success, got %s (%v)", res.Status, res.Errors)
	}
	if res.Processed != 2 {
		t.Fatalf("expected 2 processed, got %d", res.Processed)
	}
	if !res.HasMore || res.FollowUp == nil {
		t.Fatal("non-empty backfill window must schedule a follow-up")
	}
	if want := store.TaskName(models.EntityCommits, h.repo.ID); res.FollowUp.Name != want {
		t.Fatalf("expected follow-up %q, got %q", want, res.FollowUp.Name)
	}

	state, err := h.store.StateFor(ctx, h.repo.ID, models.EntityCommits)
	if err != nil {
		t.Fatalf("reload state: %v", err)
	}
	if state.Status != models.StatusCompleted {
		t.Fatalf("expected completed state, got %s", state.Status)
	}
	// Backfill cursor: the oldest point reached is the window start.
	if state.LastIndexedAt == nil || !state.LastIndexedAt.Equal(res.Since) {
		t.Fatalf("expected cursor %v, got %v", res.Since, state.LastIndexedAt)
	}
	if got := h.now.Sub(res.Since); got != 7*24*time.Hour {
		t.Fatalf("expected a 7-day window, got %v", got)
	}

	n, err := h.store.CommitCount(ctx, "acme/billing")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 stored commits, got %d (%v)", n, err)
	}
}

func TestRunCommitsEmptyFetchFinishesBackfill(t *testing.T) {
	mux := http.NewServeMux()
	serveRateLimit(mux, 4500, time.Now().Add(30*time.Minute))
	mux.HandleFunc("/repos/acme/billing/commits", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	})

	h := newHarness(t, mux)
	ctx := context.Background()

	res := h.ix.Run(ctx, models.EntityCommits, h.repo.ID)
	if res.Status != StatusSuccess {
		t.Fatalf("expected success, got %s (%v)", res.Status, res.Errors)
	}
	if res.HasMore || res.FollowUp != nil {
		t.Fatal("empty fetch must not schedule a follow-up")
	}

	repo, err := h.store.GetRepository(ctx, h.repo.ID)
	if err != nil {
		t.Fatalf("reload repo: %v", err)
	}
	if !repo.IsIndexed {
		t.Fatal("finishing the backfill must mark the repository indexed")
	}
	state, err := h.store.StateFor(ctx, h.repo.ID, models.EntityCommits)
	if err != nil {
		t.Fatalf("reload state: %v", err)
	}
	if state.Status != models.StatusCompleted {
		t.Fatalf("expected completed state, got %s", state.Status)
	}
}

func TestRunDefersWhenRateBudgetLow(t *testing.T) {
	mux := http.NewServeMux()
	reset := time.Now().UTC().Truncate(time.Second).Add(17 * time.Minute)
	serveRateLimit(mux, 50, reset) // below the commits threshold of 100

	h := newHarness(t, mux)
	ctx := context.Background()

	res := h.ix.Run(ctx, models.EntityCommits, h.repo.ID)
	if res.Status != StatusRateLimited {
		t.Fatalf("expected rate_limited, got %s (%v)", res.Status, res.Errors)
	}
	if res.FollowUp == nil || !res.FollowUp.Retry {
		t.Fatal("deferral must carry a retry follow-up")
	}
	if want := store.RetryTaskName(models.EntityCommits, h.repo.ID); res.FollowUp.Name != want {
		t.Fatalf("expected retry task %q, got %q", want, res.FollowUp.Name)
	}
	if want := reset.Add(5 * time.Minute); !res.FollowUp.NextRun.Equal(want) {
		t.Fatalf("expected next_run %v, got %v", want, res.FollowUp.NextRun)
	}
	if res.ScheduledFor == nil || !res.ScheduledFor.Equal(res.FollowUp.NextRun) {
		t.Fatalf("scheduled_for must match the follow-up, got %v", res.ScheduledFor)
	}

	// The pair was never claimed: no retry charged, still runnable later.
	state, err := h.store.StateFor(ctx, h.repo.ID, models.EntityCommits)
	if err != nil {
		t.Fatalf("reload state: %v", err)
	}
	if state.Status != models.StatusPending {
		t.Fatalf("expected pending after deferral, got %s", state.Status)
	}
	if state.RetryCount != 0 {
		t.Fatalf("deferral must not charge a retry, got %d", state.RetryCount)
	}
}

func TestRunSkipsWhenPairIsRunning(t *testing.T) {
	mux := http.NewServeMux()
	serveRateLimit(mux, 4500, time.Now().Add(30*time.Minute))

	h := newHarness(t, mux)
	ctx := context.Background()

	state, err := h.store.GetOrCreateState(ctx, h.repo, models.EntityCommits)
	if err != nil {
		t.Fatalf("get_or_create: %v", err)
	}
	if _, err := h.store.Begin(ctx, state); err != nil {
		t.Fatalf("begin: %v", err)
	}

	res := h.ix.Run(ctx, models.EntityCommits, h.repo.ID)
	if res.Status != StatusSkipped {
		t.Fatalf("expected skipped while running, got %s", res.Status)
	}
}

func TestRunPermissionDeniedFailsState(t *testing.T) {
	mux := http.NewServeMux()
	serveRateLimit(mux, 4500, time.Now().Add(30*time.Minute))
	mux.HandleFunc("/repos/acme/billing/commits", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Bad credentials"}`)
	})

	h := newHarness(t, mux)
	ctx := context.Background()

	res := h.ix.Run(ctx, models.EntityCommits, h.repo.ID)
	if res.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if res.Reason != "permission_denied" {
		t.Fatalf("expected permission_denied reason, got %q", res.Reason)
	}

	state, err := h.store.StateFor(ctx, h.repo.ID, models.EntityCommits)
	if err != nil {
		t.Fatalf("reload state: %v", err)
	}
	if state.Status != models.StatusError {
		t.Fatalf("expected error state, got %s", state.Status)
	}
	if state.RetryCount != 1 {
		t.Fatalf("expected one charged retry, got %d", state.RetryCount)
	}
	if state.ErrorMessage == "" {
		t.Fatal("expected the error message to be recorded")
	}
}
