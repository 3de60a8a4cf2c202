package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	gogithub "github.com/google/go-github/v68/github"

	"github.com/gitpulse/gitpulse-indexer/models"
)

func TestRunDeploymentsFetchesStatuses(t *testing.T) {
	mux := http.NewServeMux()
	serveRateLimit(mux, 4500, time.Now().Add(30*time.Minute))

	now := time.Now().UTC().Truncate(time.Second)
	created := now.Add(-48 * time.Hour)

	mux.HandleFunc("/repos/acme/billing/deployments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{
			"id": 11,
			"environment": "production",
			"creator": {"login": "ada"},
			"created_at": %q,
			"updated_at": %q
		}]`, created.Format(time.RFC3339), now.Add(-time.Hour).Format(time.RFC3339))
	})
	mux.HandleFunc("/repos/acme/billing/deployments/11/statuses", func(w http.ResponseWriter, r *http.Request) {
		// Newest first, as the API serves them.
		fmt.Fprintf(w, `[
			{"state": "success", "description": "deployed", "created_at": %q},
			{"state": "pending", "description": "queued", "created_at": %q}
		]`, now.Add(-time.Hour).Format(time.RFC3339), created.Format(time.RFC3339))
	})

	h := newHarness(t, mux)
	ctx := context.Background()

	res := h.ix.Run(ctx, models.EntityDeployments, h.repo.ID)
	if res.Status != StatusSuccess {
		t.Fatalf("expected success, got %s (%v)", res.Status, res.Errors)
	}
	if res.Processed != 1 {
		t.Fatalf("expected 1 processed, got %d", res.Processed)
	}
	// No deployment predates the window: the backfill is done.
	if res.HasMore || res.FollowUp != nil {
		t.Fatal("expected no follow-up when nothing predates the window")
	}

	dep, err := h.store.GetDeployment(ctx, 11)
	if err != nil || dep == nil {
		t.Fatalf("load deployment: %v (%v)", dep, err)
	}
	if dep.Environment != "production" || dep.Creator != "ada" {
		t.Fatalf("unexpected deployment: %+v", dep)
	}

	var statuses []models.DeploymentStatus
	if err := json.Unmarshal([]byte(dep.Statuses), &statuses); err != nil {
		t.Fatalf("decode statuses: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	// Stored chronologically: the last entry is the latest state.
	if statuses[0].State != "pending" || statuses[1].State != "success" {
		t.Fatalf("expected chronological statuses, got %+v", statuses)
	}
	if !statuses[1].Terminal() {
		t.Fatal("success must classify as terminal")
	}
	if statuses[0].Terminal() {
		t.Fatal("pending must classify as non-terminal")
	}
}

func TestNeedsStatusRefresh(t *testing.T) {
	updated := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	terminal, _ := json.Marshal([]models.DeploymentStatus{
		{State: "pending", CreatedAt: updated.Add(-time.Hour)},
		{State: "success", CreatedAt: updated},
	})
	pending, _ := json.Marshal([]models.DeploymentStatus{
		{State: "in_progress", CreatedAt: updated},
	})

	dep := &gogithub.Deployment{UpdatedAt: &gogithub.Timestamp{Time: updated}}

	if !needsStatusRefresh(nil, dep) {
		t.Error("a new record must fetch statuses")
	}
	if !needsStatusRefresh(&models.Deployment{Statuses: "[]", UpdatedAt: updated}, dep) {
		t.Error("an empty status list must be refreshed")
	}
	if !needsStatusRefresh(&models.Deployment{Statuses: string(pending), UpdatedAt: updated}, dep) {
		t.Error("a non-terminal last status must be refreshed")
	}
	if needsStatusRefresh(&models.Deployment{Statuses: string(terminal), UpdatedAt: updated}, dep) {
		t.Error("a terminal status with no upstream movement must not be refreshed")
	}

	moved := &gogithub.Deployment{UpdatedAt: &gogithub.Timestamp{Time: updated.Add(time.Hour)}}
	if !needsStatusRefresh(&models.Deployment{Statuses: string(terminal), UpdatedAt: updated}, moved) {
		t.Error("an advanced upstream updated_at must trigger a refresh")
	}
}
