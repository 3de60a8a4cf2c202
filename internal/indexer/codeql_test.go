package indexer

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gitpulse/gitpulse-indexer/models"
)

func TestNormalizeSeverity(t *testing.T) {
	cases := map[string]string{
		"error":   "critical",
		"warning": "high",
		"note":    "medium",
		"":        "medium",
		"low":     "low",      // passthrough
		"Error":   "critical", // case-insensitive
	}
	for in, want := range cases {
		if got := normalizeSeverity(in); got != want {
			t.Errorf("normalizeSeverity(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractCWE(t *testing.T) {
	cases := []struct {
		tags []string
		want string
	}{
		{[]string{"external/cwe/cwe-089", "security"}, "CWE-89"},
		{[]string{"CWE-79"}, "CWE-79"},
		{[]string{"security", "correctness"}, ""},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := extractCWE(tc.tags); got != tc.want {
			t.Errorf("extractCWE(%v) = %q, want %q", tc.tags, got, tc.want)
		}
	}
}

func TestCategorizeAlert(t *testing.T) {
	cases := []struct {
		ruleID string
		tags   []string
		want   string
	}{
		{"js/sql-injection", nil, "sql-injection"},
		{"js/xss-through-dom", nil, "xss"},
		{"py/path-injection", nil, "path-traversal"},
		{"go/command-injection", nil, "command-injection"},
		{"java/weak-password-check", nil, "authentication"},
		{"rb/weak-cipher", nil, "cryptography"},
		{"js/cleartext-logging", nil, "information-disclosure"},
		{"go/unreachable-code", []string{"maintainability"}, "other"},
		{"custom/rule", []string{"external/cwe/cwe-089", "security/sqli"}, "sql-injection"},
	}
	for _, tc := range cases {
		if got := categorizeAlert(tc.ruleID, tc.tags); got != tc.want {
			t.Errorf("categorizeAlert(%q, %v) = %q, want %q", tc.ruleID, tc.tags, got, tc.want)
		}
	}
}

func codeqlAlertJSON(number int, state, ruleID, severity string, tags []string, dismissed bool) string {
	tagJSON := "["
	for i, tag := range tags {
		if i > 0 {
			tagJSON += ","
		}
		tagJSON += fmt.Sprintf("%q", tag)
	}
	tagJSON += "]"
	dismissedAt := "null"
	if dismissed {
		dismissedAt = fmt.Sprintf("%q", time.Now().UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf(`{
		"number": %d,
		"state": %q,
		"created_at": %q,
		"dismissed_at": %s,
		"rule": {"id": %q, "name": %q, "description": "test rule", "severity": %q, "tags": %s},
		"most_recent_instance": {"location": {"path": "db/query.js", "start_line": 10, "start_column": 4}}
	}`, number, state, time.Now().UTC().Add(-72*time.Hour).Format(time.RFC3339), dismissedAt,
		ruleID, ruleID, severity, tagJSON)
}

func TestRunCodeQLSnapshotAndPrune(t *testing.T) {
	mux := http.NewServeMux()
	serveRateLimit(mux, 4500, time.Now().Add(30*time.Minute))
	mux.HandleFunc("/repos/acme/billing/code-scanning/alerts", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("state") {
		case "open":
			fmt.Fprintf(w, "[%s]", codeqlAlertJSON(2, "open", "js/sql-injection", "error",
				[]string{"external/cwe/cwe-089", "security"}, false))
		case "dismissed":
			fmt.Fprintf(w, "[%s]", codeqlAlertJSON(5, "dismissed", "js/xss-through-dom", "warning",
				[]string{"external/cwe/cwe-079"}, true))
		default:
			fmt.Fprint(w, "[]")
		}
	})

	h := newHarness(t, mux)
	ctx := context.Background()

	// Alert 1 was open on a previous pass but upstream no longer reports it.
	stale := &models.CodeQLAlert{
		RepositoryFullName: "acme/billing",
		AlertNumber:        1,
		RuleID:             "js/old-rule",
		Severity:           "high",
		State:              "open",
		CreatedAt:          time.Now().UTC().Add(-30 * 24 * time.Hour),
	}
	if err := h.store.UpsertCodeQLAlert(ctx, stale); err != nil {
		t.Fatalf("seed stale alert: %v", err)
	}

	res := h.ix.Run(ctx, models.EntityCodeQL, h.repo.ID)
	if res.Status != StatusSuccess {
		t.Fatalf("expected success, got %s (%v)", res.Status, res.Errors)
	}
	if res.Processed != 2 {
		t.Fatalf("expected 2 processed alerts, got %d", res.Processed)
	}

	open, err := h.store.OpenAlerts(ctx, "acme/billing")
	if err != nil {
		t.Fatalf("open alerts: %v", err)
	}
	if len(open) != 1 || open[0].AlertNumber != 2 {
		t.Fatalf("expected only alert 2 to remain open, got %+v", open)
	}
	got := open[0]
	if got.Severity != "critical" {
		t.Fatalf("expected severity critical (from error), got %q", got.Severity)
	}
	if got.Category != "sql-injection" {
		t.Fatalf("expected category sql-injection, got %q", got.Category)
	}
	if got.CWEID != "CWE-89" {
		t.Fatalf("expected CWE-89, got %q", got.CWEID)
	}
	if got.FilePath != "db/query.js" || got.StartLine != 10 {
		t.Fatalf("unexpected location: %s:%d", got.FilePath, got.StartLine)
	}

	// Dismissed records are never pruned.
	dismissed, err := h.store.AlertsByState(ctx, "acme/billing", "dismissed")
	if err != nil {
		t.Fatalf("dismissed alerts: %v", err)
	}
	if len(dismissed) != 1 || dismissed[0].AlertNumber != 5 {
		t.Fatalf("expected dismissed alert 5 retained, got %+v", dismissed)
	}
	if dismissed[0].Severity != "high" {
		t.Fatalf("expected severity high (from warning), got %q", dismissed[0].Severity)
	}

	state, err := h.store.StateFor(ctx, h.repo.ID, models.EntityCodeQL)
	if err != nil {
		t.Fatalf("reload state: %v", err)
	}
	if state.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", state.Status)
	}
	// Snapshot cursor records when the snapshot was taken.
	if state.LastIndexedAt == nil || !state.LastIndexedAt.Equal(*h.now) {
		t.Fatalf("expected cursor at snapshot time, got %v", state.LastIndexedAt)
	}
}

func TestRunCodeQLNotEnabledCompletesWithNote(t *testing.T) {
	mux := http.NewServeMux()
	serveRateLimit(mux, 4500, time.Now().Add(30*time.Minute))
	mux.HandleFunc("/repos/acme/billing/code-scanning/alerts", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "Code scanning is not enabled for this repository"}`)
	})

	h := newHarness(t, mux)
	ctx := context.Background()

	res := h.ix.Run(ctx, models.EntityCodeQL, h.repo.ID)
	if res.Status != StatusSuccess {
		t.Fatalf("expected success for feature-off, got %s (%v)", res.Status, res.Errors)
	}
	if res.Reason != "CodeQL not available" {
		t.Fatalf("expected the feature-off note, got %q", res.Reason)
	}

	state, err := h.store.StateFor(ctx, h.repo.ID, models.EntityCodeQL)
	if err != nil {
		t.Fatalf("reload state: %v", err)
	}
	if state.Status != models.StatusCompleted {
		t.Fatalf("feature-off must complete, got %s", state.Status)
	}
	if state.RetryCount != 0 {
		t.Fatalf("feature-off must not charge retries, got %d", state.RetryCount)
	}
}
