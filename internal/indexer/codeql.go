package indexer

import (
	"context"
	"fmt"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v68/github"

	"github.com/gitpulse/gitpulse-indexer/models"
)

// alertStates are the code-scanning states fetched per run. The snapshot
// must cover all three so obsolete open alerts can be pruned afterwards.
var alertStates = []string{"open", "dismissed", "fixed"}

// severityMap normalizes provider rule severities onto the internal scale.
// Unknown values pass through; empty becomes medium.
var severityMap = map[string]string{
	"error":   "critical",
	"warning": "high",
	"note":    "medium",
}

// categoryRules map rule id or tag substrings to a vulnerability category,
// checked in order.
var categoryRules = []struct {
	category string
	markers  []string
}{
	{"sql-injection", []string{"sql-injection", "sqli", "sql_injection"}},
	{"xss", []string{"xss", "cross-site-scripting"}},
	{"path-traversal", []string{"path-traversal", "path-injection", "tainted-path", "zipslip"}},
	{"command-injection", []string{"command-injection", "command-line-injection", "shell-injection"}},
	{"authentication", []string{"authentication", "hardcoded-credentials", "weak-password"}},
	{"authorization", []string{"authorization", "access-control", "permission"}},
	{"cryptography", []string{"crypto", "cipher", "tls", "certificate", "random"}},
	{"information-disclosure", []string{"information-disclosure", "information-exposure", "sensitive-data", "cleartext"}},
}

// runCodeQL takes a full snapshot of code-scanning alerts across all states,
// then prunes persisted open alerts the snapshot no longer reports as open.
func (ix *Indexer) runCodeQL(ctx context.Context, client *gogithub.Client, repo *models.Repository, desc Descriptor) (runOutcome, error) {
	owner, name := repo.Owner(), repo.Name()

	var out runOutcome
	var observedOpen []int64

	for _, state := range alertStates {
		opts := &gogithub.AlertListOptions{
			State:       state,
			ListOptions: gogithub.ListOptions{PerPage: 100},
		}
		for page := 0; page < desc.PageCap; page++ {
			alerts, resp, err := client.CodeScanning.ListAlertsForRepo(ctx, owner, name, opts)
			if err != nil {
				return out, fmt.Errorf("listing %s code-scanning alerts for %s: %w", state, repo.FullName, err)
			}

			for _, alert := range alerts {
				record := buildAlert(repo, state, alert)
				if err := ix.store.UpsertCodeQLAlert(ctx, record); err != nil {
					out.itemErrors = append(out.itemErrors, err.Error())
					continue
				}
				if state == "open" {
					observedOpen = append(observedOpen, record.AlertNumber)
				}
				out.processed++
			}

			if resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
	}

	pruned, err := ix.store.PruneObsoleteOpenAlerts(ctx, repo.FullName, observedOpen)
	if err != nil {
		return out, fmt.Errorf("pruning obsolete alerts for %s: %w", repo.FullName, err)
	}
	if pruned > 0 {
		out.note = fmt.Sprintf("pruned %d obsolete open alerts", pruned)
	}

	// The snapshot covers everything; the cursor records when it was taken.
	out.cursor = ix.now()
	return out, nil
}

func buildAlert(repo *models.Repository, state string, alert *gogithub.Alert) *models.CodeQLAlert {
	rule := alert.GetRule()
	loc := alert.GetMostRecentInstance().GetLocation()

	var dismissedAt, fixedAt *time.Time
	if alert.DismissedAt != nil {
		t := alert.DismissedAt.Time
		dismissedAt = &t
	}
	if alert.FixedAt != nil {
		t := alert.FixedAt.Time
		fixedAt = &t
	}

	return &models.CodeQLAlert{
		RepositoryFullName: repo.FullName,
		AlertNumber:        int64(alert.GetNumber()),
		RuleID:             rule.GetID(),
		RuleName:           rule.GetName(),
		RuleDescription:    rule.GetDescription(),
		Severity:           normalizeSeverity(rule.GetSeverity()),
		State:              state,
		FilePath:           loc.GetPath(),
		StartLine:          loc.GetStartLine(),
		StartColumn:        loc.GetStartColumn(),
		Category:           categorizeAlert(rule.GetID(), rule.Tags),
		CWEID:              extractCWE(rule.Tags),
		CreatedAt:          alert.GetCreatedAt().Time,
		DismissedAt:        dismissedAt,
		FixedAt:            fixedAt,
	}
}

// normalizeSeverity maps provider severities onto the internal scale.
func normalizeSeverity(severity string) string {
	s := strings.ToLower(strings.TrimSpace(severity))
	if mapped, ok := severityMap[s]; ok {
		return mapped
	}
	if s == "" {
		return "medium"
	}
	return s
}

// extractCWE pulls the first CWE identifier from the rule tags. Tags come as
// either "CWE-89" or qualified paths like "external/cwe/cwe-089".
func extractCWE(tags []string) string {
	for _, tag := range tags {
		lower := strings.ToLower(tag)
		idx := strings.LastIndex(lower, "cwe-")
		if idx < 0 {
			continue
		}
		rest := strings.TrimLeft(lower[idx+len("cwe-"):], "0")
		end := 0
		for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
			end++
		}
		if end == 0 {
			continue
		}
		return "CWE-" + rest[:end]
	}
	return ""
}

// categorizeAlert buckets an alert by its rule id and tags.
func categorizeAlert(ruleID string, tags []string) string {
	haystack := strings.ToLower(ruleID + " " + strings.Join(tags, " "))
	for _, rule := range categoryRules {
		for _, marker := range rule.markers {
			if strings.Contains(haystack, marker) {
				return rule.category
			}
		}
	}
	return "other"
}
