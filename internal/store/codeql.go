package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/gitpulse/gitpulse-indexer/models"
)

const codeqlCols = `id, repository_full_name, alert_number, rule_id, rule_name, rule_description, severity, state, file_path, start_line, start_column, category, cwe_id, created_at, dismissed_at, fixed_at, indexed_at`

// UpsertCodeQLAlert inserts or updates an alert keyed by
// (full name, alert number).
func (s *Store) UpsertCodeQLAlert(ctx context.Context, a *models.CodeQLAlert) error {
	if !models.ValidFullName(a.RepositoryFullName) {
		return fmt.Errorf("invalid repository name %q", a.RepositoryFullName)
	}
	a.IndexedAt = s.now()
	return s.db.Upsert(ctx, "codeql_alerts", a, []string{"repository_full_name", "alert_number"})
}

// OpenAlerts returns the persisted alerts currently in state open.
func (s *Store) OpenAlerts(ctx context.Context, fullName string) ([]models.CodeQLAlert, error) {
	if !models.ValidFullName(fullName) {
		return nil, fmt.Errorf("invalid repository name %q", fullName)
	}
	var alerts []models.CodeQLAlert
	err := s.db.Select(ctx, &alerts,
		`SELECT `+codeqlCols+` FROM codeql_alerts WHERE repository_full_name = ? AND state = 'open'`,
		fullName)
	return alerts, err
}

// AlertsByState returns persisted alerts in the given state.
func (s *Store) AlertsByState(ctx context.Context, fullName, state string) ([]models.CodeQLAlert, error) {
	if !models.ValidFullName(fullName) {
		return nil, fmt.Errorf("invalid repository name %q", fullName)
	}
	var alerts []models.CodeQLAlert
	err := s.db.Select(ctx, &alerts,
		`SELECT `+codeqlCols+` FROM codeql_alerts WHERE repository_full_name = ? AND state = ?`,
		fullName, state)
	return alerts, err
}

// PruneObsoleteOpenAlerts deletes persisted open alerts whose number is not
// in the freshly observed open set. Dismissed and fixed records are never
// touched. Returns the number of rows deleted.
func (s *Store) PruneObsoleteOpenAlerts(ctx context.Context, fullName string, observedOpen []int64) (int64, error) {
	if !models.ValidFullName(fullName) {
		return 0, fmt.Errorf("invalid repository name %q", fullName)
	}
	if len(observedOpen) == 0 {
		return s.db.ExecRows(ctx,
			`DELETE FROM codeql_alerts WHERE repository_full_name = ? AND state = 'open'`,
			fullName)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(observedOpen)), ", ")
	args := make([]interface{}, 0, len(observedOpen)+1)
	args = append(args, fullName)
	for _, n := range observedOpen {
		args = append(args, n)
	}
	return s.db.ExecRows(ctx,
		`DELETE FROM codeql_alerts
		  WHERE repository_full_name = ? AND state = 'open' AND alert_number NOT IN (`+placeholders+`)`,
		args...)
}
