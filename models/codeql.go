package models

import "time"

// CodeQLAlert is a normalized code-scanning alert, keyed by
// (repository full name, alert number).
type CodeQLAlert struct {
	ID                 int64      `json:"id"                   db:"id"`
	RepositoryFullName string     `json:"repository_full_name" db:"repository_full_name"`
	AlertNumber        int64      `json:"alert_number"         db:"alert_number"`
	RuleID             string     `json:"rule_id"              db:"rule_id"`
	RuleName           string     `json:"rule_name"            db:"rule_name"`
	RuleDescription    string     `json:"rule_description"     db:"rule_description"`
	Severity           string     `json:"severity"             db:"severity"` // critical | high | medium | low
	State              string     `json:"state"                db:"state"`    // open | dismissed | fixed
	FilePath           string     `json:"file_path"            db:"file_path"`
	StartLine          int        `json:"start_line"           db:"start_line"`
	StartColumn        int        `json:"start_column"         db:"start_column"`
	Category           string     `json:"category"             db:"category"`
	CWEID              string     `json:"cwe_id"               db:"cwe_id"`
	CreatedAt          time.Time  `json:"created_at"           db:"created_at"`
	DismissedAt        *time.Time `json:"dismissed_at"         db:"dismissed_at"`
	FixedAt            *time.Time `json:"fixed_at"             db:"fixed_at"`
	IndexedAt          time.Time  `json:"indexed_at"           db:"indexed_at"`
}
