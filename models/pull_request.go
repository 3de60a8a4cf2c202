package models

import "time"

// PullRequest is a normalized pull request, keyed by
// (repository full name, number).
type PullRequest struct {
	ID                 int64      `json:"id"                   db:"id"`
	RepositoryFullName string     `json:"repository_full_name" db:"repository_full_name"`
	Number             int        `json:"number"               db:"number"`
	Title              string     `json:"title"                db:"title"`
	Author             string     `json:"author"               db:"author"`
	State              string     `json:"state"                db:"state"` // open | closed | merged
	CreatedAt          time.Time  `json:"created_at"           db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"           db:"updated_at"`
	ClosedAt           *time.Time `json:"closed_at"            db:"closed_at"`
	MergedAt           *time.Time `json:"merged_at"            db:"merged_at"`
	MergedBy           string     `json:"merged_by"            db:"merged_by"`
	Reviewers          string     `json:"reviewers"            db:"reviewers"` // JSON list of logins
	Assignees          string     `json:"assignees"            db:"assignees"` // JSON list of logins
	Labels             string     `json:"labels"               db:"labels"`    // JSON list of label names
	Commits            int        `json:"commits"              db:"commits"`
	Additions          int        `json:"additions"            db:"additions"`
	Deletions          int        `json:"deletions"            db:"deletions"`
	ChangedFiles       int        `json:"changed_files"        db:"changed_files"`
	ReviewComments     int        `json:"review_comments"      db:"review_comments"`
	Comments           int        `json:"comments"             db:"comments"`
	IndexedAt          time.Time  `json:"indexed_at"           db:"indexed_at"`
}
