package models

import "time"

// CommitType is the deterministic classification assigned to each commit
// from its message and changed files.
type CommitType string

const (
	CommitFix      CommitType = "fix"
	CommitFeature  CommitType = "feature"
	CommitDocs     CommitType = "docs"
	CommitRefactor CommitType = "refactor"
	CommitTest     CommitType = "test"
	CommitStyle    CommitType = "style"
	CommitPerf     CommitType = "perf"
	CommitCI       CommitType = "ci"
	CommitChore    CommitType = "chore"
	CommitOther    CommitType = "other"
)

// Commit is a normalized commit record, keyed by (repository full name, sha).
type Commit struct {
	ID                 int64      `json:"id"                   db:"id"`
	RepositoryFullName string     `json:"repository_full_name" db:"repository_full_name"`
	SHA                string     `json:"sha"                  db:"sha"`
	AuthorName         string     `json:"author_name"          db:"author_name"`
	AuthorEmail        string     `json:"author_email"         db:"author_email"`
	CommitterName      string     `json:"committer_name"       db:"committer_name"`
	CommitterEmail     string     `json:"committer_email"      db:"committer_email"`
	AuthoredDate       time.Time  `json:"authored_date"        db:"authored_date"`
	CommittedDate      time.Time  `json:"committed_date"       db:"committed_date"`
	Message            string     `json:"message"              db:"message"`
	Additions          int        `json:"additions"            db:"additions"`
	Deletions          int        `json:"deletions"            db:"deletions"`
	TotalChanges       int        `json:"total_changes"        db:"total_changes"`
	FilesChanged       string     `json:"files_changed"        db:"files_changed"` // JSON list of FileChange
	CommitType         CommitType `json:"commit_type"          db:"commit_type"`
	IndexedAt          time.Time  `json:"indexed_at"           db:"indexed_at"`
}

// FileChange is one changed file within a commit; serialized into
// Commit.FilesChanged.
type FileChange struct {
	Filename  string `json:"filename"`
	Status    string `json:"status,omitempty"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}
