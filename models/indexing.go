package models

import "time"

// Entity identifies one of the indexed entity families.
type Entity string

const (
	EntityCommits      Entity = "commits"
	EntityPullRequests Entity = "pull_requests"
	EntityReleases     Entity = "releases"
	EntityDeployments  Entity = "deployments"
	EntityCodeQL       Entity = "codeql_vulnerabilities"
)

// AllEntities lists every entity family in fan-out order.
var AllEntities = []Entity{
	EntityCommits,
	EntityPullRequests,
	EntityReleases,
	EntityDeployments,
	EntityCodeQL,
}

// IndexStatus is the lifecycle state of an IndexingState record.
type IndexStatus string

const (
	StatusPending   IndexStatus = "pending"
	StatusRunning   IndexStatus = "running"
	StatusCompleted IndexStatus = "completed"
	StatusError     IndexStatus = "error"
)

// DefaultMaxRetries bounds how many consecutive failures a pair may
// accumulate before the sweep stops rescheduling it.
const DefaultMaxRetries = 5

// IndexingState is the durable per-(repository, entity) record. Exactly one
// row exists per pair; the running status together with updated_at acts as
// the claim token for compare-and-set.
//
// LastIndexedAt is the cursor. Its direction depends on the entity: for
// backfill entities (commits, deployments, codeql) it is the oldest point
// reached walking backward; for forward entities (pull requests, releases)
// it is the newest point reached.
type IndexingState struct {
	ID                 int64       `json:"id"                   db:"id"`
	RepositoryID       int64       `json:"repository_id"        db:"repository_id"`
	RepositoryFullName string      `json:"repository_full_name" db:"repository_full_name"`
	Entity             Entity      `json:"entity"               db:"entity"`
	Status             IndexStatus `json:"status"               db:"status"`
	LastIndexedAt      *time.Time  `json:"last_indexed_at"      db:"last_indexed_at"`
	LastRunAt          *time.Time  `json:"last_run_at"          db:"last_run_at"`
	RetryCount         int         `json:"retry_count"          db:"retry_count"`
	MaxRetries         int         `json:"max_retries"          db:"max_retries"`
	BatchSizeDays      int         `json:"batch_size_days"      db:"batch_size_days"`
	ErrorMessage       string      `json:"error_message"        db:"error_message"`
	TotalIndexed       int64       `json:"total_indexed"        db:"total_indexed"`
	CreatedAt          time.Time   `json:"created_at"           db:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"           db:"updated_at"`
}

// ScheduledTask is a deferred unit of work, deduplicated by canonical name.
type ScheduledTask struct {
	ID           int64     `json:"id"            db:"id"`
	Name         string    `json:"name"          db:"name"`
	Entity       Entity    `json:"entity"        db:"entity"`
	RepositoryID int64     `json:"repository_id" db:"repository_id"`
	NextRun      time.Time `json:"next_run"      db:"next_run"`
	ScheduleType string    `json:"schedule_type" db:"schedule_type"` // once | recurring
	CreatedAt    time.Time `json:"created_at"    db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"    db:"updated_at"`
}

// RepositoryKLOCHistory is an append-only size snapshot for a repository.
type RepositoryKLOCHistory struct {
	ID                int64     `json:"id"                 db:"id"`
	RepositoryID      int64     `json:"repository_id"      db:"repository_id"`
	KLOC              float64   `json:"kloc"               db:"kloc"`
	TotalLines        int64     `json:"total_lines"        db:"total_lines"`
	LanguageBreakdown string    `json:"language_breakdown" db:"language_breakdown"` // JSON map language → lines
	CalculatedAt      time.Time `json:"calculated_at"      db:"calculated_at"`
}
