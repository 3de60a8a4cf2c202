package indexer

import (
	"time"

	"github.com/gitpulse/gitpulse-indexer/models"
)

// Status is the outcome class of one pipeline run.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusSkipped     Status = "skipped"
	StatusRateLimited Status = "rate_limited"
	StatusFailed      Status = "failed"
	StatusCloneSkip   Status = "clone_skipped"
)

// FollowUp is a continuation intent returned by a pipeline. The dispatcher
// acts on it; pipelines never talk to the scheduler directly.
type FollowUp struct {
	Name         string
	Entity       models.Entity
	RepositoryID int64
	NextRun      time.Time
	Retry        bool // rate-limit deferral, uses the _retry canonical name
}

// Result is the outcome of one pipeline run over one window.
type Result struct {
	Status             Status     `json:"status"`
	RepositoryID       int64      `json:"repository_id"`
	RepositoryFullName string     `json:"repository_full_name"`
	Processed          int        `json:"processed"`
	Since              time.Time  `json:"since"`
	Until              time.Time  `json:"until"`
	HasMore            bool       `json:"has_more"`
	Errors             []string   `json:"errors,omitempty"`
	ScheduledFor       *time.Time `json:"scheduled_for,omitempty"`
	Reason             string     `json:"reason,omitempty"`

	FollowUp *FollowUp `json:"-"`
}
