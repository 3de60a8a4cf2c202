package models

import "time"

// Deployment is a normalized deployment, keyed by the provider deployment id.
type Deployment struct {
	ID                 int64     `json:"id"                   db:"id"`
	DeploymentID       int64     `json:"deployment_id"        db:"deployment_id"`
	RepositoryFullName string    `json:"repository_full_name" db:"repository_full_name"`
	Environment        string    `json:"environment"          db:"environment"`
	Creator            string    `json:"creator"              db:"creator"`
	CreatedAt          time.Time `json:"created_at"           db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"           db:"updated_at"`
	Statuses           string    `json:"statuses"             db:"statuses"` // JSON list of DeploymentStatus
	IndexedAt          time.Time `json:"indexed_at"           db:"indexed_at"`
}

// DeploymentStatus is one state transition reported for a deployment.
type DeploymentStatus struct {
	State       string    `json:"state"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// nonTerminalStates are the deployment status states that may still
// transition; a deployment whose last status is one of these gets its status
// list re-fetched on the next pass.
var nonTerminalStates = map[string]bool{
	"pending":     true,
	"in_progress": true,
	"queued":      true,
	"waiting":     true,
}

// Terminal reports whether the status state is final.
func (s DeploymentStatus) Terminal() bool {
	return !nonTerminalStates[s.State]
}
