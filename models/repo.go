package models

import (
	"regexp"
	"strings"
	"time"
)

// fullNamePattern is the only shape of repository identifier the engine
// accepts. Every query parameter used to index by repository is validated
// against it before any store call.
var fullNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// ValidFullName reports whether s is a well-formed "owner/repo" identifier.
func ValidFullName(s string) bool {
	return fullNamePattern.MatchString(s)
}

// Repository is a source repository tracked by the indexer.
type Repository struct {
	ID            int64     `json:"id"             db:"id"`
	FullName      string    `json:"full_name"      db:"full_name"` // owner/name
	CloneURL      string    `json:"clone_url"      db:"clone_url"`
	DefaultBranch string    `json:"default_branch" db:"default_branch"`
	IsIndexed     bool      `json:"is_indexed"     db:"is_indexed"`
	OwnerID       int64     `json:"owner_id"       db:"owner_id"`
	Private       bool      `json:"private"        db:"private"`
	CreatedAt     time.Time `json:"created_at"     db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"     db:"updated_at"`
}

// Owner returns the owner half of the full name.
func (r Repository) Owner() string {
	owner, _, _ := strings.Cut(r.FullName, "/")
	return owner
}

// Name returns the repository half of the full name.
func (r Repository) Name() string {
	_, name, _ := strings.Cut(r.FullName, "/")
	return name
}
