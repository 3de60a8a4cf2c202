// Package store provides typed access to the persisted collections on top of
// the generic database layer. All repository-name inputs are validated before
// they reach a query.
package store

import (
	"time"

	"github.com/gitpulse/gitpulse-indexer/internal/database"
)

// Store wraps the DB with entity-aware operations.
type Store struct {
	db  database.DB
	now func() time.Time
}

// New creates a Store. The clock is injectable for tests.
func New(db database.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock returns a copy of the store using the given clock.
func (s *Store) WithClock(now func() time.Time) *Store {
	return &Store{db: s.db, now: now}
}

// DB exposes the underlying database for callers that need raw access.
func (s *Store) DB() database.DB { return s.db }
