package indexer

import "time"

// Window is the half-open date range processed by one pipeline run.
type Window struct {
	Since time.Time
	Until time.Time
}

// deriveWindow computes the next window from the cursor. Backfill entities
// read the batch behind the cursor (or behind now on the first run); forward
// entities read from the cursor (or the beginning of history) up to now.
func deriveWindow(desc Descriptor, cursor *time.Time, now time.Time) Window {
	batch := time.Duration(desc.BatchDays) * 24 * time.Hour
	switch desc.Direction {
	case DirectionForward:
		since := time.Time{}
		if cursor != nil {
			since = *cursor
		}
		return Window{Since: since, Until: now}
	default:
		until := now
		if cursor != nil {
			until = *cursor
		}
		return Window{Since: until.Add(-batch), Until: until}
	}
}

// contains reports whether t falls inside the window [since, until).
func (w Window) contains(t time.Time) bool {
	return !t.Before(w.Since) && t.Before(w.Until)
}
