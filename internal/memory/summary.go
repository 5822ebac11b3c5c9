// Package memory defines the read-only contract to the project-memory
// store. The store itself lives outside this process; diagnostics only
// consumes its summary.
package memory

import (
	"context"
	"time"
)

// Summary is the diagnostic view of a project-memory store.
type Summary struct {
	Connected     bool      `json:"connected"`
	Backend       string    `json:"backend,omitempty"`
	DBPath        string    `json:"db_path,omitempty"`
	SchemaVersion string    `json:"schema_version,omitempty"`
	EventsCount   int64     `json:"events_count"`
	FilesIndexed  int64     `json:"files_indexed"`
	LastEventTS   time.Time `json:"last_event_ts,omitzero"`
	Detail        string    `json:"detail,omitempty"`
}

// Store exposes the summary of a project-memory backend.
type Store interface {
	Summary(ctx context.Context) (Summary, error)
}

// Disconnected returns a summary for an absent or unreachable store. The
// detail says why; callers treat this as a degraded section, not an error.
func Disconnected(detail string) Summary {
	return Summary{Connected: false, Detail: detail}
}

type disconnectedStore struct {
	detail string
}

func (s disconnectedStore) Summary(context.Context) (Summary, error) {
	return Disconnected(s.detail), nil
}

// NopStore returns a Store that always reports disconnected. Non-local
// runtimes use it: they have no project root to host a store.
func NopStore(detail string) Store {
	return disconnectedStore{detail: detail}
}
