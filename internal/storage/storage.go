package storage

import (
	"context"
	"time"

	"focus-keeper/internal/userdoc"
)

// Store persists one document per key.
// Load returns a fresh default document for a key that was never saved;
// absence is not an error. Save must be atomic: a concurrent reader or a
// restart after a crash observes either the previous or the new document.
// Implementations must be safe for concurrent use across distinct keys.
// Serializing writers of the same key is the caller's job.
type Store interface {
	Load(ctx context.Context, key string) (*userdoc.Document, error)
	Save(ctx context.Context, key string, doc *userdoc.Document) error
	Close() error
}

type EventKind string

const (
	EventSessionStarted  EventKind = "session_started"
	EventSessionFinished EventKind = "session_finished"
)

// Event is one committed session transition.
// Events are appended in commit order and feed daily analytics.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	UserID      string    `json:"user_id"`
	Kind        EventKind `json:"kind"`
	SessionID   string    `json:"session_id"`
	DurationMin int       `json:"duration_min"`
}

// Recorder abstracts persistence of transition events.
// LoadEvents should return events in chronological order.
// Implementations must be safe for concurrent use.
type Recorder interface {
	Append(event Event) error
	LoadEvents() ([]Event, error)
}
