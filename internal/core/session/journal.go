package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a journal entry does not exist.
var ErrNotFound = errors.New("journal entry not found")

// JournalEntry records one lifecycle event for operators. Message contents
// are never journaled.
type JournalEntry struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Journal persists lifecycle events.
type Journal interface {
	// List returns all entries, newest first.
	List(ctx context.Context) ([]JournalEntry, error)
	// Append adds an entry, pruning the oldest beyond the configured maximum.
	Append(ctx context.Context, entry JournalEntry) error
	// Last returns the newest entry of the given type. Returns ErrNotFound if none.
	Last(ctx context.Context, typ EventType) (JournalEntry, error)
	// Clear removes all entries.
	Clear(ctx context.Context) error
}
