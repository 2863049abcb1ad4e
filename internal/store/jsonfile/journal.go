// Package jsonfile provides JSON file-based persistence for the lifecycle
// journal.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hay-kot/wasend/internal/core/session"
)

// journalFile is the root JSON structure stored on disk.
type journalFile struct {
	Entries []session.JournalEntry `json:"entries"`
}

// Journal implements session.Journal using a JSON file for persistence.
type Journal struct {
	path       string
	maxEntries int
	mu         sync.RWMutex
}

var _ session.Journal = (*Journal)(nil)

// NewJournal creates a journal at the given path. maxEntries limits stored
// entries (0 means unlimited).
func NewJournal(path string, maxEntries int) *Journal {
	return &Journal{path: path, maxEntries: maxEntries}
}

// Path returns the file backing the journal.
func (j *Journal) Path() string {
	return j.path
}

// List returns all entries, newest first.
func (j *Journal) List(ctx context.Context) ([]session.JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	f, err := j.load()
	if err != nil {
		return nil, err
	}

	return f.Entries, nil
}

// Append adds an entry at the front, pruning the oldest to stay within
// maxEntries.
func (j *Journal) Append(ctx context.Context, entry session.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := j.load()
	if err != nil {
		return err
	}

	f.Entries = append([]session.JournalEntry{entry}, f.Entries...)

	if j.maxEntries > 0 && len(f.Entries) > j.maxEntries {
		f.Entries = f.Entries[:j.maxEntries]
	}

	return j.save(f)
}

// Last returns the newest entry of the given type. Returns
// session.ErrNotFound if none.
func (j *Journal) Last(ctx context.Context, typ session.EventType) (session.JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	f, err := j.load()
	if err != nil {
		return session.JournalEntry{}, err
	}

	for _, entry := range f.Entries {
		if entry.Type == typ {
			return entry, nil
		}
	}

	return session.JournalEntry{}, session.ErrNotFound
}

// Clear removes all entries.
func (j *Journal) Clear(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.save(journalFile{Entries: []session.JournalEntry{}})
}

// load reads the journal from disk.
// Returns an empty journalFile if the file doesn't exist.
func (j *Journal) load() (journalFile, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return journalFile{}, nil
		}
		return journalFile{}, fmt.Errorf("read journal file: %w", err)
	}

	if len(data) == 0 {
		return journalFile{}, nil
	}

	var f journalFile
	if err := json.Unmarshal(data, &f); err != nil {
		return journalFile{}, fmt.Errorf("journal file corrupted (run 'wasend events --clear' to reset): %w", err)
	}

	return f, nil
}

// save writes the journal to disk atomically.
func (j *Journal) save(f journalFile) error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write journal temp file: %w", err)
	}

	if err := os.Rename(tmp, j.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename journal file: %w", err)
	}

	return nil
}
