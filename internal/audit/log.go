// Package audit keeps a bounded, append-only session log of lifecycle,
// network, and sync events for diagnostics. It is not correctness
// critical; support tooling reads it, nothing else does.
package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/sitequote/sitequote/internal/storage"
)

// MaxEntries bounds the persisted log; the oldest entries are trimmed
// first once the cap is reached.
const MaxEntries = 500

// Entry is one logged event.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
}

// Log is the persisted session log.
type Log struct {
	store storage.Store
	now   func() time.Time

	mu sync.Mutex
}

// New returns a Log backed by store.
func New(store storage.Store) *Log {
	return &Log{store: store, now: time.Now}
}

// Append records an event, trimming the oldest entries beyond MaxEntries.
func (l *Log) Append(action, details string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var entries []Entry
	if _, err := l.store.GetJSON(storage.KeySessionLog, &entries); err != nil {
		return fmt.Errorf("loading session log: %w", err)
	}

	entries = append(entries, Entry{Timestamp: l.now(), Action: action, Details: details})
	if len(entries) > MaxEntries {
		entries = entries[len(entries)-MaxEntries:]
	}

	if err := l.store.SetJSON(storage.KeySessionLog, entries); err != nil {
		return fmt.Errorf("saving session log: %w", err)
	}
	return nil
}

// Appendf is Append with a formatted details string.
func (l *Log) Appendf(action, format string, args ...any) error {
	return l.Append(action, fmt.Sprintf(format, args...))
}

// Entries returns the logged events, oldest first.
func (l *Log) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var entries []Entry
	if _, err := l.store.GetJSON(storage.KeySessionLog, &entries); err != nil {
		return nil, fmt.Errorf("loading session log: %w", err)
	}
	return entries, nil
}
