// Package storage provides the Local Store: a small key-value and raw-file
// persistence abstraction the rest of the offline layer writes through.
//
// Two backends implement the Store interface: a SQLite database (the
// native choice) and a plain JSON-file store (the portable fallback). The
// backend is picked once by Open via a capability probe; callers never
// branch on which one is active.
package storage

import "errors"

// ErrNotFound is returned when a requested file does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence contract for the offline layer.
//
// GetJSON reports false when the key has never been written. All methods
// surface I/O errors (quota, permissions, corruption) to the caller;
// nothing is swallowed at this layer.
type Store interface {
	// GetJSON unmarshals the value stored under key into v.
	GetJSON(key string, v any) (bool, error)
	// SetJSON marshals v and stores it under key, replacing any prior value.
	SetJSON(key string, v any) error

	// SaveFile stores raw bytes under name and returns a backend URI.
	SaveFile(name string, data []byte) (string, error)
	// ReadFile returns the bytes stored under name, or ErrNotFound.
	ReadFile(name string) ([]byte, error)
	// DeleteFile removes the file stored under name; absent files are a no-op.
	DeleteFile(name string) error

	Close() error
}

// Well-known keys. Logical names, shared between backends.
const (
	KeyCustomers  = "offline_customers"
	KeyQuotes     = "offline_quotes"
	KeyFloorPlans = "offline_floorplans"
	KeySyncQueue  = "sync_queue"
	KeySessionLog = "session_log"
	KeyTombstones = "sync_tombstones"
)
