// Package repo provides the typed entity repositories: CRUD wrappers over
// the Local Store that assign client-generated identifiers, stamp
// modification times, track the per-record synced flag, and enqueue the
// matching mutation for every local write.
//
// Write ordering: the entity list is persisted first, then the mutation
// is enqueued. If the enqueue write fails the entity write is rolled back
// so storage and queue never disagree about a pending record.
package repo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sitequote/sitequote/internal/entity"
	"github.com/sitequote/sitequote/internal/storage"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// NewLocalID returns a fresh collision-resistant local identifier.
// UUIDv4 carries 122 bits of randomness against the 128-bit budget the
// design calls for.
func NewLocalID() string {
	return uuid.NewString()
}

// marshalPayload encodes the full record as the mutation payload. The
// embedded localId doubles as the server-side idempotency key.
func marshalPayload(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding mutation payload: %w", err)
	}
	return data, nil
}

// deletePayload is the minimal body queued for delete mutations.
type deletePayload struct {
	LocalID  string `json:"localId"`
	ServerID string `json:"serverId,omitempty"`
}

func marshalDelete(localID, serverID string) (json.RawMessage, error) {
	return marshalPayload(deletePayload{LocalID: localID, ServerID: serverID})
}

// loadList reads a JSON entity list from the store, returning an empty
// slice for a never-written key.
func loadList[T any](store storage.Store, key string) ([]T, error) {
	var list []T
	if _, err := store.GetJSON(key, &list); err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	return list, nil
}

func saveList[T any](store storage.Store, key string, list []T) error {
	if list == nil {
		list = []T{}
	}
	if err := store.SetJSON(key, list); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// markSynced updates the record's meta in place. Missing records are a
// no-op (the record may have been deleted locally since the push began),
// and repeating the same (localID, serverID) pair leaves the record
// unchanged. A server id, once set, is never reassigned.
func markSynced(m *entity.Meta, serverID string) {
	if m.ServerID == "" {
		m.ServerID = serverID
	}
	m.Synced = true
}
