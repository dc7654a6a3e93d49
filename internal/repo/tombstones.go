package repo

import (
	"fmt"
	"sync"

	"github.com/sitequote/sitequote/internal/entity"
	"github.com/sitequote/sitequote/internal/storage"
)

// Tombstones remembers server ids of locally deleted records so a pull
// cannot resurrect them before the delete mutation lands. A tombstone is
// cleared once a pull observes the server no longer returning the id.
type Tombstones struct {
	store storage.Store
	mu    sync.Mutex
}

// NewTombstones returns a tombstone set backed by store.
func NewTombstones(store storage.Store) *Tombstones {
	return &Tombstones{store: store}
}

func (t *Tombstones) load() (map[entity.Kind][]string, error) {
	m := make(map[entity.Kind][]string)
	if _, err := t.store.GetJSON(storage.KeyTombstones, &m); err != nil {
		return nil, fmt.Errorf("loading tombstones: %w", err)
	}
	return m, nil
}

func (t *Tombstones) save(m map[entity.Kind][]string) error {
	if err := t.store.SetJSON(storage.KeyTombstones, m); err != nil {
		return fmt.Errorf("saving tombstones: %w", err)
	}
	return nil
}

// Add records serverID as deleted for the given kind. Idempotent.
func (t *Tombstones) Add(kind entity.Kind, serverID string) error {
	if serverID == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	m, err := t.load()
	if err != nil {
		return err
	}
	for _, id := range m[kind] {
		if id == serverID {
			return nil
		}
	}
	m[kind] = append(m[kind], serverID)
	return t.save(m)
}

// Set returns the tombstoned server ids for kind as a lookup set.
func (t *Tombstones) Set(kind entity.Kind) (map[string]bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, err := t.load()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(m[kind]))
	for _, id := range m[kind] {
		set[id] = true
	}
	return set, nil
}

// Retain keeps only the tombstones for kind that the server still
// returned; ids the server no longer knows are confirmed gone and
// dropped.
func (t *Tombstones) Retain(kind entity.Kind, serverIDs map[string]bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, err := t.load()
	if err != nil {
		return err
	}
	kept := m[kind][:0]
	for _, id := range m[kind] {
		if serverIDs[id] {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		delete(m, kind)
	} else {
		m[kind] = kept
	}
	return t.save(m)
}
