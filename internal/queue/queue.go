// Package queue implements the mutation queue: an append-only log of
// pending create/update/delete operations, persisted through the Local
// Store and drained FIFO by the sync engine.
package queue

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sitequote/sitequote/internal/entity"
	"github.com/sitequote/sitequote/internal/storage"
)

// Action is the kind of write a queue item represents.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Item is one not-yet-confirmed write. ID equals the local identifier of
// the affected entity; Data is the full payload to send to the server.
// Items are never mutated in place; collapsing replaces whole items.
type Item struct {
	ID        string          `json:"id"`
	Action    Action          `json:"action"`
	Entity    entity.Kind     `json:"entity"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
	seq       int
}

// Queue persists pending mutations under the sync_queue key.
//
// Enqueue collapses mutations targeting the same local id so that at most
// one item per id is ever outstanding:
//
//	update over pending create  → create with the new payload
//	update over pending update  → update with the new payload
//	delete over pending create  → nothing (the record never reached the server)
//	delete over pending update  → delete
//	create over pending create  → create with the new payload
//
// This guarantees an update item always targets a server-known record, so
// its PATCH path is routable.
type Queue struct {
	store storage.Store
	now   func() time.Time

	mu  sync.Mutex
	seq int
}

// New returns a Queue backed by store.
func New(store storage.Store) *Queue {
	return &Queue{store: store, now: time.Now}
}

type persistedItem struct {
	ID        string          `json:"id"`
	Action    Action          `json:"action"`
	Entity    entity.Kind     `json:"entity"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (q *Queue) load() ([]Item, error) {
	var stored []persistedItem
	if _, err := q.store.GetJSON(storage.KeySyncQueue, &stored); err != nil {
		return nil, fmt.Errorf("loading sync queue: %w", err)
	}
	items := make([]Item, len(stored))
	for i, p := range stored {
		items[i] = Item{ID: p.ID, Action: p.Action, Entity: p.Entity, Data: p.Data, CreatedAt: p.CreatedAt, seq: i}
	}
	return items, nil
}

func (q *Queue) save(items []Item) error {
	stored := make([]persistedItem, len(items))
	for i, it := range items {
		stored[i] = persistedItem{ID: it.ID, Action: it.Action, Entity: it.Entity, Data: it.Data, CreatedAt: it.CreatedAt}
	}
	if err := q.store.SetJSON(storage.KeySyncQueue, stored); err != nil {
		return fmt.Errorf("saving sync queue: %w", err)
	}
	return nil
}

// Enqueue records a pending mutation, applying the collapse rules above.
func (q *Queue) Enqueue(item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load()
	if err != nil {
		return err
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = q.now()
	}

	idx := -1
	for i, existing := range items {
		if existing.ID == item.ID && existing.Entity == item.Entity {
			idx = i
			break
		}
	}

	if idx == -1 {
		items = append(items, item)
		return q.save(items)
	}

	pending := items[idx]
	switch {
	case item.Action == ActionDelete && pending.Action == ActionCreate:
		// The server never saw this record; cancel the create outright.
		items = append(items[:idx], items[idx+1:]...)
	case item.Action == ActionDelete:
		items[idx] = item
	case item.Action == ActionUpdate && pending.Action == ActionCreate:
		// Fold the new state into the still-pending create, keeping its
		// position and enqueue time so FIFO ordering is preserved.
		pending.Data = item.Data
		items[idx] = pending
	default:
		pending.Action = item.Action
		pending.Data = item.Data
		items[idx] = pending
	}

	return q.save(items)
}

// List returns a snapshot of pending items in FIFO order (by enqueue
// time, storage order as the tiebreak).
func (q *Queue) List() ([]Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].seq < items[j].seq
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// Remove deletes the pending item for the given local id. Removing an id
// that is not queued is a no-op, not an error.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load()
	if err != nil {
		return err
	}
	kept := items[:0]
	for _, it := range items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(items) {
		return nil
	}
	return q.save(kept)
}

// Clear empties the queue.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.save(nil)
}

// Len reports the number of pending mutations.
func (q *Queue) Len() (int, error) {
	items, err := q.List()
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
