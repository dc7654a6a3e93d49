package repo

import (
	"fmt"
	"sync"

	"github.com/sitequote/sitequote/internal/entity"
	"github.com/sitequote/sitequote/internal/queue"
	"github.com/sitequote/sitequote/internal/storage"
)

// QuoteRepo is the quote repository.
type QuoteRepo struct {
	store      storage.Store
	queue      *queue.Queue
	tombstones *Tombstones
	clock      Clock
	newID      func() string

	mu sync.Mutex
}

// NewQuotes returns a QuoteRepo writing through store and queue.
func NewQuotes(store storage.Store, q *queue.Queue, ts *Tombstones) *QuoteRepo {
	return &QuoteRepo{store: store, queue: q, tombstones: ts, clock: realClock{}, newID: NewLocalID}
}

// NewQuotesWithClock is NewQuotes with an injected clock and id generator.
func NewQuotesWithClock(store storage.Store, q *queue.Queue, ts *Tombstones, clock Clock, newID func() string) *QuoteRepo {
	return &QuoteRepo{store: store, queue: q, tombstones: ts, clock: clock, newID: newID}
}

// List returns all locally known quotes, unsynced ones included, in
// storage order.
func (r *QuoteRepo) List() ([]entity.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return loadList[entity.Quote](r.store, storage.KeyQuotes)
}

// Get returns the quote with the given local id.
func (r *QuoteRepo) Get(localID string) (entity.Quote, bool, error) {
	list, err := r.List()
	if err != nil {
		return entity.Quote{}, false, err
	}
	for _, q := range list {
		if q.LocalID == localID {
			return q, true, nil
		}
	}
	return entity.Quote{}, false, nil
}

// Create assigns a fresh local id, computes the total when unset, stamps
// the record, persists it, and enqueues a create mutation.
func (r *QuoteRepo) Create(q entity.Quote) (entity.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q.LocalID = r.newID()
	q.ServerID = ""
	q.Synced = false
	q.UpdatedAt = r.clock.Now()
	if q.Status == "" {
		q.Status = entity.QuoteStatusDraft
	}
	if q.Total == 0 {
		q.Total = (q.MaterialsCost + q.LaborCost) * (1 + q.Markup)
	}

	list, err := loadList[entity.Quote](r.store, storage.KeyQuotes)
	if err != nil {
		return entity.Quote{}, err
	}
	prev := list
	list = append(append([]entity.Quote(nil), list...), q)
	if err := saveList(r.store, storage.KeyQuotes, list); err != nil {
		return entity.Quote{}, err
	}

	payload, err := marshalPayload(q)
	if err != nil {
		return entity.Quote{}, err
	}
	if err := r.queue.Enqueue(queue.Item{ID: q.LocalID, Action: queue.ActionCreate, Entity: entity.KindQuote, Data: payload}); err != nil {
		if rbErr := saveList(r.store, storage.KeyQuotes, prev); rbErr != nil {
			return entity.Quote{}, fmt.Errorf("enqueueing create: %w (rollback also failed: %v)", err, rbErr)
		}
		return entity.Quote{}, fmt.Errorf("enqueueing create: %w", err)
	}
	return q, nil
}

// Update persists new field values for an existing quote and enqueues an
// update mutation.
func (r *QuoteRepo) Update(q entity.Quote) (entity.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := loadList[entity.Quote](r.store, storage.KeyQuotes)
	if err != nil {
		return entity.Quote{}, err
	}
	idx := -1
	for i := range list {
		if list[i].LocalID == q.LocalID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return entity.Quote{}, fmt.Errorf("quote %s not found", q.LocalID)
	}

	prev := append([]entity.Quote(nil), list...)
	q.ServerID = list[idx].ServerID
	q.Synced = false
	q.UpdatedAt = r.clock.Now()
	list[idx] = q

	if err := saveList(r.store, storage.KeyQuotes, list); err != nil {
		return entity.Quote{}, err
	}
	payload, err := marshalPayload(q)
	if err != nil {
		return entity.Quote{}, err
	}
	if err := r.queue.Enqueue(queue.Item{ID: q.LocalID, Action: queue.ActionUpdate, Entity: entity.KindQuote, Data: payload}); err != nil {
		if rbErr := saveList(r.store, storage.KeyQuotes, prev); rbErr != nil {
			return entity.Quote{}, fmt.Errorf("enqueueing update: %w (rollback also failed: %v)", err, rbErr)
		}
		return entity.Quote{}, fmt.Errorf("enqueueing update: %w", err)
	}
	return q, nil
}

// Delete removes the quote locally, tombstones its server id, and
// enqueues a delete mutation (collapsed away when the quote never reached
// the server).
func (r *QuoteRepo) Delete(localID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := loadList[entity.Quote](r.store, storage.KeyQuotes)
	if err != nil {
		return err
	}
	idx := -1
	for i := range list {
		if list[i].LocalID == localID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}
	serverID := list[idx].ServerID
	list = append(list[:idx], list[idx+1:]...)
	if err := saveList(r.store, storage.KeyQuotes, list); err != nil {
		return err
	}

	if serverID != "" {
		if err := r.tombstones.Add(entity.KindQuote, serverID); err != nil {
			return err
		}
	}
	payload, err := marshalDelete(localID, serverID)
	if err != nil {
		return err
	}
	return r.queue.Enqueue(queue.Item{ID: localID, Action: queue.ActionDelete, Entity: entity.KindQuote, Data: payload})
}

// MarkSynced flags the record as acknowledged by the server. A missing
// record is a no-op; repeating the call leaves the record unchanged.
func (r *QuoteRepo) MarkSynced(localID, serverID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := loadList[entity.Quote](r.store, storage.KeyQuotes)
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].LocalID == localID {
			markSynced(&list[i].Meta, serverID)
			return saveList(r.store, storage.KeyQuotes, list)
		}
	}
	return nil
}

// SetAll replaces the full local cache, used by the sync engine's pull
// merge.
func (r *QuoteRepo) SetAll(list []entity.Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return saveList(r.store, storage.KeyQuotes, list)
}
