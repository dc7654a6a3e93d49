package repo

import (
	"fmt"
	"sync"

	"github.com/sitequote/sitequote/internal/entity"
	"github.com/sitequote/sitequote/internal/queue"
	"github.com/sitequote/sitequote/internal/storage"
)

// CustomerRepo is the customer repository.
type CustomerRepo struct {
	store      storage.Store
	queue      *queue.Queue
	tombstones *Tombstones
	clock      Clock
	newID      func() string

	mu sync.Mutex
}

// NewCustomers returns a CustomerRepo writing through store and queue.
func NewCustomers(store storage.Store, q *queue.Queue, ts *Tombstones) *CustomerRepo {
	return &CustomerRepo{store: store, queue: q, tombstones: ts, clock: realClock{}, newID: NewLocalID}
}

// NewCustomersWithClock is NewCustomers with an injected clock and id
// generator (for tests).
func NewCustomersWithClock(store storage.Store, q *queue.Queue, ts *Tombstones, clock Clock, newID func() string) *CustomerRepo {
	return &CustomerRepo{store: store, queue: q, tombstones: ts, clock: clock, newID: newID}
}

// List returns all locally known customers, unsynced ones included, in
// storage order. Callers needing display order must sort explicitly.
func (r *CustomerRepo) List() ([]entity.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return loadList[entity.Customer](r.store, storage.KeyCustomers)
}

// Get returns the customer with the given local id.
func (r *CustomerRepo) Get(localID string) (entity.Customer, bool, error) {
	list, err := r.List()
	if err != nil {
		return entity.Customer{}, false, err
	}
	for _, c := range list {
		if c.LocalID == localID {
			return c, true, nil
		}
	}
	return entity.Customer{}, false, nil
}

// Create assigns a fresh local id, stamps the record, persists it, and
// enqueues a create mutation with the full record as payload. The record
// is usable immediately; no network round trip is involved.
func (r *CustomerRepo) Create(c entity.Customer) (entity.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.LocalID = r.newID()
	c.ServerID = ""
	c.Synced = false
	c.UpdatedAt = r.clock.Now()

	list, err := loadList[entity.Customer](r.store, storage.KeyCustomers)
	if err != nil {
		return entity.Customer{}, err
	}
	prev := list
	list = append(append([]entity.Customer(nil), list...), c)
	if err := saveList(r.store, storage.KeyCustomers, list); err != nil {
		return entity.Customer{}, err
	}

	payload, err := marshalPayload(c)
	if err != nil {
		return entity.Customer{}, err
	}
	if err := r.queue.Enqueue(queue.Item{ID: c.LocalID, Action: queue.ActionCreate, Entity: entity.KindCustomer, Data: payload}); err != nil {
		// Keep storage and queue consistent: undo the entity write.
		if rbErr := saveList(r.store, storage.KeyCustomers, prev); rbErr != nil {
			return entity.Customer{}, fmt.Errorf("enqueueing create: %w (rollback also failed: %v)", err, rbErr)
		}
		return entity.Customer{}, fmt.Errorf("enqueueing create: %w", err)
	}
	return c, nil
}

// Update persists new field values for an existing customer and enqueues
// an update mutation. Against a not-yet-synced record the queue collapses
// the update into the pending create.
func (r *CustomerRepo) Update(c entity.Customer) (entity.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := loadList[entity.Customer](r.store, storage.KeyCustomers)
	if err != nil {
		return entity.Customer{}, err
	}
	idx := -1
	for i := range list {
		if list[i].LocalID == c.LocalID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return entity.Customer{}, fmt.Errorf("customer %s not found", c.LocalID)
	}

	prev := append([]entity.Customer(nil), list...)
	c.ServerID = list[idx].ServerID
	c.Synced = false
	c.UpdatedAt = r.clock.Now()
	list[idx] = c

	if err := saveList(r.store, storage.KeyCustomers, list); err != nil {
		return entity.Customer{}, err
	}
	payload, err := marshalPayload(c)
	if err != nil {
		return entity.Customer{}, err
	}
	if err := r.queue.Enqueue(queue.Item{ID: c.LocalID, Action: queue.ActionUpdate, Entity: entity.KindCustomer, Data: payload}); err != nil {
		if rbErr := saveList(r.store, storage.KeyCustomers, prev); rbErr != nil {
			return entity.Customer{}, fmt.Errorf("enqueueing update: %w (rollback also failed: %v)", err, rbErr)
		}
		return entity.Customer{}, fmt.Errorf("enqueueing update: %w", err)
	}
	return c, nil
}

// Delete removes the customer locally, tombstones its server id so a pull
// cannot resurrect it, and enqueues a delete mutation. Deleting an
// unsynced record collapses away its pending create instead.
func (r *CustomerRepo) Delete(localID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := loadList[entity.Customer](r.store, storage.KeyCustomers)
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
	if err := saveList(r.store, storage.KeyCustomers, list); err != nil {
		return err
	}

	if serverID != "" {
		if err := r.tombstones.Add(entity.KindCustomer, serverID); err != nil {
			return err
		}
	}
	payload, err := marshalDelete(localID, serverID)
	if err != nil {
		return err
	}
	return r.queue.Enqueue(queue.Item{ID: localID, Action: queue.ActionDelete, Entity: entity.KindCustomer, Data: payload})
}

// MarkSynced flags the record as acknowledged by the server. A missing
// record is a no-op; repeating the call leaves the record unchanged.
func (r *CustomerRepo) MarkSynced(localID, serverID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := loadList[entity.Customer](r.store, storage.KeyCustomers)
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].LocalID == localID {
			markSynced(&list[i].Meta, serverID)
			return saveList(r.store, storage.KeyCustomers, list)
		}
	}
	return nil
}

// SetAll replaces the full local cache, used by the sync engine's pull
// merge.
func (r *CustomerRepo) SetAll(list []entity.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return saveList(r.store, storage.KeyCustomers, list)
}
