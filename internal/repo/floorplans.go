package repo

import (
	"fmt"
	"sync"

	"github.com/sitequote/sitequote/internal/entity"
	"github.com/sitequote/sitequote/internal/floorplan"
	"github.com/sitequote/sitequote/internal/queue"
	"github.com/sitequote/sitequote/internal/storage"
)

// FloorPlanRepo manages plan documents attached to quotes. Metadata lives
// in the kv half of the store; file bytes go through the raw-file
// primitive under a name derived from the local id.
type FloorPlanRepo struct {
	store      storage.Store
	queue      *queue.Queue
	tombstones *Tombstones
	clock      Clock
	newID      func() string

	mu sync.Mutex
}

// NewFloorPlans returns a FloorPlanRepo writing through store and queue.
func NewFloorPlans(store storage.Store, q *queue.Queue, ts *Tombstones) *FloorPlanRepo {
	return &FloorPlanRepo{store: store, queue: q, tombstones: ts, clock: realClock{}, newID: NewLocalID}
}

// NewFloorPlansWithClock is NewFloorPlans with an injected clock and id
// generator.
func NewFloorPlansWithClock(store storage.Store, q *queue.Queue, ts *Tombstones, clock Clock, newID func() string) *FloorPlanRepo {
	return &FloorPlanRepo{store: store, queue: q, tombstones: ts, clock: clock, newID: newID}
}

func planExt(contentType string) string {
	switch contentType {
	case "application/pdf":
		return ".pdf"
	case "image/png":
		return ".png"
	default:
		return ".jpg"
	}
}

// List returns all locally known floor plans in storage order.
func (r *FloorPlanRepo) List() ([]entity.FloorPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return loadList[entity.FloorPlan](r.store, storage.KeyFloorPlans)
}

// Get returns the floor plan with the given local id.
func (r *FloorPlanRepo) Get(localID string) (entity.FloorPlan, bool, error) {
	list, err := r.List()
	if err != nil {
		return entity.FloorPlan{}, false, err
	}
	for _, p := range list {
		if p.LocalID == localID {
			return p, true, nil
		}
	}
	return entity.FloorPlan{}, false, nil
}

// Create validates the plan document, stores its bytes and metadata, and
// enqueues a create mutation. Unparseable documents are rejected here
// rather than failing every future push.
func (r *FloorPlanRepo) Create(plan entity.FloorPlan, data []byte) (entity.FloorPlan, error) {
	info, err := floorplan.Inspect(data)
	if err != nil {
		return entity.FloorPlan{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	plan.LocalID = r.newID()
	plan.ServerID = ""
	plan.Synced = false
	plan.UpdatedAt = r.clock.Now()
	plan.ContentType = info.ContentType
	plan.Pages = info.Pages
	plan.SizeBytes = int64(len(data))
	plan.FileName = "plan_" + plan.LocalID + planExt(info.ContentType)

	if _, err := r.store.SaveFile(plan.FileName, data); err != nil {
		return entity.FloorPlan{}, err
	}

	list, err := loadList[entity.FloorPlan](r.store, storage.KeyFloorPlans)
	if err != nil {
		return entity.FloorPlan{}, err
	}
	prev := list
	list = append(append([]entity.FloorPlan(nil), list...), plan)
	if err := saveList(r.store, storage.KeyFloorPlans, list); err != nil {
		return entity.FloorPlan{}, err
	}

	payload, err := marshalPayload(plan)
	if err != nil {
		return entity.FloorPlan{}, err
	}
	if err := r.queue.Enqueue(queue.Item{ID: plan.LocalID, Action: queue.ActionCreate, Entity: entity.KindFloorPlan, Data: payload}); err != nil {
		if rbErr := saveList(r.store, storage.KeyFloorPlans, prev); rbErr != nil {
			return entity.FloorPlan{}, fmt.Errorf("enqueueing create: %w (rollback also failed: %v)", err, rbErr)
		}
		r.store.DeleteFile(plan.FileName)
		return entity.FloorPlan{}, fmt.Errorf("enqueueing create: %w", err)
	}
	return plan, nil
}

// File returns the stored plan bytes for the given local id.
func (r *FloorPlanRepo) File(localID string) ([]byte, error) {
	plan, ok, err := r.Get(localID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("floor plan %s not found", localID)
	}
	return r.store.ReadFile(plan.FileName)
}

// Delete removes the plan's metadata and file locally, tombstones its
// server id, and enqueues a delete mutation.
func (r *FloorPlanRepo) Delete(localID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := loadList[entity.FloorPlan](r.store, storage.KeyFloorPlans)
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
	plan := list[idx]
	list = append(list[:idx], list[idx+1:]...)
	if err := saveList(r.store, storage.KeyFloorPlans, list); err != nil {
		return err
	}
	if err := r.store.DeleteFile(plan.FileName); err != nil {
		return err
	}

	if plan.ServerID != "" {
		if err := r.tombstones.Add(entity.KindFloorPlan, plan.ServerID); err != nil {
			return err
		}
	}
	payload, err := marshalDelete(localID, plan.ServerID)
	if err != nil {
		return err
	}
	return r.queue.Enqueue(queue.Item{ID: localID, Action: queue.ActionDelete, Entity: entity.KindFloorPlan, Data: payload})
}

// MarkSynced flags the plan as acknowledged by the server.
func (r *FloorPlanRepo) MarkSynced(localID, serverID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := loadList[entity.FloorPlan](r.store, storage.KeyFloorPlans)
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].LocalID == localID {
			markSynced(&list[i].Meta, serverID)
			return saveList(r.store, storage.KeyFloorPlans, list)
		}
	}
	return nil
}
