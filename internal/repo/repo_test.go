package repo

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sitequote/sitequote/internal/entity"
	"github.com/sitequote/sitequote/internal/queue"
	"github.com/sitequote/sitequote/internal/storage"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// seqIDs returns a deterministic id generator: id-1, id-2, ...
func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

// failingStore wraps a Store and fails SetJSON for one key, used to
// exercise the enqueue-failure rollback path.
type failingStore struct {
	storage.Store
	failKey string
}

func (f *failingStore) SetJSON(key string, v any) error {
	if key == f.failKey {
		return fmt.Errorf("disk full")
	}
	return f.Store.SetJSON(key, v)
}

type fixture struct {
	store      storage.Store
	queue      *queue.Queue
	tombstones *Tombstones
	customers  *CustomerRepo
	quotes     *QuoteRepo
	floorplans *FloorPlanRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.OpenFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return newFixtureOver(store)
}

func newFixtureOver(store storage.Store) *fixture {
	q := queue.New(store)
	ts := NewTombstones(store)
	clock := fixedClock{time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	ids := seqIDs()
	return &fixture{
		store:      store,
		queue:      q,
		tombstones: ts,
		customers:  NewCustomersWithClock(store, q, ts, clock, ids),
		quotes:     NewQuotesWithClock(store, q, ts, clock, ids),
		floorplans: NewFloorPlansWithClock(store, q, ts, clock, ids),
	}
}

func pendingItems(t *testing.T, q *queue.Queue) []queue.Item {
	t.Helper()
	items, err := q.List()
	if err != nil {
		t.Fatal(err)
	}
	return items
}

func TestCustomerCreate(t *testing.T) {
	f := newFixture(t)

	c, err := f.customers.Create(entity.Customer{Name: "Acme Co", Email: "office@acme.test"})
	if err != nil {
		t.Fatal(err)
	}
	if c.LocalID == "" {
		t.Error("LocalID not assigned")
	}
	if c.Synced || c.ServerID != "" {
		t.Errorf("new record must be unsynced, got synced=%v serverId=%q", c.Synced, c.ServerID)
	}
	if c.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}

	list, err := f.customers.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "Acme Co" {
		t.Errorf("list = %+v", list)
	}

	items := pendingItems(t, f.queue)
	if len(items) != 1 {
		t.Fatalf("queue len = %d, want 1", len(items))
	}
	if items[0].Action != queue.ActionCreate || items[0].ID != c.LocalID {
		t.Errorf("queued %s %s", items[0].Action, items[0].ID)
	}
	if !strings.Contains(string(items[0].Data), `"localId":"`+c.LocalID+`"`) {
		t.Errorf("payload missing localId: %s", items[0].Data)
	}
}

func TestCustomerCreateRollsBackOnEnqueueFailure(t *testing.T) {
	inner, err := storage.OpenFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer inner.Close()

	f := newFixtureOver(&failingStore{Store: inner, failKey: storage.KeySyncQueue})

	if _, err := f.customers.Create(entity.Customer{Name: "Acme Co"}); err == nil {
		t.Fatal("expected error when enqueue fails")
	}

	// The entity write must have been rolled back.
	list, err := f.customers.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("customer survived a failed create: %+v", list)
	}
}

func TestCustomerUpdatePreservesServerID(t *testing.T) {
	f := newFixture(t)

	c, err := f.customers.Create(entity.Customer{Name: "Acme Co"})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.customers.MarkSynced(c.LocalID, "srv-1"); err != nil {
		t.Fatal(err)
	}

	c.Name = "Acme Corp"
	c.ServerID = "tampered"
	updated, err := f.customers.Update(c)
	if err != nil {
		t.Fatal(err)
	}
	if updated.ServerID != "srv-1" {
		t.Errorf("ServerID = %q, want srv-1 (callers cannot change it)", updated.ServerID)
	}
	if updated.Synced {
		t.Error("record must be unsynced after a local edit")
	}
}

func TestCustomerUpdateUnknownID(t *testing.T) {
	f := newFixture(t)
	if _, err := f.customers.Update(entity.Customer{Meta: entity.Meta{LocalID: "ghost"}}); err == nil {
		t.Error("expected error updating unknown record")
	}
}

func TestCustomerDeleteSyncedRecordTombstones(t *testing.T) {
	f := newFixture(t)

	c, err := f.customers.Create(entity.Customer{Name: "Acme Co"})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.customers.MarkSynced(c.LocalID, "srv-1"); err != nil {
		t.Fatal(err)
	}
	if err := f.queue.Remove(c.LocalID); err != nil {
		t.Fatal(err)
	}

	if err := f.customers.Delete(c.LocalID); err != nil {
		t.Fatal(err)
	}

	list, _ := f.customers.List()
	if len(list) != 0 {
		t.Errorf("record still listed after delete")
	}
	set, err := f.tombstones.Set(entity.KindCustomer)
	if err != nil {
		t.Fatal(err)
	}
	if !set["srv-1"] {
		t.Error("server id not tombstoned")
	}
	items := pendingItems(t, f.queue)
	if len(items) != 1 || items[0].Action != queue.ActionDelete {
		t.Errorf("queue = %+v", items)
	}
}

func TestCustomerDeleteUnsyncedCancelsCreate(t *testing.T) {
	f := newFixture(t)

	c, err := f.customers.Create(entity.Customer{Name: "Acme Co"})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.customers.Delete(c.LocalID); err != nil {
		t.Fatal(err)
	}

	// Delete over the pending create collapses to nothing.
	if items := pendingItems(t, f.queue); len(items) != 0 {
		t.Errorf("queue = %+v, want empty", items)
	}
	set, _ := f.tombstones.Set(entity.KindCustomer)
	if len(set) != 0 {
		t.Errorf("tombstones = %v, want none for an unsynced record", set)
	}
}

func TestMarkSyncedIsIdempotent(t *testing.T) {
	f := newFixture(t)

	c, err := f.customers.Create(entity.Customer{Name: "Acme Co"})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.customers.MarkSynced(c.LocalID, "srv-1"); err != nil {
		t.Fatal(err)
	}
	// A retried acknowledgement must not reassign the server id.
	if err := f.customers.MarkSynced(c.LocalID, "srv-2"); err != nil {
		t.Fatal(err)
	}

	got, ok, err := f.customers.Get(c.LocalID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.ServerID != "srv-1" {
		t.Errorf("ServerID = %q, want srv-1", got.ServerID)
	}
	if !got.Synced {
		t.Error("Synced = false")
	}
}

func TestMarkSyncedMissingRecordIsNoOp(t *testing.T) {
	f := newFixture(t)
	if err := f.customers.MarkSynced("deleted-meanwhile", "srv-9"); err != nil {
		t.Errorf("MarkSynced on missing record = %v, want nil", err)
	}
}

func TestQuoteCreateComputesTotal(t *testing.T) {
	f := newFixture(t)

	q, err := f.quotes.Create(entity.Quote{
		CustomerID:    "cust-local",
		Trade:         "plumbing",
		MaterialsCost: 100,
		LaborCost:     200,
		Markup:        0.2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if q.Total != 360 {
		t.Errorf("Total = %v, want 360", q.Total)
	}
	if q.Status != entity.QuoteStatusDraft {
		t.Errorf("Status = %q, want draft", q.Status)
	}
}

func TestQuoteCreateKeepsExplicitTotal(t *testing.T) {
	f := newFixture(t)

	q, err := f.quotes.Create(entity.Quote{MaterialsCost: 100, LaborCost: 100, Total: 999})
	if err != nil {
		t.Fatal(err)
	}
	if q.Total != 999 {
		t.Errorf("Total = %v, want the explicit 999", q.Total)
	}
}

func TestFloorPlanCreateStoresFileAndMetadata(t *testing.T) {
	f := newFixture(t)

	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 1, 2, 3}
	plan, err := f.floorplans.Create(entity.FloorPlan{QuoteID: "q-local", Name: "Kitchen"}, png)
	if err != nil {
		t.Fatal(err)
	}
	if plan.ContentType != "image/png" {
		t.Errorf("ContentType = %s", plan.ContentType)
	}
	if plan.SizeBytes != int64(len(png)) {
		t.Errorf("SizeBytes = %d", plan.SizeBytes)
	}
	if plan.FileName == "" {
		t.Fatal("FileName not assigned")
	}

	data, err := f.floorplans.File(plan.LocalID)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if string(data) != string(png) {
		t.Error("stored bytes differ")
	}

	items := pendingItems(t, f.queue)
	if len(items) != 1 || items[0].Entity != entity.KindFloorPlan {
		t.Errorf("queue = %+v", items)
	}
}

func TestFloorPlanCreateRejectsGarbage(t *testing.T) {
	f := newFixture(t)

	if _, err := f.floorplans.Create(entity.FloorPlan{QuoteID: "q"}, []byte("not a plan")); err == nil {
		t.Fatal("expected validation error")
	}
	// Nothing must have been stored or queued.
	list, _ := f.floorplans.List()
	if len(list) != 0 {
		t.Errorf("metadata stored for rejected plan: %+v", list)
	}
	if items := pendingItems(t, f.queue); len(items) != 0 {
		t.Errorf("queue = %+v", items)
	}
}

func TestFloorPlanDeleteRemovesFile(t *testing.T) {
	f := newFixture(t)

	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	plan, err := f.floorplans.Create(entity.FloorPlan{QuoteID: "q"}, png)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.floorplans.Delete(plan.LocalID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.ReadFile(plan.FileName); err == nil {
		t.Error("plan file still readable after delete")
	}
}

func TestTombstonesRetain(t *testing.T) {
	f := newFixture(t)

	for _, id := range []string{"srv-1", "srv-2", "srv-3"} {
		if err := f.tombstones.Add(entity.KindCustomer, id); err != nil {
			t.Fatal(err)
		}
	}
	// Adding twice is a no-op.
	if err := f.tombstones.Add(entity.KindCustomer, "srv-1"); err != nil {
		t.Fatal(err)
	}

	// The server still returns srv-2 only; the others are confirmed gone.
	if err := f.tombstones.Retain(entity.KindCustomer, map[string]bool{"srv-2": true}); err != nil {
		t.Fatal(err)
	}

	set, err := f.tombstones.Set(entity.KindCustomer)
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 1 || !set["srv-2"] {
		t.Errorf("set = %v, want only srv-2", set)
	}
}
