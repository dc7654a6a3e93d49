package audit

import (
	"fmt"
	"testing"
	"time"

	"github.com/sitequote/sitequote/internal/storage"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	store, err := storage.OpenFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	l := New(store)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	n := 0
	l.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Millisecond)
	}
	return l
}

func TestAppendAndEntries(t *testing.T) {
	l := newTestLog(t)

	if err := l.Append("app_start", ""); err != nil {
		t.Fatal(err)
	}
	if err := l.Appendf("sync_item", "customer create %s", "c1"); err != nil {
		t.Fatal(err)
	}

	entries, err := l.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].Action != "app_start" {
		t.Errorf("entries[0].Action = %s", entries[0].Action)
	}
	if entries[1].Details != "customer create c1" {
		t.Errorf("entries[1].Details = %s", entries[1].Details)
	}
	if !entries[0].Timestamp.Before(entries[1].Timestamp) {
		t.Error("entries not in chronological order")
	}
}

func TestAppendTrimsOldestBeyondCap(t *testing.T) {
	l := newTestLog(t)

	for i := 0; i < MaxEntries+100; i++ {
		if err := l.Append("event", fmt.Sprintf("n=%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := l.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != MaxEntries {
		t.Fatalf("len = %d, want %d", len(entries), MaxEntries)
	}
	// The oldest 100 entries are gone; the newest survives.
	if entries[0].Details != "n=100" {
		t.Errorf("entries[0].Details = %s, want n=100", entries[0].Details)
	}
	if entries[len(entries)-1].Details != fmt.Sprintf("n=%d", MaxEntries+99) {
		t.Errorf("last entry = %s", entries[len(entries)-1].Details)
	}
}

func TestEntriesEmptyLog(t *testing.T) {
	l := newTestLog(t)

	entries, err := l.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("len = %d, want 0", len(entries))
	}
}
