package session

import (
	"testing"
	"time"
)

func TestStoreUpdateAndGet(t *testing.T) {
	store := NewStore(10)
	store.Update(Session{ID: "s1", State: Watching, ProcessID: 100})

	got, ok := store.Get("s1")
	if !ok {
		t.Fatal("Get(s1) not found")
	}
	if got.ProcessID != 100 || got.State != Watching {
		t.Errorf("Get(s1) = %+v", got)
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("Get(missing) should not be found")
	}
}

func TestStoreGetReturnsCopy(t *testing.T) {
	store := NewStore(10)
	at := time.Now()
	store.Update(Session{ID: "s1", EndedAt: &at})

	got, _ := store.Get("s1")
	got.ProcessID = 999
	*got.EndedAt = at.Add(time.Hour)

	again, _ := store.Get("s1")
	if again.ProcessID != 0 || !again.EndedAt.Equal(at) {
		t.Errorf("store mutated through returned copy: %+v", again)
	}
}

func TestStoreGetAllNewestFirst(t *testing.T) {
	store := NewStore(10)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.Update(Session{ID: "old", StartedAt: base})
	store.Update(Session{ID: "new", StartedAt: base.Add(time.Minute)})
	store.Update(Session{ID: "mid", StartedAt: base.Add(time.Second)})

	all := store.GetAll()
	if len(all) != 3 {
		t.Fatalf("GetAll() len = %d, want 3", len(all))
	}
	if all[0].ID != "new" || all[1].ID != "mid" || all[2].ID != "old" {
		t.Errorf("GetAll() order = %s,%s,%s", all[0].ID, all[1].ID, all[2].ID)
	}
}

func TestStoreEvictsOldestEnded(t *testing.T) {
	store := NewStore(2)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.Update(Session{ID: "a", State: Exited, StartedAt: base})
	store.Update(Session{ID: "b", State: Exited, StartedAt: base.Add(time.Second)})
	store.Update(Session{ID: "c", State: Watching, StartedAt: base.Add(2 * time.Second)})

	if _, ok := store.Get("a"); ok {
		t.Error("oldest ended session should have been evicted")
	}
	if _, ok := store.Get("c"); !ok {
		t.Error("active session must never be evicted")
	}
	if store.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", store.ActiveCount())
	}
}

func TestStoreRemove(t *testing.T) {
	store := NewStore(10)
	store.Update(Session{ID: "s1"})
	store.Remove("s1")
	if _, ok := store.Get("s1"); ok {
		t.Error("Remove(s1) did not remove")
	}
}
