package core

import (
	"sync"
	"testing"
)

func TestRegistryAddAndLookup(t *testing.T) {
	r := NewRegistry(nopLogger())

	s := NewSession("alice", "general", 8)
	if err := r.Add(s); err != nil {
		t.Fatalf("add: %v", err)
	}

	if got := r.Lookup("general", "alice"); got != s {
		t.Fatalf("lookup returned %v, want %v", got, s)
	}
	if got := r.Lookup("general", "bob"); got != nil {
		t.Fatalf("lookup for absent user returned %v", got)
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1", r.Len())
	}
}

func TestRegistryRejectsDuplicateUserRoom(t *testing.T) {
	r := NewRegistry(nopLogger())

	first := NewSession("alice", "general", 8)
	if err := r.Add(first); err != nil {
		t.Fatalf("add first: %v", err)
	}

	second := NewSession("alice", "general", 8)
	if err := r.Add(second); err != ErrDuplicateSession {
		t.Fatalf("add second: got %v, want ErrDuplicateSession", err)
	}

	// Last-writer-wins: caller removes the old session, then the add succeeds.
	first.Close(CloseReasonSuperseded)
	r.Remove(first.ID)
	if err := r.Add(second); err != nil {
		t.Fatalf("add after eviction: %v", err)
	}

	sessions := r.SessionsForRoom("general")
	if len(sessions) != 1 || sessions[0] != second {
		t.Fatalf("room holds %d sessions, want only the new one", len(sessions))
	}
}

func TestRegistryRemoveIdempotent(t *testing.T) {
	r := NewRegistry(nopLogger())

	s := NewSession("alice", "general", 8)
	if err := r.Add(s); err != nil {
		t.Fatalf("add: %v", err)
	}

	r.Remove(s.ID)
	r.Remove(s.ID)

	if r.Len() != 0 {
		t.Fatalf("len = %d, want 0", r.Len())
	}
	if got := r.Lookup("general", "alice"); got != nil {
		t.Fatalf("lookup after remove returned %v", got)
	}
}

func TestRegistrySameUserDifferentRooms(t *testing.T) {
	r := NewRegistry(nopLogger())

	a := NewSession("alice", "general", 8)
	b := NewSession("alice", "random", 8)
	if err := r.Add(a); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := r.Add(b); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("len = %d, want 2", r.Len())
	}
}

func TestRegistrySnapshotPreservesInsertionOrder(t *testing.T) {
	r := NewRegistry(nopLogger())

	users := []string{"alice", "bob", "carol"}
	for _, u := range users {
		if err := r.Add(NewSession(u, "general", 8)); err != nil {
			t.Fatalf("add %s: %v", u, err)
		}
	}

	snapshot := r.SessionsForRoom("general")
	if len(snapshot) != len(users) {
		t.Fatalf("snapshot has %d sessions, want %d", len(snapshot), len(users))
	}
	for i, u := range users {
		if snapshot[i].UserID != u {
			t.Fatalf("snapshot[%d] = %s, want %s", i, snapshot[i].UserID, u)
		}
	}

	// Mutating the snapshot must not affect the registry.
	snapshot[0] = nil
	if r.SessionsForRoom("general")[0] == nil {
		t.Fatal("registry shares its backing slice with snapshots")
	}
}

func TestRegistryConcurrentAddRemove(t *testing.T) {
	r := NewRegistry(nopLogger())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s := NewSession("user"+string(rune('a'+n%26)), "room"+string(rune('a'+n%4)), 8)
			if err := r.Add(s); err != nil {
				return
			}
			r.SessionsForRoom(s.RoomID)
			r.Remove(s.ID)
		}(i)
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Fatalf("len = %d after concurrent add/remove, want 0", r.Len())
	}
}
