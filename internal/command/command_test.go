package command

import (
	"testing"
	"time"
)

func storeAt(t *testing.T, start time.Time) (*Store, *time.Time) {
	t.Helper()
	now := start
	s := NewStore()
	s.now = func() time.Time { return now }
	return s, &now
}

func TestPutStampsOriginAndCreatedAt(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s, _ := storeAt(t, base)

	stamped := s.Put("tab1", Command{Game: "Lakers vs Nets", BetType: "Over 220.5", Odds: -105, Wager: 50})
	if !stamped.Origin {
		t.Fatal("Put must set the origin marker")
	}
	if !stamped.CreatedAt.Equal(base) {
		t.Fatalf("CreatedAt = %v; want %v", stamped.CreatedAt, base)
	}
}

func TestPeekExpiryBoundary(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s, now := storeAt(t, base)
	s.Put("tab1", Command{Game: "g"})

	*now = base.Add(TTL - time.Millisecond)
	if _, ok := s.Peek("tab1"); !ok {
		t.Fatal("command just inside the TTL must be consumable")
	}

	*now = base.Add(TTL)
	if _, ok := s.Peek("tab1"); ok {
		t.Fatal("command at exactly the TTL must be stale")
	}
	// Stale detection clears the slot.
	*now = base
	if _, ok := s.Peek("tab1"); ok {
		t.Fatal("stale entry must have been deleted")
	}
}

func TestNonOriginCommandNeverConsumable(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s, _ := storeAt(t, base)

	// Inject a slot entry that was not stamped by Put, simulating foreign
	// data occupying the storage key.
	s.mu.Lock()
	s.slots["tab1"] = Command{Game: "g", CreatedAt: base, Origin: false}
	s.mu.Unlock()

	if _, ok := s.Peek("tab1"); ok {
		t.Fatal("command without the origin marker must never be consumable")
	}
}

func TestTakeConsumesExactlyOnce(t *testing.T) {
	s, _ := storeAt(t, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	s.Put("tab1", Command{Game: "g"})

	if _, ok := s.Take("tab1"); !ok {
		t.Fatal("first Take must succeed")
	}
	if _, ok := s.Take("tab1"); ok {
		t.Fatal("second Take must find nothing")
	}
	if _, ok := s.Peek("tab1"); ok {
		t.Fatal("Peek after Take must find nothing")
	}
}

func TestPutOverwrites(t *testing.T) {
	s, _ := storeAt(t, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	s.Put("tab1", Command{Game: "first"})
	s.Put("tab1", Command{Game: "second"})

	cmd, ok := s.Peek("tab1")
	if !ok || cmd.Game != "second" {
		t.Fatalf("Peek = (%+v, %v); want the overwriting command", cmd, ok)
	}
}

func TestSlotsAreScopedPerTab(t *testing.T) {
	s, _ := storeAt(t, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	s.Put("tab1", Command{Game: "a"})
	s.Put("tab2", Command{Game: "b"})

	s.Delete("tab1")
	if _, ok := s.Peek("tab1"); ok {
		t.Fatal("tab1 slot should be gone")
	}
	if _, ok := s.Peek("tab2"); !ok {
		t.Fatal("tab2 slot should be untouched")
	}
}
