package room

import (
	"encoding/json"
	"testing"

	"space-invaders-server/internal/config"
	"space-invaders-server/internal/invaders"
)

func TestMemoryStoreSaveLoadDelete(t *testing.T) {
	store := NewMemoryStore()
	grid := config.DefaultGrid()

	if _, ok, err := store.Load("NOPE99"); err != nil || ok {
		t.Fatalf("expected a clean miss for an unknown code, got ok=%v err=%v", ok, err)
	}

	state := invaders.NewGameState("ABC123", grid, 7)
	state.Score = 990
	rec := PersistedRoom{State: state, NextEntityID: 17}
	if err := store.Save("ABC123", rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, ok, err := store.Load("ABC123")
	if err != nil || !ok {
		t.Fatalf("expected a hit, got ok=%v err=%v", ok, err)
	}
	if loaded.State.Score != 990 || loaded.NextEntityID != 17 {
		t.Fatalf("loaded record does not match saved: %+v", loaded)
	}

	if err := store.Delete("ABC123"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Load("ABC123"); ok {
		t.Fatal("expected a miss after delete")
	}
}

// The persisted layout is {state, nextEntityId} keyed by room code; a
// networked Store implementation will serialize PersistedRoom to JSON,
// so both fields must survive the trip.
func TestPersistedRoomRoundTripsThroughJSON(t *testing.T) {
	grid := config.DefaultGrid()
	state := invaders.NewGameState("ABC123", grid, 5)
	state.Wave = 3
	rec := PersistedRoom{State: state, NextEntityID: 42}

	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back PersistedRoom
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.State.RoomID != "ABC123" || back.State.Wave != 3 || back.NextEntityID != 42 {
		t.Fatalf("round-trip mismatch: %+v", back)
	}
}
