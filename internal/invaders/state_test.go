package invaders

import (
	"reflect"
	"testing"

	"space-invaders-server/internal/config"
)

func TestNewGameStateDefaults(t *testing.T) {
	grid := config.DefaultGrid()
	s := NewGameState("ABC123", grid, 7)

	if s.Status != StatusWaiting {
		t.Fatalf("expected waiting status, got %v", s.Status)
	}
	if s.Mode != ModeSolo {
		t.Fatalf("expected solo default mode, got %v", s.Mode)
	}
	if s.Wave != 1 {
		t.Fatalf("expected wave 1, got %d", s.Wave)
	}
	if s.AlienDirection != 1 {
		t.Fatalf("expected initial alien direction 1, got %d", s.AlienDirection)
	}
	if s.Players == nil {
		t.Fatal("expected an initialized, empty Players map")
	}
}

func TestMigrateGameStateIsIdempotent(t *testing.T) {
	grid := config.DefaultGrid()
	fresh := NewGameState("ABC123", grid, 1)

	migrated := MigrateGameState(fresh, grid)
	if !reflect.DeepEqual(migrated, fresh) {
		t.Fatalf("migrating an already-complete state should be a no-op:\nbefore=%+v\nafter=%+v", fresh, migrated)
	}
}

func TestMigrateGameStateFillsZeroValues(t *testing.T) {
	grid := config.DefaultGrid()
	var empty GameState

	migrated := MigrateGameState(empty, grid)
	if migrated.Players == nil {
		t.Fatal("expected Players map to be initialized")
	}
	if migrated.Status != StatusWaiting {
		t.Fatalf("expected waiting status, got %v", migrated.Status)
	}
	if migrated.Mode != ModeSolo {
		t.Fatalf("expected solo mode, got %v", migrated.Mode)
	}
	if migrated.Wave != 1 {
		t.Fatalf("expected wave 1, got %d", migrated.Wave)
	}
	if migrated.AlienDirection != 1 {
		t.Fatalf("expected alien direction 1, got %d", migrated.AlienDirection)
	}
	if migrated.Config != grid {
		t.Fatalf("expected grid config to be filled in")
	}
}
