package invaders

import (
	"sort"

	"space-invaders-server/internal/config"
)

// InputState mirrors the held-key state from the client's `input`
// message. It is applied every tick a player is alive, independent of
// the `move` one-shot nudge.
type InputState struct {
	Left  bool `json:"left"`
	Right bool `json:"right"`
}

// Player is one connected combatant. Lives mirrors GameState.Lives
// (the shared pool): it is seeded with the scaled pool size at join
// and rewritten by mirrorSharedLives whenever the pool changes, so a
// sync payload always shows the current total without the client
// having to cross-reference GameState.
type Player struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Slot          int        `json:"slot"`
	Color         string     `json:"color"`
	X             int        `json:"x"`
	Lives         int        `json:"lives"`
	Alive         bool       `json:"alive"`
	Kills         int        `json:"kills"`
	LastShotTick  uint64     `json:"lastShotTick"`
	RespawnAtTick *uint64    `json:"respawnAtTick,omitempty"`
	InputState    InputState `json:"inputState"`
}

// NewPlayer creates a player centered at its slot's spawn position,
// alive, with the shared lives pool mirrored in from the caller.
func NewPlayer(grid config.GridConfig, id, name string, slot int, lives int) Player {
	return Player{
		ID:    id,
		Name:  name,
		Slot:  slot,
		Color: ColorForSlot(slot),
		X:     SpawnXForSlot(grid, slot),
		Lives: lives,
		Alive: true,
	}
}

// Respawn re-centers a dead player by slot, clears the respawn timer,
// and marks them alive again. It does not touch Kills.
func (p *Player) Respawn(grid config.GridConfig) {
	p.Alive = true
	p.X = SpawnXForSlot(grid, p.Slot)
	p.RespawnAtTick = nil
}

// Die marks a player dead and schedules their respawn eligibility.
func (p *Player) Die(respawnAtTick uint64) {
	p.Alive = false
	p.RespawnAtTick = &respawnAtTick
}

// sortedPlayerIDs returns players' keys in a fixed, deterministic
// order. GameState.Players is a map, and Go randomizes map iteration;
// any reducer code that ranges it directly to decide event order or
// which player is picked among several candidates breaks
// byte-identical replay. Every such site must walk this slice instead
// of ranging the map.
func sortedPlayerIDs(players map[string]Player) []string {
	ids := make([]string, 0, len(players))
	for id := range players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// mirrorSharedLives copies the shared lives pool onto every player.
// Called wherever GameState.Lives changes (a death, the wave refill)
// so Player.Lives never goes stale in a sync payload. Ranging the map
// directly is fine here: every player receives the same value, so the
// result does not depend on iteration order.
func mirrorSharedLives(s GameState) GameState {
	for id, p := range s.Players {
		p.Lives = s.Lives
		s.Players[id] = p
	}
	return s
}
