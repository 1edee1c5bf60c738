package invaders

import "strconv"

// NextEntityID is persisted alongside GameState, not inside it: it is
// Room-owned bookkeeping rather than simulation state.
type NextEntityID uint64

// Allocate returns the next id string and advances the counter. IDs
// are never recycled within a room's lifetime.
func (n *NextEntityID) Allocate() string {
	id := "e_" + strconv.FormatUint(uint64(*n), 10)
	*n++
	return id
}
