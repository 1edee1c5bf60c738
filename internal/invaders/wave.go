package invaders

import "space-invaders-server/internal/config"

// buildFormation creates a fresh alien grid for scaled.AlienRows x
// scaled.AlienCols, anchored at the grid's alien start bounds, all
// marked entering (cleared by the reducer on reveal→playing).
func buildFormation(grid config.GridConfig, scaled ScaledConfig, nextID *NextEntityID) []Entity {
	aliens := make([]Entity, 0, scaled.AlienRows*scaled.AlienCols)
	for row := 0; row < scaled.AlienRows; row++ {
		y := grid.AlienStartY + row*grid.AlienRowSpace
		for col := 0; col < scaled.AlienCols; col++ {
			x := grid.AlienMinX + col*grid.AlienColSpace
			id := nextID.Allocate()
			aliens = append(aliens, NewAlien(id, row, col, x, y, true))
		}
	}
	return aliens
}

// BuildBarriers creates the fixed set of BarrierCount barriers at game
// start. The Room calls this once per game (waiting -> wipe_hold);
// subsequent waves preserve these entities, including accumulated
// segment damage, rather than rebuilding them.
func BuildBarriers(grid config.GridConfig, nextID *NextEntityID) []Entity {
	xs := barrierXPositions(grid)
	y := BarrierY(grid)
	barriers := make([]Entity, 0, len(xs))
	for _, x := range xs {
		id := nextID.Allocate()
		barriers = append(barriers, NewBarrier(id, x, y))
	}
	return barriers
}

// barriersOnly filters out everything except barriers, used when
// rebuilding the entity list for a new wave (aliens and any stray
// bullets/UFO are cleared; barriers are kept as-is).
func barriersOnly(entities []Entity) []Entity {
	kept := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if e.Kind == EntityKindBarrier {
			kept = append(kept, e)
		}
	}
	return kept
}
