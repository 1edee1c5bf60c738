package invaders

// abs avoids importing math for a single integer op.
func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// pointHit reports whether a bullet at (bx, by) strikes a target
// centered at (tx, ty) within the configured horizontal half-width. At
// |bx-tx| == h the shot misses; the boundary belongs to the miss side.
func pointHit(bx, by, tx, ty, h int) bool {
	return by == ty && abs(bx-tx) < h
}

// checkAlienHit finds the first live, non-entering alien a player
// bullet strikes. Returns the alien's index in entities, or -1.
func checkAlienHit(entities []Entity, bullet Entity, h int) int {
	for i := range entities {
		e := &entities[i]
		if e.Kind != EntityKindAlien || !e.Alive || e.Entering {
			continue
		}
		if pointHit(bullet.X, bullet.Y, e.X, e.Y, h) {
			return i
		}
	}
	return -1
}

// checkUfoHit finds the live UFO a player bullet strikes, if any.
func checkUfoHit(entities []Entity, bullet Entity, h int) int {
	for i := range entities {
		e := &entities[i]
		if e.Kind != EntityKindUFO || !e.Alive {
			continue
		}
		if pointHit(bullet.X, bullet.Y, e.X, e.Y, h) {
			return i
		}
	}
	return -1
}

// checkPlayerHit finds the first alive player an alien bullet strikes,
// walking players in sorted-id order rather than ranging the map
// directly: two players can legitimately share an x (e.g. both holding
// right into the PlayerMaxX clamp), and which one is credited with the
// hit must not depend on Go's randomized map iteration order. Returns
// the player's id, or "" if none.
func checkPlayerHit(players map[string]Player, bullet Entity, playerY, h int) string {
	for _, id := range sortedPlayerIDs(players) {
		p := players[id]
		if !p.Alive {
			continue
		}
		if pointHit(bullet.X, bullet.Y, p.X, playerY, h) {
			return id
		}
	}
	return ""
}

// checkBarrierSegmentHit finds the first barrier entity and segment
// index a bullet (of either owner) strikes. A segment with Health 0
// is already destroyed and does not collide. Returns the barrier's
// entity index, the segment index, or (-1,-1) if no hit.
func checkBarrierSegmentHit(entities []Entity, bullet Entity) (int, int) {
	for i := range entities {
		e := &entities[i]
		if e.Kind != EntityKindBarrier {
			continue
		}
		for si := range e.Segments {
			seg := &e.Segments[si]
			if seg.Health <= 0 {
				continue
			}
			sx := e.X + seg.OffsetX
			sy := e.Y + seg.OffsetY
			if bullet.X == sx && bullet.Y == sy {
				return i, si
			}
		}
	}
	return -1, -1
}
