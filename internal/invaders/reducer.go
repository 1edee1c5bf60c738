package invaders

import (
	"sort"

	"space-invaders-server/internal/config"
)

// Tick-order tuning constants, chosen to feel right at 30 Hz and kept
// in one place so they're easy to retune.
const (
	shootCooldownTicks  = 10
	alienWidth          = 4
	ufoSpawnProbability = 0.0015
	ufoSpeed            = 1

	wipeExitTicks   = 30
	wipeHoldTicks   = 30
	wipeRevealTicks = 60

	respawnDelayTicks = 60
)

// Reduce is the tick reducer: (state, actions) -> (state', events). It
// performs no I/O and depends only on its arguments, so replaying the
// same state and action list always produces the same result and the
// same advance of nextID. nextID is threaded explicitly (not stored on
// GameState) because entity ids are Room-owned bookkeeping, not
// simulation state. But allocating them (wave formations, player and
// alien bullets, UFOs) is still deterministic reducer work, so the counter has
// to travel alongside state through the call.
func Reduce(state GameState, nextID NextEntityID, actions []Action) (GameState, NextEntityID, []Event) {
	state = cloneState(state)
	var events []Event

	grid := state.Config
	scaled := ScaledConfigFor(len(state.Players))
	rng := &RNG{Seed: state.RNGSeed}

	// step 1
	state.Tick++

	// step 2
	if isWipePhase(state.Status) {
		state, nextID, events = advanceWipePhase(state, grid, scaled, nextID, events)
	}

	// step 3
	if state.Status != StatusPlaying {
		state.RNGSeed = rng.Seed
		return state, nextID, events
	}

	// step 4
	state, nextID, events = applyActions(state, actions, grid, nextID, events)
	if state.Status != StatusPlaying {
		// forfeit fired; remaining gameplay steps don't apply this tick
		state.RNGSeed = rng.Seed
		return state, nextID, events
	}

	// step 5
	state = movePlayers(state, grid)

	// step 6
	state = advanceBullets(state, grid)

	// step 7
	state, events = moveFormation(state, grid, scaled, events)
	if state.Status != StatusPlaying {
		state.RNGSeed = rng.Seed
		return state, nextID, events
	}

	// step 8
	state, nextID = alienShoot(state, scaled, rng, nextID)

	// step 9
	state, nextID, events = ufoTick(state, grid, rng, nextID, events)

	// step 10
	state, events = resolveCollisions(state, grid, events)

	// step 11
	state, events = respawnPlayers(state, grid, events)

	// step 12
	state = checkWaveComplete(state, &events)

	// step 13
	state, events = checkGameOver(state, events)

	state.RNGSeed = rng.Seed
	return state, nextID, events
}

func isWipePhase(s Status) bool {
	return s == StatusWipeExit || s == StatusWipeHold || s == StatusWipeReveal
}

// cloneState copies the map and slices GameState holds by reference so
// Reduce never mutates the caller's state in place.
func cloneState(s GameState) GameState {
	players := make(map[string]Player, len(s.Players))
	for id, p := range s.Players {
		players[id] = p
	}
	s.Players = players

	if s.ReadyPlayerIDs != nil {
		ready := make([]string, len(s.ReadyPlayerIDs))
		copy(ready, s.ReadyPlayerIDs)
		s.ReadyPlayerIDs = ready
	}

	if s.Entities != nil {
		entities := make([]Entity, len(s.Entities))
		copy(entities, s.Entities)
		for i := range entities {
			if entities[i].Segments != nil {
				segs := make([]BarrierSegment, len(entities[i].Segments))
				copy(segs, entities[i].Segments)
				entities[i].Segments = segs
			}
		}
		s.Entities = entities
	}

	return s
}

// advanceWipePhase decrements the phase counter and transitions exit
// -> hold -> reveal -> playing. The next wave's formation is built
// fresh on the hold -> reveal edge; Entering is cleared on the reveal
// -> playing edge.
func advanceWipePhase(s GameState, grid config.GridConfig, scaled ScaledConfig, nextID NextEntityID, events []Event) (GameState, NextEntityID, []Event) {
	if s.WipeTicksRemaining == nil {
		return s, nextID, events
	}
	remaining := *s.WipeTicksRemaining - 1
	if remaining > 0 {
		s.WipeTicksRemaining = &remaining
		return s, nextID, events
	}

	switch s.Status {
	case StatusWipeExit:
		n := wipeHoldTicks
		s.WipeTicksRemaining = &n
		s.Status = StatusWipeHold
	case StatusWipeHold:
		n := wipeRevealTicks
		s.WipeTicksRemaining = &n
		s.Status = StatusWipeReveal
		s.Entities = barriersOnly(s.Entities)
		formation := buildFormation(grid, scaled, &nextID)
		s.Entities = append(s.Entities, formation...)
		if s.Lives == 0 {
			s.Lives = scaled.Lives
		}
		s = mirrorSharedLives(s)
	case StatusWipeReveal:
		s.WipeTicksRemaining = nil
		s.Status = StatusPlaying
		for i := range s.Entities {
			if s.Entities[i].Kind == EntityKindAlien {
				s.Entities[i].Entering = false
			}
		}
	}
	return s, nextID, events
}

func applyActions(s GameState, actions []Action, grid config.GridConfig, nextID NextEntityID, events []Event) (GameState, NextEntityID, []Event) {
	for _, a := range actions {
		p, ok := s.Players[a.PlayerID]
		if !ok {
			continue
		}
		switch a.Kind {
		case ActionPlayerInput:
			p.InputState = a.Held
			s.Players[a.PlayerID] = p
		case ActionPlayerMove:
			if !p.Alive {
				continue
			}
			switch a.Direction {
			case "left":
				p.X = clamp(p.X-grid.PlayerMoveStep, grid.PlayerMinX, grid.PlayerMaxX)
			case "right":
				p.X = clamp(p.X+grid.PlayerMoveStep, grid.PlayerMinX, grid.PlayerMaxX)
			}
			s.Players[a.PlayerID] = p
		case ActionPlayerShoot:
			// LastShotTick 0 means the player has never fired; the
			// cooldown only gates shots after the first.
			if !p.Alive || (p.LastShotTick != 0 && s.Tick-p.LastShotTick < shootCooldownTicks) {
				continue
			}
			p.LastShotTick = s.Tick
			s.Players[a.PlayerID] = p
			ownerID := a.PlayerID
			id := nextID.Allocate()
			s.Entities = append(s.Entities, NewBullet(id, &ownerID, p.X, grid.PlayerY-1, -1))
		case ActionForfeit:
			s.Status = StatusGameOver
			events = append(events, newEvent(EventGameOver, GameOverData{Result: ResultDefeat}))
		}
	}
	return s, nextID, events
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func movePlayers(s GameState, grid config.GridConfig) GameState {
	for id, p := range s.Players {
		if !p.Alive {
			continue
		}
		// Both keys held nets zero movement because left is applied
		// before right. Intentional, not a bug. The clamp applies to
		// the net result, so this also holds at the bounds.
		x := p.X
		if p.InputState.Left {
			x -= grid.PlayerMoveStep
		}
		if p.InputState.Right {
			x += grid.PlayerMoveStep
		}
		p.X = clamp(x, grid.PlayerMinX, grid.PlayerMaxX)
		s.Players[id] = p
	}
	return s
}

func advanceBullets(s GameState, grid config.GridConfig) GameState {
	kept := s.Entities[:0]
	for _, e := range s.Entities {
		if e.Kind == EntityKindBullet {
			e.Y += e.DY * grid.BaseBulletSpeed
			if e.Y < 0 || e.Y >= grid.Height {
				continue
			}
		}
		kept = append(kept, e)
	}
	s.Entities = kept
	return s
}

// moveFormation moves the whole alien formation one step on ticks
// where tick % scaled.MoveInterval == 0. If any live alien would cross
// the horizontal bounds, the formation reverses and drops a row
// instead of moving sideways that tick.
func moveFormation(s GameState, grid config.GridConfig, scaled ScaledConfig, events []Event) (GameState, []Event) {
	if s.Tick%scaled.MoveInterval != 0 {
		return s, events
	}

	flip := false
	for i := range s.Entities {
		e := &s.Entities[i]
		if e.Kind != EntityKindAlien || !e.Alive {
			continue
		}
		candidate := e.X + s.AlienDirection
		if candidate < grid.AlienMinX || candidate > grid.AlienMaxX {
			flip = true
			break
		}
	}

	if flip {
		s.AlienDirection = -s.AlienDirection
		for i := range s.Entities {
			if s.Entities[i].Kind == EntityKindAlien {
				s.Entities[i].Y += grid.AlienRowSpace
			}
		}
	} else {
		for i := range s.Entities {
			if s.Entities[i].Kind == EntityKindAlien {
				s.Entities[i].X += s.AlienDirection
			}
		}
	}

	for i := range s.Entities {
		e := &s.Entities[i]
		if e.Kind == EntityKindAlien && e.Alive && e.Y >= grid.GameOverY {
			events = append(events, newEvent(EventInvasion, nil))
			s.Status = StatusGameOver
			events = append(events, newEvent(EventGameOver, GameOverData{Result: ResultDefeat}))
			return s, events
		}
	}

	return s, events
}

func alienShoot(s GameState, scaled ScaledConfig, rng *RNG, nextID NextEntityID) (GameState, NextEntityID) {
	if s.AlienShootingDisabled {
		return s, nextID
	}

	frontmost := make(map[int]int) // col -> index of frontmost (largest y) live non-entering alien
	for i := range s.Entities {
		e := &s.Entities[i]
		if e.Kind != EntityKindAlien || !e.Alive || e.Entering {
			continue
		}
		if cur, ok := frontmost[e.Col]; !ok || s.Entities[cur].Y < e.Y {
			frontmost[e.Col] = i
		}
	}

	// Columns must be visited in a fixed order before any rng.Next()
	// call: Go randomizes map iteration, and which column's alien
	// consumes which RNG roll is itself part of the deterministic
	// trajectory replays must reproduce.
	cols := make([]int, 0, len(frontmost))
	for col := range frontmost {
		cols = append(cols, col)
	}
	sort.Ints(cols)

	for _, col := range cols {
		idx := frontmost[col]
		if rng.Next() >= scaled.ShootRate {
			continue
		}
		e := &s.Entities[idx]
		id := nextID.Allocate()
		s.Entities = append(s.Entities, NewBullet(id, nil, e.X+alienWidth/2, e.Y+1, 1))
	}

	return s, nextID
}

func ufoTick(s GameState, grid config.GridConfig, rng *RNG, nextID NextEntityID, events []Event) (GameState, NextEntityID, []Event) {
	hasUFO := false
	for i := range s.Entities {
		e := &s.Entities[i]
		if e.Kind != EntityKindUFO || !e.Alive {
			continue
		}
		hasUFO = true
		e.X += e.Direction * ufoSpeed
		if e.X < 0 || e.X > grid.Width {
			e.Alive = false
		}
	}

	if !hasUFO && rng.Next() < ufoSpawnProbability {
		direction := 1
		x := 0
		if rng.Next() < 0.5 {
			direction = -1
			x = grid.Width
		}
		id := nextID.Allocate()
		points := pickUFOScore(rng)
		s.Entities = append(s.Entities, NewUFO(id, x, grid.AlienStartY-2, direction, points))
		events = append(events, newEvent(EventUFOSpawn, UFOSpawnData{X: x}))
	}

	kept := s.Entities[:0]
	for _, e := range s.Entities {
		if e.Kind == EntityKindUFO && !e.Alive {
			continue
		}
		kept = append(kept, e)
	}
	s.Entities = kept

	return s, nextID, events
}

// resolveCollisions resolves bullet collisions in a fixed order:
// player-bullet-vs-alien, then player-bullet-vs-UFO, then
// alien-bullet-vs-player, then any bullet vs barrier. Each bullet is
// consumed on its first hit.
func resolveCollisions(s GameState, grid config.GridConfig, events []Event) (GameState, []Event) {
	h := grid.CollisionH

	var bullets []int
	for i := range s.Entities {
		if s.Entities[i].Kind == EntityKindBullet {
			bullets = append(bullets, i)
		}
	}

	removeIdx := make(map[int]bool)

	for _, bi := range bullets {
		bullet := s.Entities[bi]

		if bullet.DY == -1 {
			if ai := checkAlienHit(s.Entities, bullet, h); ai >= 0 {
				alien := &s.Entities[ai]
				alien.Alive = false
				removeIdx[bi] = true

				var playerID *string
				if bullet.OwnerID != nil {
					id := *bullet.OwnerID
					playerID = &id
					if p, ok := s.Players[id]; ok {
						p.Kills++
						s.Players[id] = p
					}
				}
				events = append(events, newEvent(EventAlienKilled, AlienKilledData{AlienID: alien.ID, PlayerID: playerID}))
				events = append(events, newEvent(EventScoreAwarded, ScoreAwardedData{PlayerID: playerID, Points: alien.Points, Source: ScoreSourceAlien}))
				s.Score += alien.Points
				continue
			}

			if ui := checkUfoHit(s.Entities, bullet, h); ui >= 0 {
				ufo := &s.Entities[ui]
				ufo.Alive = false
				removeIdx[bi] = true

				var playerID *string
				if bullet.OwnerID != nil {
					id := *bullet.OwnerID
					playerID = &id
				}
				events = append(events, newEvent(EventScoreAwarded, ScoreAwardedData{PlayerID: playerID, Points: ufo.Points, Source: ScoreSourceUFO}))
				s.Score += ufo.Points
				continue
			}
		} else {
			if pid := checkPlayerHit(s.Players, bullet, grid.PlayerY, h); pid != "" {
				p := s.Players[pid]
				p.Die(s.Tick + respawnDelayTicks)
				// Two players can die to separate bullets in the same
				// tick; the pool floors at 0 rather than going negative.
				if s.Lives > 0 {
					s.Lives--
				}
				s.Players[pid] = p
				removeIdx[bi] = true
				events = append(events, newEvent(EventPlayerDied, PlayerIDData{PlayerID: pid}))
				continue
			}
		}

		if barIdx, segIdx := checkBarrierSegmentHit(s.Entities, bullet); barIdx >= 0 {
			seg := &s.Entities[barIdx].Segments[segIdx]
			if seg.Health > 0 {
				seg.Health--
			}
			removeIdx[bi] = true
		}
	}

	if len(removeIdx) > 0 {
		kept := s.Entities[:0]
		for i, e := range s.Entities {
			if removeIdx[i] {
				continue
			}
			kept = append(kept, e)
		}
		s.Entities = kept
	}

	s = mirrorSharedLives(s)

	return s, events
}

func respawnPlayers(s GameState, grid config.GridConfig, events []Event) (GameState, []Event) {
	for _, id := range sortedPlayerIDs(s.Players) {
		p := s.Players[id]
		if p.Alive || p.RespawnAtTick == nil {
			continue
		}
		if *p.RespawnAtTick > s.Tick || s.Lives <= 0 {
			continue
		}
		p.Respawn(grid)
		s.Players[id] = p
		events = append(events, newEvent(EventPlayerRespawned, PlayerIDData{PlayerID: id}))
	}
	return s, events
}

// checkWaveComplete starts the wipe_exit transition once no alien
// remains alive or entering. The fresh formation for the next wave is
// built later, on the wipe_hold -> wipe_reveal edge (advanceWipePhase);
// barriers carry their accumulated damage forward unchanged.
func checkWaveComplete(s GameState, events *[]Event) GameState {
	anyAlienLeft := false
	for i := range s.Entities {
		e := &s.Entities[i]
		if e.Kind == EntityKindAlien && (e.Alive || e.Entering) {
			anyAlienLeft = true
			break
		}
	}
	if anyAlienLeft {
		return s
	}

	s.Wave++
	*events = append(*events, newEvent(EventWaveComplete, WaveCompleteData{Wave: s.Wave}))

	n := wipeExitTicks
	s.Status = StatusWipeExit
	s.WipeTicksRemaining = &n
	wave := s.Wave
	s.WipeWaveNumber = &wave
	s.Entities = barriersOnly(s.Entities)

	return s
}

func checkGameOver(s GameState, events []Event) (GameState, []Event) {
	if s.Status == StatusGameOver {
		return s, events
	}

	if s.Lives <= 0 {
		anyAlive := false
		for _, p := range s.Players {
			if p.Alive {
				anyAlive = true
				break
			}
		}
		if !anyAlive {
			s.Status = StatusGameOver
			events = append(events, newEvent(EventGameOver, GameOverData{Result: ResultDefeat}))
		}
	}

	return s, events
}
