package room

import (
	"time"

	"space-invaders-server/internal/invaders"
	"space-invaders-server/internal/protocol"
)

// dispatch routes one decoded client frame to its handler. Every
// branch either mutates Room
// state directly and broadcasts (join/ready/unready/start_solo) or
// queues an Action for the next tick's reducer call (forfeit/input/
// move/shoot); ping is answered without touching state at all.
func (r *Room) dispatch(att *attachment, env protocol.ClientEnvelope) {
	switch env.Type {
	case protocol.MsgJoin:
		r.handleJoinMsg(att, env.Name)
	case protocol.MsgReady:
		r.handleReady(att)
	case protocol.MsgUnready:
		r.handleUnready(att)
	case protocol.MsgStartSolo:
		r.handleStartSolo(att)
	case protocol.MsgForfeit:
		r.queueAction(att, invaders.Action{Kind: invaders.ActionForfeit})
	case protocol.MsgInput:
		held := invaders.InputState{}
		if env.Held != nil {
			held = *env.Held
		}
		r.queueAction(att, invaders.Action{Kind: invaders.ActionPlayerInput, Held: held})
	case protocol.MsgMove:
		r.queueAction(att, invaders.Action{Kind: invaders.ActionPlayerMove, Direction: env.Direction})
	case protocol.MsgShoot:
		r.queueAction(att, invaders.Action{Kind: invaders.ActionPlayerShoot})
	case protocol.MsgPing:
		att.conn.WriteJSON(protocol.NewPongMessage(time.Now().UnixMilli()))
	}
}

// handleJoinMsg assigns the lowest free slot to a new player. A join
// arriving while the previous round ended (status=game_over) starts a
// fresh lobby; one still in progress is rejected with game_in_progress.
func (r *Room) handleJoinMsg(att *attachment, name string) {
	if att.playerID != "" {
		r.sendError(att, protocol.ErrInvalidAction, "already joined")
		return
	}
	if len(r.state.Players) >= r.limits.MaxPlayersPerRoom {
		r.sendError(att, protocol.ErrRoomFull, "room is full")
		return
	}
	if r.state.Status == invaders.StatusCountdown {
		r.sendError(att, protocol.ErrCountdownInProgress, "countdown in progress")
		return
	}
	if r.state.Status != invaders.StatusWaiting && r.state.Status != invaders.StatusGameOver {
		r.sendError(att, protocol.ErrGameInProgress, "game already in progress")
		return
	}
	for _, p := range r.state.Players {
		if p.Name == name {
			r.sendError(att, protocol.ErrNameTaken, "name already in use")
			return
		}
	}

	if r.state.Status == invaders.StatusGameOver {
		r.resetForNewGame()
	}

	slot := r.freeSlot()
	id := "p_" + att.id
	scaled := invaders.ScaledConfigFor(len(r.state.Players) + 1)
	player := invaders.NewPlayer(r.grid, id, name, slot, scaled.Lives)
	r.state.Players[id] = player
	att.playerID = id

	att.conn.WriteJSON(protocol.NewSyncMessage(r.state, id, scaled))
	r.broadcastSync([]invaders.Event{invaders.NewEvent(invaders.EventPlayerJoined, invaders.PlayerJoinedData{Player: player})})
}

func (r *Room) handleReady(att *attachment) {
	if att.playerID == "" {
		r.sendError(att, protocol.ErrNotInRoom, "not joined")
		return
	}
	if r.state.Status != invaders.StatusWaiting {
		r.sendError(att, protocol.ErrInvalidAction, "ready only allowed while waiting")
		return
	}

	if !containsString(r.state.ReadyPlayerIDs, att.playerID) {
		r.state.ReadyPlayerIDs = append(r.state.ReadyPlayerIDs, att.playerID)
	}
	r.broadcastSync([]invaders.Event{invaders.NewEvent(invaders.EventPlayerReady, invaders.PlayerIDData{PlayerID: att.playerID})})

	if len(r.state.Players) >= 2 && r.allReady() {
		r.state.Mode = invaders.ModeCoop
		r.startCountdown()
	}
}

func (r *Room) handleUnready(att *attachment) {
	if att.playerID == "" {
		r.sendError(att, protocol.ErrNotInRoom, "not joined")
		return
	}
	if r.state.Status != invaders.StatusWaiting && r.state.Status != invaders.StatusCountdown {
		r.sendError(att, protocol.ErrInvalidAction, "unready not allowed now")
		return
	}

	wasCountdown := r.state.Status == invaders.StatusCountdown
	r.state.ReadyPlayerIDs = removeString(r.state.ReadyPlayerIDs, att.playerID)

	events := []invaders.Event{invaders.NewEvent(invaders.EventPlayerUnready, invaders.PlayerIDData{PlayerID: att.playerID})}
	if wasCountdown {
		r.cancelCountdown()
		events = append(events, invaders.NewEvent(invaders.EventCountdownCancelled, invaders.CountdownCancelledData{Reason: "player_unready"}))
	}
	r.broadcastSync(events)
}

func (r *Room) handleStartSolo(att *attachment) {
	if att.playerID == "" {
		r.sendError(att, protocol.ErrNotInRoom, "not joined")
		return
	}
	if len(r.state.Players) != 1 {
		r.sendError(att, protocol.ErrInvalidAction, "start_solo requires exactly one player")
		return
	}
	if r.state.Status != invaders.StatusWaiting {
		r.sendError(att, protocol.ErrInvalidAction, "already started")
		return
	}

	r.state.Mode = invaders.ModeSolo
	r.beginWipeHold()
	r.broadcastSync(nil)
}

// queueAction validates the common input/move/shoot/forfeit
// preconditions and appends one Action for the next tick's Reduce
// call; it never mutates GameState itself.
func (r *Room) queueAction(att *attachment, a invaders.Action) {
	if att.playerID == "" {
		r.sendError(att, protocol.ErrNotInRoom, "not joined")
		return
	}
	if r.state.Status != invaders.StatusPlaying {
		r.sendError(att, protocol.ErrInvalidAction, "not playing")
		return
	}
	a.PlayerID = att.playerID
	r.pending = append(r.pending, a)
}

// leavePlayer removes a player (on disconnect/error), freeing their
// slot and color back to the implicit pool and cancelling any
// in-flight countdown that their departure would invalidate.
func (r *Room) leavePlayer(playerID, reason string) {
	if _, ok := r.state.Players[playerID]; !ok {
		return
	}
	delete(r.state.Players, playerID)
	r.state.ReadyPlayerIDs = removeString(r.state.ReadyPlayerIDs, playerID)

	events := []invaders.Event{invaders.NewEvent(invaders.EventPlayerLeft, invaders.PlayerLeftData{PlayerID: playerID, Reason: reason})}
	if r.state.Status == invaders.StatusCountdown {
		r.cancelCountdown()
		events = append(events, invaders.NewEvent(invaders.EventCountdownCancelled, invaders.CountdownCancelledData{Reason: "player_left"}))
	}

	r.broadcastSync(events)
}

// handleTimerFired is the Room's single timer callback: during
// countdown it advances the 3-2-1 sequence, otherwise it runs one
// reducer tick and re-arms for the next.
func (r *Room) handleTimerFired() {
	if r.state.Status == invaders.StatusCountdown {
		r.advanceCountdown()
		return
	}
	r.runTick()
}

// startCountdown enters the countdown phase: 3 broadcast immediately,
// then one timer fire per second counting down to game_start.
func (r *Room) startCountdown() {
	r.state.Status = invaders.StatusCountdown
	r.countdownRemaining = r.timing.CountdownTicks
	n := r.countdownRemaining
	r.state.CountdownRemaining = &n
	r.armCountdownTimer()
	r.broadcastSync([]invaders.Event{invaders.NewEvent(invaders.EventCountdownTick, invaders.CountdownTickData{Count: n})})
}

func (r *Room) advanceCountdown() {
	r.countdownRemaining--
	if r.countdownRemaining > 0 {
		n := r.countdownRemaining
		r.state.CountdownRemaining = &n
		r.armCountdownTimer()
		r.broadcastSync([]invaders.Event{invaders.NewEvent(invaders.EventCountdownTick, invaders.CountdownTickData{Count: n})})
		return
	}

	r.state.CountdownRemaining = nil
	r.beginWipeHold()
	r.broadcastSync([]invaders.Event{invaders.NewEvent(invaders.EventGameStart, nil)})
}

func (r *Room) cancelCountdown() {
	r.stopTimer()
	r.state.Status = invaders.StatusWaiting
	r.state.CountdownRemaining = nil
	r.countdownRemaining = 0
}

// beginWipeHold transitions waiting/countdown straight into wipe_hold:
// barriers are built once here (game start) and never rebuilt between
// waves, and the timer switches from countdown cadence to tick cadence.
func (r *Room) beginWipeHold() {
	nextID := r.nextEntityID
	r.state.Entities = invaders.BuildBarriers(r.grid, &nextID)
	r.nextEntityID = nextID

	n := r.timing.WipeHoldTicks
	r.state.Status = invaders.StatusWipeHold
	r.state.WipeTicksRemaining = &n
	r.armTickTimer()
}

// runTick runs exactly one reducer step over the queued actions,
// broadcasts its result, and re-arms the timer if gameplay continues.
func (r *Room) runTick() {
	start := time.Now()
	state, nextID, events := invaders.Reduce(r.state, r.nextEntityID, r.pending)
	if r.tickHook != nil {
		r.tickHook(time.Since(start))
	}
	r.state = state
	r.nextEntityID = nextID
	r.pending = nil

	r.broadcastSync(events)

	switch r.state.Status {
	case invaders.StatusPlaying, invaders.StatusWipeExit, invaders.StatusWipeHold, invaders.StatusWipeReveal:
		r.armTickTimer()
	default:
		r.stopTimer()
	}
}

// resumeTimerForState re-arms the timer a freshly loaded room needs,
// for the case NewRoom restored a persisted mid-game record instead of
// starting from StatusWaiting: countdown resumes its 1 Hz cadence,
// anything mid-wipe or playing resumes the 30 Hz tick cadence, and
// waiting/game_over rooms stay timerless until a client acts.
func (r *Room) resumeTimerForState() {
	switch r.state.Status {
	case invaders.StatusCountdown:
		if r.state.CountdownRemaining != nil {
			r.countdownRemaining = *r.state.CountdownRemaining
		} else {
			r.countdownRemaining = r.timing.CountdownTicks
		}
		r.armCountdownTimer()
	case invaders.StatusPlaying, invaders.StatusWipeExit, invaders.StatusWipeHold, invaders.StatusWipeReveal:
		r.armTickTimer()
	}
}

func (r *Room) armCountdownTimer() {
	r.stopTimer()
	r.timer = time.NewTimer(time.Duration(r.timing.CountdownMs) * time.Millisecond)
}

func (r *Room) armTickTimer() {
	r.stopTimer()
	r.timer = time.NewTimer(time.Duration(r.timing.TickMs) * time.Millisecond)
}

func (r *Room) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// resetForNewGame returns a finished room to a fresh lobby when a
// client joins after game_over, keeping any players who stuck around
// instead of forcing everyone to reconnect for the next round.
func (r *Room) resetForNewGame() {
	r.state.Status = invaders.StatusWaiting
	r.state.Wave = 1
	r.state.Score = 0
	r.state.Lives = 0
	r.state.AlienDirection = 1
	r.state.Entities = nil
	r.state.ReadyPlayerIDs = nil
	r.state.WipeTicksRemaining = nil
	r.state.WipeWaveNumber = nil
	r.state.CountdownRemaining = nil
	r.state.AlienShootingDisabled = false

	for id, p := range r.state.Players {
		p.Alive = true
		p.Kills = 0
		p.Lives = r.state.Lives
		p.LastShotTick = 0
		p.RespawnAtTick = nil
		p.X = invaders.SpawnXForSlot(r.grid, p.Slot)
		r.state.Players[id] = p
	}
}

// freeSlot returns the lowest slot in {1..MaxPlayersPerRoom} not held
// by a currently-connected player.
func (r *Room) freeSlot() int {
	used := make(map[int]bool, len(r.state.Players))
	for _, p := range r.state.Players {
		used[p.Slot] = true
	}
	for s := 1; s <= r.limits.MaxPlayersPerRoom; s++ {
		if !used[s] {
			return s
		}
	}
	return 1
}

// allReady reports whether every connected player's id is present in
// ReadyPlayerIDs. An empty room is never ready.
func (r *Room) allReady() bool {
	if len(r.state.Players) == 0 {
		return false
	}
	ready := make(map[string]bool, len(r.state.ReadyPlayerIDs))
	for _, id := range r.state.ReadyPlayerIDs {
		ready[id] = true
	}
	for id := range r.state.Players {
		if !ready[id] {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// removeString filters s out of list in place; calling it when s
// isn't present is a no-op, so unready after unready stays an
// identity.
func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
