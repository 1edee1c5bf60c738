package room

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"space-invaders-server/internal/config"
	"space-invaders-server/internal/invaders"
	"space-invaders-server/internal/protocol"
)

type joinRequest struct {
	conn   Conn
	respCh chan joinResult
}

type joinResult struct {
	connID string
	err    error
}

type msgRequest struct {
	connID string
	raw    []byte
}

// Room is the single-goroutine owner of one game's state, connection
// set, and timer: a channel actor whose select loop serializes every
// message dispatch, timer fire, and lifecycle callback.
type Room struct {
	ctx    context.Context
	cancel context.CancelFunc

	code   string
	grid   config.GridConfig
	timing config.TimingConfig
	limits config.ResourceLimits

	store    Store
	eventLog *invaders.EventLog
	limiter  *ConnRateLimiter

	state        invaders.GameState
	nextEntityID invaders.NextEntityID
	pending      []invaders.Action

	conns      map[string]*attachment
	nextConnID uint64

	timer              *time.Timer
	countdownRemaining int

	emptyTimer *time.Timer

	joinCh      chan joinRequest
	msgCh       chan msgRequest
	closeCh     chan string
	infoCh      chan chan Info
	precheckCh  chan chan error

	// tickHook, if set, is called with the wall-clock duration of each
	// reducer tick. It exists so the Directory can feed a process-wide
	// metric (internal/api.RecordTick) without this package importing
	// internal/api, which already imports internal/room.
	tickHook func(time.Duration)

	// cleanupHook, if set, is called once when the room deletes itself
	// after sitting empty past the cleanup deadline, so the Directory
	// can drop its registry entry for this code.
	cleanupHook func()

	wg sync.WaitGroup
}

// SetTickHook installs the reducer-tick duration callback. Must be
// called before Run starts; it is not safe to change once the room's
// goroutine is running.
func (r *Room) SetTickHook(f func(time.Duration)) {
	r.tickHook = f
}

// SetCleanupHook installs the empty-room deletion callback. Like
// SetTickHook, it must be called before Run starts.
func (r *Room) SetCleanupHook(f func()) {
	r.cleanupHook = f
}

// EventLogStats reports this room's event log counters for the
// process-wide metrics poll; safe to call from any goroutine since
// EventLog.GetStats is atomic-based and never touches Room state.
func (r *Room) EventLogStats() map[string]interface{} {
	if r.eventLog == nil {
		return nil
	}
	return r.eventLog.GetStats()
}

// NewRoom builds a Room for roomCode, owned exclusively by the
// goroutine started with Run. If store already holds a persisted
// record for this code (a restart, not a first init), that record is
// restored through MigrateGameState rather than starting fresh.
func NewRoom(parent context.Context, code string, grid config.GridConfig, timing config.TimingConfig, limits config.ResourceLimits, store Store, eventLog *invaders.EventLog) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		ctx:        ctx,
		cancel:     cancel,
		code:       code,
		grid:       grid,
		timing:     timing,
		limits:     limits,
		store:      store,
		eventLog:   eventLog,
		limiter:    NewConnRateLimiter(limiterConfigFor(limits)),
		state:      invaders.NewGameState(code, grid, seedFromCode(code)),
		conns:      make(map[string]*attachment),
		joinCh:     make(chan joinRequest),
		msgCh:      make(chan msgRequest, 256),
		closeCh:    make(chan string, 64),
		infoCh:     make(chan chan Info),
		precheckCh: make(chan chan error),
	}

	if store != nil {
		if rec, ok, err := store.Load(code); err != nil {
			log.Printf("⚠️ Room %s: persisted state load failed, starting fresh: %v", code, err)
		} else if ok {
			r.state = invaders.MigrateGameState(rec.State, grid)
			r.nextEntityID = rec.NextEntityID
		}
	}

	return r
}

// limiterConfigFor honors the configured per-connection message cap,
// falling back to the default when limits leave it unset.
func limiterConfigFor(limits config.ResourceLimits) ConnLimiterConfig {
	cfg := DefaultConnLimiterConfig
	if limits.MaxMessagesPerSec > 0 {
		cfg.MessagesPerSecond = float64(limits.MaxMessagesPerSec)
	}
	return cfg
}

// seedFromCode derives a starting RNG seed from the room code so two
// rooms created in the same process tick don't share a seed; it has
// no bearing on cross-restart determinism, which is governed entirely
// by the persisted seed once the room starts.
func seedFromCode(code string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(code); i++ {
		h ^= uint32(code[i])
		h *= 16777619
	}
	return h
}

// Run is the Room's single goroutine: every mutation of GameState,
// the connection map, and timer state happens here, so no lock is
// needed around GameState itself.
func (r *Room) Run() {
	r.wg.Add(1)
	defer r.wg.Done()

	log.Printf("🎮 Room %s: loop started", r.code)
	defer log.Printf("🛑 Room %s: loop stopped", r.code)

	r.resumeTimerForState()

	// A room created by /init that nobody ever connects to still gets
	// cleaned up: the empty timer is armed from birth and cancelled by
	// the first successful upgrade.
	if len(r.conns) == 0 {
		r.armEmptyTimer()
	}

	for {
		select {
		case <-r.ctx.Done():
			r.closeAll()
			return

		case req := <-r.joinCh:
			r.handleJoin(req)

		case req := <-r.msgCh:
			r.handleMessage(req)

		case connID := <-r.closeCh:
			r.handleClose(connID)

		case respCh := <-r.infoCh:
			respCh <- Info{RoomCode: r.code, PlayerCount: len(r.state.Players), Status: r.state.Status}

		case respCh := <-r.precheckCh:
			respCh <- r.checkAcceptable()

		case <-r.timerC():
			r.handleTimerFired()

		case <-r.emptyTimerC():
			r.handleCleanup()
		}
	}
}

// timerC returns the active timer's channel, or a nil channel (which
// blocks forever in a select) when no timer is armed.
func (r *Room) timerC() <-chan time.Time {
	if r.timer == nil {
		return nil
	}
	return r.timer.C
}

func (r *Room) emptyTimerC() <-chan time.Time {
	if r.emptyTimer == nil {
		return nil
	}
	return r.emptyTimer.C
}

// Shutdown stops the room's goroutine and flushes its event log.
func (r *Room) Shutdown() {
	r.cancel()
	r.wg.Wait()
	r.limiter.Stop()
}

// Info returns the snapshot the /info endpoint and directory listing
// need, without touching Room internals from another goroutine.
type Info struct {
	RoomCode    string
	PlayerCount int
	Status      invaders.Status
}

// Info returns {roomCode, playerCount, status} for the /info endpoint.
func (r *Room) Info() Info {
	respCh := make(chan Info, 1)
	select {
	case <-r.ctx.Done():
		return Info{RoomCode: r.code, Status: invaders.StatusGameOver}
	case r.infoCh <- respCh:
	}
	return <-respCh
}

// CanAccept reports whether the room would currently accept a new
// websocket connection, without registering one. The HTTP layer calls
// this before performing the actual protocol upgrade: once the gorilla
// upgrader writes its 101 Switching Protocols response there is no way
// to go back and answer with a 409/429 instead, so room_full and
// game_in_progress have to be known ahead of the handshake rather than
// discovered by calling Upgrade after the socket is already a
// websocket. A true accept/reject still happens in Upgrade itself,
// since a room's state can change between this check and the
// handshake completing.
func (r *Room) CanAccept() error {
	respCh := make(chan error, 1)
	select {
	case <-r.ctx.Done():
		return protocol.NewUpgradeError(protocol.ErrInvalidRoom, "room is closed")
	case r.precheckCh <- respCh:
	}
	return <-respCh
}

func (r *Room) checkAcceptable() error {
	if len(r.conns) >= r.limits.MaxPlayersPerRoom {
		return protocol.NewUpgradeError(protocol.ErrRoomFull, "room is full")
	}
	switch r.state.Status {
	case invaders.StatusWaiting, invaders.StatusGameOver:
		return nil
	case invaders.StatusCountdown:
		return protocol.NewUpgradeError(protocol.ErrCountdownInProgress, "countdown in progress")
	default:
		return protocol.NewUpgradeError(protocol.ErrGameInProgress, "game already in progress")
	}
}

// Upgrade is called from the HTTP layer when a client requests
// `/room/{code}/ws`. It blocks until the room's own goroutine accepts
// or rejects the connection, so the accept/reject decision is made
// under the same single-writer discipline as everything else.
func (r *Room) Upgrade(conn Conn) (string, error) {
	respCh := make(chan joinResult, 1)
	select {
	case <-r.ctx.Done():
		return "", protocol.NewUpgradeError(protocol.ErrInvalidRoom, "room is closed")
	case r.joinCh <- joinRequest{conn: conn, respCh: respCh}:
	}

	select {
	case <-r.ctx.Done():
		return "", protocol.NewUpgradeError(protocol.ErrInvalidRoom, "room is closed")
	case res := <-respCh:
		return res.connID, res.err
	}
}

// OnMessage enqueues one inbound frame for processing on the room
// goroutine. Safe to call from the websocket read loop.
func (r *Room) OnMessage(connID string, raw []byte) {
	select {
	case <-r.ctx.Done():
	case r.msgCh <- msgRequest{connID: connID, raw: raw}:
	}
}

// OnClose handles a connection ending, whether by a clean close or a
// read error (the websocket handler calls it either way): it removes
// the player, cancels an in-flight countdown if applicable, and
// schedules idle cleanup if the room becomes empty.
func (r *Room) OnClose(connID string) {
	select {
	case <-r.ctx.Done():
	case r.closeCh <- connID:
	}
}

func (r *Room) handleJoin(req joinRequest) {
	if err := r.checkAcceptable(); err != nil {
		req.respCh <- joinResult{err: err}
		return
	}

	r.nextConnID++
	connID := strconv.FormatUint(r.nextConnID, 10)
	r.conns[connID] = &attachment{id: connID, conn: req.conn}
	r.cancelEmptyTimer()

	req.respCh <- joinResult{connID: connID}
}

func (r *Room) handleMessage(req msgRequest) {
	if req.raw == nil {
		return
	}
	att, ok := r.conns[req.connID]
	if !ok {
		return
	}

	if !r.limiter.Allow(req.connID) {
		r.sendError(att, protocol.ErrRateLimited, "too many messages")
		return
	}

	env, err := protocol.DecodeClientMessage(req.raw)
	if err != nil {
		r.sendError(att, protocol.ErrInvalidMessage, err.Error())
		return
	}

	r.dispatch(att, env)
}

func (r *Room) handleClose(connID string) {
	att, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)
	r.limiter.Forget(connID)

	if att.playerID != "" {
		r.leavePlayer(att.playerID, "disconnected")
	}

	if len(r.conns) == 0 {
		r.armEmptyTimer()
	}
}

func (r *Room) handleCleanup() {
	if len(r.conns) == 0 {
		r.cancel()
		if r.store != nil {
			r.store.Delete(r.code)
		}
		if r.cleanupHook != nil {
			r.cleanupHook()
		}
	}
}

func (r *Room) closeAll() {
	for _, att := range r.conns {
		att.conn.Close()
	}
	if r.eventLog != nil {
		r.eventLog.Stop()
	}
}

func (r *Room) cancelEmptyTimer() {
	if r.emptyTimer != nil {
		r.emptyTimer.Stop()
		r.emptyTimer = nil
	}
}

func (r *Room) armEmptyTimer() {
	d := time.Duration(r.timing.RoomCleanupDelay) * time.Second
	r.emptyTimer = time.NewTimer(d)
}

func (r *Room) sendError(att *attachment, code protocol.ErrorCode, message string) {
	att.conn.WriteJSON(protocol.NewErrorMessage(code, message))
}

// broadcastSync sends the current state to every attached connection,
// persists the record, and logs any tick/dispatch events. Events are
// sent before the sync they accompany; clients tolerate either order.
func (r *Room) broadcastSync(events []invaders.Event) {
	for _, e := range events {
		r.eventLog.EmitAll(r.state.Tick, "", []invaders.Event{e})
		msg := protocol.NewEventMessage(e)
		for _, att := range r.conns {
			if att.playerID == "" {
				continue
			}
			att.conn.WriteJSON(msg)
		}
	}

	update := protocol.NewSyncUpdate(r.state)
	for _, att := range r.conns {
		if att.playerID == "" {
			continue
		}
		att.conn.WriteJSON(update)
	}

	r.persist()
}

// persist saves (state, nextEntityId) after a mutating event. One
// failed save is retried immediately; a second failure leaves the room
// running in-memory and logs, per the propagation policy.
func (r *Room) persist() {
	if r.store == nil {
		return
	}
	rec := PersistedRoom{State: r.state, NextEntityID: r.nextEntityID}
	if err := r.store.Save(r.code, rec); err != nil {
		if err = r.store.Save(r.code, rec); err != nil {
			log.Printf("⚠️ Room %s: persist failed after retry: %v", r.code, err)
		}
	}
}
