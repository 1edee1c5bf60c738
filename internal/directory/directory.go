// Package directory maps room codes to running Room actors: it
// creates rooms on demand, generates fresh codes for /room, and routes
// HTTP upgrade requests to the room goroutine that owns the matching
// code. Shutdown stops every room actor at once via errgroup.
package directory

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"space-invaders-server/internal/config"
	"space-invaders-server/internal/invaders"
	"space-invaders-server/internal/protocol"
	"space-invaders-server/internal/room"
)

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
const codeLength = 6

// ErrAlreadyInitialized is returned by Init when the room code is
// already registered, surfaced by POST /init as the 409 "Already
// initialized" response.
var ErrAlreadyInitialized = errors.New("already initialized")

// ErrTooManyRooms is returned by Init when the process is already
// hosting config.ResourceLimits.MaxRooms live rooms.
var ErrTooManyRooms = errors.New("too many rooms")

// Directory owns every live Room in the process. One Directory is
// created per server instance; it has no persistent state of its own
// beyond the in-memory registry (rooms persist their own GameState via
// room.Store).
type Directory struct {
	ctx context.Context

	grid   config.GridConfig
	timing config.TimingConfig
	limits config.ResourceLimits
	store  room.Store

	mu    sync.RWMutex
	rooms map[string]*room.Room

	tickHook func(time.Duration)

	wg sync.WaitGroup
}

// New builds an empty Directory. ctx is the parent for every room's
// own cancellation context; cancelling it shuts every room down.
func New(ctx context.Context, grid config.GridConfig, timing config.TimingConfig, limits config.ResourceLimits, store room.Store) *Directory {
	return &Directory{
		ctx:    ctx,
		grid:   grid,
		timing: timing,
		limits: limits,
		store:  store,
		rooms:  make(map[string]*room.Room),
	}
}

// GenerateRoomCode returns a fresh 6-character base36 uppercase code,
// the body of POST /room's {roomCode} response. It does not reserve
// the code; the caller still calls Init to create the room.
func GenerateRoomCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the system entropy source is
		// broken; there is nothing sensible to do but degrade to a
		// fixed code rather than panic mid-request.
		for i := range buf {
			buf[i] = 0
		}
	}
	code := make([]byte, codeLength)
	for i, b := range buf {
		code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(code)
}

// Init creates and starts the Room for code, failing if one already
// exists. Matches POST /init: 200 "OK" on first init, 409 otherwise.
func (d *Directory) Init(code string) error {
	d.mu.Lock()
	if _, exists := d.rooms[code]; exists {
		d.mu.Unlock()
		return ErrAlreadyInitialized
	}
	if d.limits.MaxRooms > 0 && len(d.rooms) >= d.limits.MaxRooms {
		d.mu.Unlock()
		return ErrTooManyRooms
	}

	eventLog := invaders.NewEventLog()
	if err := eventLog.Start(""); err != nil {
		log.Printf("⚠️ Directory: room %s event log disabled: %v", code, err)
	}
	r := room.NewRoom(d.ctx, code, d.grid, d.timing, d.limits, d.store, eventLog)
	if d.tickHook != nil {
		r.SetTickHook(d.tickHook)
	}
	r.SetCleanupHook(func() { d.remove(code) })
	d.rooms[code] = r
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		r.Run()
	}()

	log.Printf("🎮 Directory: room %s initialized", code)
	return nil
}

// remove drops a room's registry entry once it has deleted itself
// after its empty-room cleanup deadline, so a later /init of the same
// code starts a fresh room instead of hitting 409 forever.
func (d *Directory) remove(code string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.rooms, code)
	log.Printf("🧹 Directory: room %s removed after idle cleanup", code)
}

// Lookup returns the Room for code, or ok=false if no room has been
// initialized with that code (the 404 invalid_room case).
func (d *Directory) Lookup(code string) (*room.Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rooms[code]
	return r, ok
}

// Info mirrors GET /info: {roomCode, playerCount, status}, or
// ok=false if the room was never initialized.
func (d *Directory) Info(code string) (room.Info, bool) {
	r, ok := d.Lookup(code)
	if !ok {
		return room.Info{}, false
	}
	return r.Info(), true
}

// Upgrade routes a websocket upgrade request to the room matching
// code, translating an unknown code into invalid_room.
func (d *Directory) Upgrade(code string, conn room.Conn) (string, error) {
	r, ok := d.Lookup(code)
	if !ok {
		return "", protocol.NewUpgradeError(protocol.ErrInvalidRoom, "no such room")
	}
	return r.Upgrade(conn)
}

// OnClose/OnMessage pass through to the identified room's single
// goroutine; callers look the room up once via Lookup and hang onto
// that *room.Room, with the connection id its Upgrade returns, for the
// life of the connection.

// Shutdown cancels every room's context and waits for their goroutines
// to exit, using an errgroup so a panicking room doesn't block the
// others from being asked to stop.
func (d *Directory) Shutdown() {
	d.mu.RLock()
	rooms := make([]*room.Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.RUnlock()

	var g errgroup.Group
	for _, r := range rooms {
		r := r
		g.Go(func() error {
			r.Shutdown()
			return nil
		})
	}
	_ = g.Wait()
	d.wg.Wait()
}

// Count returns the number of currently registered rooms, used by the
// observability gauges.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

// SetTickHook installs a callback invoked with the wall-clock duration
// of every room's every reducer tick, fed to every room created from
// this point forward (and any still to come from Init). Call once,
// before serving traffic.
func (d *Directory) SetTickHook(f func(time.Duration)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tickHook = f
}

// EventLogStats sums every live room's event log counters, for a
// periodic metrics poll rather than a push from inside the game loop.
func (d *Directory) EventLogStats() (total, dropped uint64) {
	d.mu.RLock()
	rooms := make([]*room.Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.RUnlock()

	for _, r := range rooms {
		stats := r.EventLogStats()
		if stats == nil {
			continue
		}
		if t, ok := stats["total"].(uint64); ok {
			total += t
		}
		if dr, ok := stats["dropped"].(uint64); ok {
			dropped += dr
		}
	}
	return total, dropped
}
