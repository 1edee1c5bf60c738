package room

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"space-invaders-server/internal/config"
	"space-invaders-server/internal/invaders"
	"space-invaders-server/internal/protocol"
)

// fakeConn captures every message written to it on a buffered channel,
// standing in for a real websocket connection.
type fakeConn struct {
	sent   chan interface{}
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{sent: make(chan interface{}, 256)}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	select {
	case c.sent <- v:
	default:
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) drainUntil(t *testing.T, msgType string, timeout time.Duration) map[string]interface{} {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case v := <-c.sent:
			raw, err := json.Marshal(v)
			if err != nil {
				t.Fatalf("marshal captured message: %v", err)
			}
			var m map[string]interface{}
			if err := json.Unmarshal(raw, &m); err != nil {
				t.Fatalf("unmarshal captured message: %v", err)
			}
			if m["type"] == msgType {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for message type %q", msgType)
		}
	}
}

// testTiming uses a much faster cadence than production so tests don't
// spend real wall-clock time waiting on 30Hz ticks.
func testTiming() config.TimingConfig {
	return config.TimingConfig{
		TickRate:          30,
		TickMs:            5,
		CountdownMs:       5,
		CountdownTicks:    3,
		WipeExitTicks:     2,
		WipeHoldTicks:     2,
		WipeRevealTicks:   2,
		RespawnDelayTicks: 60,
		RoomCleanupDelay:  1,
	}
}

func newTestRoom(t *testing.T) (*Room, func()) {
	t.Helper()
	grid := config.DefaultGrid()
	timing := testTiming()
	limits := config.DefaultLimits()
	store := NewMemoryStore()

	el := invaders.NewEventLog()
	if err := el.Start(""); err != nil {
		t.Fatalf("starting event log: %v", err)
	}

	r := NewRoom(context.Background(), "TEST01", grid, timing, limits, store, el)
	go r.Run()

	return r, func() { r.Shutdown() }
}

func sendMsg(t *testing.T, r *Room, connID string, env protocol.ClientEnvelope) {
	t.Helper()
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	r.OnMessage(connID, raw)
}

func TestUpgradeAndJoinAssignsPlayer(t *testing.T) {
	r, cleanup := newTestRoom(t)
	defer cleanup()

	conn := newFakeConn()
	connID, err := r.Upgrade(conn)
	if err != nil {
		t.Fatalf("unexpected upgrade error: %v", err)
	}

	sendMsg(t, r, connID, protocol.ClientEnvelope{Type: protocol.MsgJoin, Name: "alice"})

	sync := conn.drainUntil(t, "sync", time.Second)
	if sync["playerId"] == "" || sync["playerId"] == nil {
		t.Fatalf("expected a playerId on the first sync, got %v", sync)
	}
}

func TestJoinRejectsDuplicateName(t *testing.T) {
	r, cleanup := newTestRoom(t)
	defer cleanup()

	conn1 := newFakeConn()
	id1, _ := r.Upgrade(conn1)
	sendMsg(t, r, id1, protocol.ClientEnvelope{Type: protocol.MsgJoin, Name: "alice"})
	conn1.drainUntil(t, "sync", time.Second)

	conn2 := newFakeConn()
	id2, _ := r.Upgrade(conn2)
	sendMsg(t, r, id2, protocol.ClientEnvelope{Type: protocol.MsgJoin, Name: "alice"})

	errMsg := conn2.drainUntil(t, "error", time.Second)
	if errMsg["code"] != string(protocol.ErrNameTaken) {
		t.Fatalf("expected name_taken error, got %v", errMsg)
	}
}

func TestStartSoloTransitionsToWipeHoldThenPlaying(t *testing.T) {
	r, cleanup := newTestRoom(t)
	defer cleanup()

	conn := newFakeConn()
	connID, _ := r.Upgrade(conn)
	sendMsg(t, r, connID, protocol.ClientEnvelope{Type: protocol.MsgJoin, Name: "solo"})
	conn.drainUntil(t, "sync", time.Second)

	sendMsg(t, r, connID, protocol.ClientEnvelope{Type: protocol.MsgStartSolo})

	// Several ticks should carry the room from wipe_hold through
	// wipe_reveal into playing; poll sync messages until we see it.
	deadline := time.After(3 * time.Second)
	for {
		select {
		case raw := <-conn.sent:
			data, _ := json.Marshal(raw)
			var m map[string]interface{}
			json.Unmarshal(data, &m)
			if m["type"] != "sync" {
				continue
			}
			state, ok := m["state"].(map[string]interface{})
			if !ok {
				continue
			}
			if state["status"] == "playing" {
				return
			}
		case <-deadline:
			t.Fatal("room never reached playing status")
		}
	}
}

func TestRoomFullRejectsUpgrade(t *testing.T) {
	grid := config.DefaultGrid()
	timing := testTiming()
	limits := config.DefaultLimits()
	limits.MaxPlayersPerRoom = 1
	store := NewMemoryStore()
	el := invaders.NewEventLog()
	if err := el.Start(""); err != nil {
		t.Fatalf("starting event log: %v", err)
	}
	r := NewRoom(context.Background(), "TESTFULL", grid, timing, limits, store, el)
	go r.Run()
	defer r.Shutdown()

	conn1 := newFakeConn()
	if _, err := r.Upgrade(conn1); err != nil {
		t.Fatalf("first upgrade should succeed: %v", err)
	}

	conn2 := newFakeConn()
	_, err := r.Upgrade(conn2)
	if err == nil {
		t.Fatal("expected room_full error on second upgrade")
	}
	ue, ok := err.(*protocol.UpgradeError)
	if !ok || ue.Code != protocol.ErrRoomFull {
		t.Fatalf("expected room_full upgrade error, got %v", err)
	}
}

func TestDisconnectRemovesPlayerAndBroadcasts(t *testing.T) {
	r, cleanup := newTestRoom(t)
	defer cleanup()

	conn1 := newFakeConn()
	id1, _ := r.Upgrade(conn1)
	sendMsg(t, r, id1, protocol.ClientEnvelope{Type: protocol.MsgJoin, Name: "alice"})
	conn1.drainUntil(t, "sync", time.Second)

	conn2 := newFakeConn()
	id2, _ := r.Upgrade(conn2)
	sendMsg(t, r, id2, protocol.ClientEnvelope{Type: protocol.MsgJoin, Name: "bob"})
	conn2.drainUntil(t, "sync", time.Second)
	conn2.drainUntil(t, "event", time.Second) // bob's own player_joined broadcast
	conn1.drainUntil(t, "sync", time.Second) // the sync closing alice's own join broadcast

	r.OnClose(id1)

	evt := conn2.drainUntil(t, "event", time.Second)
	if evt["name"] != "player_left" {
		t.Fatalf("expected player_left event, got %v", evt)
	}
}

func TestInfoReflectsPlayerCount(t *testing.T) {
	r, cleanup := newTestRoom(t)
	defer cleanup()

	conn := newFakeConn()
	connID, _ := r.Upgrade(conn)
	sendMsg(t, r, connID, protocol.ClientEnvelope{Type: protocol.MsgJoin, Name: "alice"})
	conn.drainUntil(t, "sync", time.Second)

	info := r.Info()
	if info.PlayerCount != 1 {
		t.Fatalf("expected playerCount 1, got %d", info.PlayerCount)
	}
	if info.RoomCode != "TEST01" {
		t.Fatalf("expected room code TEST01, got %s", info.RoomCode)
	}
}

func TestNewRoomRestoresPersistedState(t *testing.T) {
	grid := config.DefaultGrid()
	timing := testTiming()
	limits := config.DefaultLimits()
	store := NewMemoryStore()

	saved := invaders.NewGameState("RESTORE", grid, 99)
	saved.Wave = 4
	saved.Score = 1234
	saved.Status = invaders.StatusWaiting
	store.Save("RESTORE", PersistedRoom{State: saved, NextEntityID: 42})

	el := invaders.NewEventLog()
	if err := el.Start(""); err != nil {
		t.Fatalf("starting event log: %v", err)
	}
	r := NewRoom(context.Background(), "RESTORE", grid, timing, limits, store, el)
	defer el.Stop()
	defer r.limiter.Stop()

	// NewRoom's state is only handed to the Run goroutine afterwards, so
	// reading it here (before starting Run) needs no synchronization.
	if r.state.Wave != 4 || r.state.Score != 1234 {
		t.Fatalf("expected restored wave/score, got wave=%d score=%d", r.state.Wave, r.state.Score)
	}
	if r.nextEntityID != 42 {
		t.Fatalf("expected restored nextEntityID 42, got %d", r.nextEntityID)
	}
}

func TestCanAcceptRejectsFullRoomWithoutRegistering(t *testing.T) {
	grid := config.DefaultGrid()
	timing := testTiming()
	limits := config.DefaultLimits()
	limits.MaxPlayersPerRoom = 1
	store := NewMemoryStore()
	el := invaders.NewEventLog()
	if err := el.Start(""); err != nil {
		t.Fatalf("starting event log: %v", err)
	}
	r := NewRoom(context.Background(), "TESTCANACCEPT", grid, timing, limits, store, el)
	go r.Run()
	defer r.Shutdown()

	if err := r.CanAccept(); err != nil {
		t.Fatalf("expected room to accept first connection, got %v", err)
	}

	conn1 := newFakeConn()
	if _, err := r.Upgrade(conn1); err != nil {
		t.Fatalf("first upgrade should succeed: %v", err)
	}

	err := r.CanAccept()
	if err == nil {
		t.Fatal("expected room_full from CanAccept after the room filled up")
	}
	ue, ok := err.(*protocol.UpgradeError)
	if !ok || ue.Code != protocol.ErrRoomFull {
		t.Fatalf("expected room_full upgrade error, got %v", err)
	}
}

func TestPingReceivesPong(t *testing.T) {
	r, cleanup := newTestRoom(t)
	defer cleanup()

	conn := newFakeConn()
	connID, _ := r.Upgrade(conn)
	sendMsg(t, r, connID, protocol.ClientEnvelope{Type: protocol.MsgPing})

	pong := conn.drainUntil(t, "pong", time.Second)
	if _, ok := pong["serverTime"]; !ok {
		t.Fatalf("expected serverTime on pong, got %v", pong)
	}
}
