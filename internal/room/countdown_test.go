package room

import (
	"context"
	"testing"
	"time"

	"space-invaders-server/internal/config"
	"space-invaders-server/internal/invaders"
	"space-invaders-server/internal/protocol"
)

// newSlowCountdownRoom builds a room whose countdown ticks at 500ms,
// so a message sent right after the first countdown_tick reliably
// lands while the countdown is still in progress.
func newSlowCountdownRoom(t *testing.T, code string) (*Room, func()) {
	t.Helper()
	grid := config.DefaultGrid()
	timing := testTiming()
	timing.CountdownMs = 500
	limits := config.DefaultLimits()
	el := invaders.NewEventLog()
	if err := el.Start(""); err != nil {
		t.Fatalf("starting event log: %v", err)
	}
	r := NewRoom(context.Background(), code, grid, timing, limits, NewMemoryStore(), el)
	go r.Run()
	return r, func() { r.Shutdown() }
}

// joinTwo connects two named players and drains their initial syncs.
func joinTwo(t *testing.T, r *Room) (conn1, conn2 *fakeConn, id1, id2 string) {
	t.Helper()
	conn1 = newFakeConn()
	id1, err := r.Upgrade(conn1)
	if err != nil {
		t.Fatalf("first upgrade: %v", err)
	}
	sendMsg(t, r, id1, protocol.ClientEnvelope{Type: protocol.MsgJoin, Name: "alice"})
	conn1.drainUntil(t, "sync", time.Second)

	conn2 = newFakeConn()
	id2, err = r.Upgrade(conn2)
	if err != nil {
		t.Fatalf("second upgrade: %v", err)
	}
	sendMsg(t, r, id2, protocol.ClientEnvelope{Type: protocol.MsgJoin, Name: "bob"})
	conn2.drainUntil(t, "sync", time.Second)
	return conn1, conn2, id1, id2
}

func drainEvent(t *testing.T, c *fakeConn, name string, timeout time.Duration) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("timed out waiting for event %q", name)
		}
		m := c.drainUntil(t, "event", remaining)
		if m["name"] == name {
			return m
		}
	}
}

func TestCoopCountdownRunsToGameStart(t *testing.T) {
	r, cleanup := newTestRoom(t)
	defer cleanup()

	conn1, _, id1, id2 := joinTwo(t, r)

	sendMsg(t, r, id1, protocol.ClientEnvelope{Type: protocol.MsgReady})
	drainEvent(t, conn1, "player_ready", time.Second)

	sendMsg(t, r, id2, protocol.ClientEnvelope{Type: protocol.MsgReady})

	tick := drainEvent(t, conn1, "countdown_tick", time.Second)
	data, _ := tick["data"].(map[string]interface{})
	if data == nil || data["count"] != float64(3) {
		t.Fatalf("expected countdown_tick{count:3} first, got %v", tick)
	}

	drainEvent(t, conn1, "game_start", 3*time.Second)

	sync := conn1.drainUntil(t, "sync", time.Second)
	state, _ := sync["state"].(map[string]interface{})
	if state == nil {
		t.Fatalf("expected a state payload on sync, got %v", sync)
	}
	status := state["status"]
	if status != "wipe_hold" && status != "wipe_reveal" && status != "playing" {
		t.Fatalf("expected the game to be underway after game_start, got status %v", status)
	}
}

func TestUnreadyDuringCountdownCancelsIt(t *testing.T) {
	r, cleanup := newSlowCountdownRoom(t, "TESTCX")
	defer cleanup()

	conn1, _, id1, id2 := joinTwo(t, r)

	sendMsg(t, r, id1, protocol.ClientEnvelope{Type: protocol.MsgReady})
	sendMsg(t, r, id2, protocol.ClientEnvelope{Type: protocol.MsgReady})
	drainEvent(t, conn1, "countdown_tick", time.Second)

	sendMsg(t, r, id2, protocol.ClientEnvelope{Type: protocol.MsgUnready})
	drainEvent(t, conn1, "countdown_cancelled", time.Second)

	sync := conn1.drainUntil(t, "sync", time.Second)
	state, _ := sync["state"].(map[string]interface{})
	if state == nil || state["status"] != "waiting" {
		t.Fatalf("expected the room back in waiting after cancel, got %v", sync)
	}
}

func TestJoinDuringCountdownIsRejected(t *testing.T) {
	r, cleanup := newSlowCountdownRoom(t, "TESTCD")
	defer cleanup()

	conn1, _, id1, id2 := joinTwo(t, r)
	sendMsg(t, r, id1, protocol.ClientEnvelope{Type: protocol.MsgReady})
	sendMsg(t, r, id2, protocol.ClientEnvelope{Type: protocol.MsgReady})
	// make sure the countdown is underway before the third client tries
	drainEvent(t, conn1, "countdown_tick", time.Second)

	conn3 := newFakeConn()
	id3, err := r.Upgrade(conn3)
	if err != nil {
		// The upgrade itself may already be rejected once the countdown
		// has begun; that satisfies the same precondition.
		ue, ok := err.(*protocol.UpgradeError)
		if !ok || ue.Code != protocol.ErrCountdownInProgress {
			t.Fatalf("expected countdown_in_progress, got %v", err)
		}
		return
	}

	sendMsg(t, r, id3, protocol.ClientEnvelope{Type: protocol.MsgJoin, Name: "carol"})
	errMsg := conn3.drainUntil(t, "error", time.Second)
	if errMsg["code"] != string(protocol.ErrCountdownInProgress) {
		t.Fatalf("expected countdown_in_progress error, got %v", errMsg)
	}
}

func TestReadyTwiceThenUnreadyIsIdentityOnReadySet(t *testing.T) {
	r, cleanup := newTestRoom(t)
	defer cleanup()

	conn1, _, id1, _ := joinTwo(t, r)

	sendMsg(t, r, id1, protocol.ClientEnvelope{Type: protocol.MsgReady})
	drainEvent(t, conn1, "player_ready", time.Second)
	sendMsg(t, r, id1, protocol.ClientEnvelope{Type: protocol.MsgReady})
	drainEvent(t, conn1, "player_ready", time.Second)

	sendMsg(t, r, id1, protocol.ClientEnvelope{Type: protocol.MsgUnready})
	drainEvent(t, conn1, "player_unready", time.Second)

	sync := conn1.drainUntil(t, "sync", time.Second)
	state, _ := sync["state"].(map[string]interface{})
	if state == nil {
		t.Fatalf("expected a state payload, got %v", sync)
	}
	if ready, ok := state["readyPlayerIds"].([]interface{}); ok && len(ready) != 0 {
		t.Fatalf("expected an empty ready set after unready, got %v", ready)
	}
}
