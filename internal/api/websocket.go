package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"space-invaders-server/internal/protocol"
	"space-invaders-server/internal/room"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if IsAllowedOrigin(origin) {
			return true
		}
		log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
		RecordConnectionRejected("origin")
		return false
	},
}

// wsConn adapts a gorilla *websocket.Conn to room.Conn. The room
// goroutine is the sole writer, so WriteJSON here is never called
// concurrently with itself.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteJSON(v interface{}) error {
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// handleRoomWebSocket implements the `/room/{code}/ws` upgrade:
// accept or reject per room.Upgrade, then pump inbound frames to the
// room until the socket closes.
func (h *roomHandlers) handleRoomWebSocket(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	ip := GetClientIP(r)
	if !h.gate.AcquireSocket(ip) {
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	rm, ok := h.dir.Lookup(code)
	if !ok {
		h.gate.ReleaseSocket(ip)
		writeUpgradeError(w, protocol.NewUpgradeError(protocol.ErrInvalidRoom, "no such room"))
		return
	}

	// Reject room_full/game_in_progress as a plain HTTP response before
	// the protocol switch: once upgrader.Upgrade writes its 101, there
	// is no way to report a 409/429 to this request any other way.
	if err := rm.CanAccept(); err != nil {
		h.gate.ReleaseSocket(ip)
		if ue, ok := err.(*protocol.UpgradeError); ok {
			writeUpgradeError(w, ue)
		} else {
			writeUpgradeError(w, protocol.NewUpgradeError(protocol.ErrInvalidRoom, err.Error()))
		}
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.gate.ReleaseSocket(ip)
		log.Printf("⚠️ WebSocket upgrade error: %v", err)
		return
	}
	wc := &wsConn{conn: conn}

	connID, err := rm.Upgrade(wc)
	if err != nil {
		wc.WriteJSON(upgradeErrorBody(err))
		conn.Close()
		h.gate.ReleaseSocket(ip)
		return
	}

	UpdateWSConnections(1)
	defer func() {
		h.gate.ReleaseSocket(ip)
		UpdateWSConnections(-1)
	}()

	defer rm.OnClose(connID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		IncrementWSMessages()
		rm.OnMessage(connID, message)
	}
}

func upgradeErrorBody(err error) map[string]string {
	if ue, ok := err.(*protocol.UpgradeError); ok {
		return map[string]string{"code": string(ue.Code), "message": ue.Message}
	}
	return map[string]string{"code": "invalid_room", "message": err.Error()}
}

func writeUpgradeError(w http.ResponseWriter, err *protocol.UpgradeError) {
	status := http.StatusNotFound
	switch err.Code {
	case protocol.ErrGameInProgress, protocol.ErrCountdownInProgress:
		status = http.StatusConflict
	case protocol.ErrRoomFull:
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, upgradeErrorBody(err))
}

var _ room.Conn = (*wsConn)(nil)
