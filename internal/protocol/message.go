// Package protocol defines the websocket wire schema: the 9
// client->server message shapes, the 4 server->client message shapes,
// and their JSON encoding/decoding. All frames are UTF-8 JSON objects
// discriminated by a `type` field.
package protocol

import (
	"encoding/json"
	"fmt"

	"space-invaders-server/internal/invaders"
)

// ClientMessageType enumerates the 9 message shapes a client may send.
type ClientMessageType string

const (
	MsgJoin       ClientMessageType = "join"
	MsgReady      ClientMessageType = "ready"
	MsgUnready    ClientMessageType = "unready"
	MsgStartSolo  ClientMessageType = "start_solo"
	MsgForfeit    ClientMessageType = "forfeit"
	MsgInput      ClientMessageType = "input"
	MsgMove       ClientMessageType = "move"
	MsgShoot      ClientMessageType = "shoot"
	MsgPing       ClientMessageType = "ping"
)

// ClientEnvelope is the outer shape every inbound frame is first
// decoded into; fields not relevant to Type are left at zero value.
type ClientEnvelope struct {
	Type      ClientMessageType    `json:"type"`
	Name      string               `json:"name,omitempty"`
	Held      *invaders.InputState `json:"held,omitempty"`
	Direction string               `json:"direction,omitempty"`
}

// DecodeClientMessage parses one inbound frame. A JSON syntax error or
// an unrecognized Type is a protocol error: the caller responds with
// error{invalid_message} and keeps the connection open.
func DecodeClientMessage(raw []byte) (ClientEnvelope, error) {
	var env ClientEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ClientEnvelope{}, fmt.Errorf("malformed frame: %w", err)
	}
	switch env.Type {
	case MsgJoin, MsgReady, MsgUnready, MsgStartSolo, MsgForfeit, MsgInput, MsgMove, MsgShoot, MsgPing:
		return env, nil
	default:
		return ClientEnvelope{}, fmt.Errorf("unknown message type %q", env.Type)
	}
}

// ServerMessageType enumerates the 4 message shapes the server sends.
type ServerMessageType string

const (
	MsgSync  ServerMessageType = "sync"
	MsgEvent ServerMessageType = "event"
	MsgPong  ServerMessageType = "pong"
	MsgError ServerMessageType = "error"
)

// SyncMessage carries a full state snapshot. PlayerID and Config are
// only populated on the first sync sent to a given connection; every
// later sync on the same connection omits both and the client relies
// on its cached copy.
type SyncMessage struct {
	Type     ServerMessageType      `json:"type"`
	State    invaders.GameState     `json:"state"`
	PlayerID string                 `json:"playerId,omitempty"`
	Config   *invaders.ScaledConfig `json:"config,omitempty"`
}

// NewSyncMessage builds a full (first-sync) payload.
func NewSyncMessage(state invaders.GameState, playerID string, cfg invaders.ScaledConfig) SyncMessage {
	return SyncMessage{Type: MsgSync, State: state, PlayerID: playerID, Config: &cfg}
}

// NewSyncUpdate builds a subsequent sync with no playerId/config.
func NewSyncUpdate(state invaders.GameState) SyncMessage {
	return SyncMessage{Type: MsgSync, State: state}
}

// EventMessage wraps one reducer or dispatch-table event for the wire.
type EventMessage struct {
	Type ServerMessageType  `json:"type"`
	Name invaders.EventName `json:"name"`
	Data interface{}        `json:"data,omitempty"`
}

func NewEventMessage(e invaders.Event) EventMessage {
	return EventMessage{Type: MsgEvent, Name: e.Name, Data: e.Data}
}

// PongMessage replies to a ping with the server's own clock, in
// milliseconds since epoch.
type PongMessage struct {
	Type       ServerMessageType `json:"type"`
	ServerTime int64             `json:"serverTime"`
}

func NewPongMessage(serverTimeMs int64) PongMessage {
	return PongMessage{Type: MsgPong, ServerTime: serverTimeMs}
}

// ErrorMessage surfaces a client-caused error to the originating
// connection only; it never disconnects the client.
type ErrorMessage struct {
	Type    ServerMessageType `json:"type"`
	Code    ErrorCode         `json:"code"`
	Message string            `json:"message"`
}

func NewErrorMessage(code ErrorCode, message string) ErrorMessage {
	return ErrorMessage{Type: MsgError, Code: code, Message: message}
}

// Encode marshals any server message to its wire JSON form.
func Encode(msg interface{}) ([]byte, error) {
	return json.Marshal(msg)
}
