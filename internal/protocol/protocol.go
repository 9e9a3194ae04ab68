// Package protocol defines the wire messages exchanged over the realtime
// channel. The envelope is {type, payload?, error?, message?, at?}.
package protocol

import (
	"encoding/json"

	"github.com/soullock/tracker-server/pkg/document"
)

// Client → server.
const (
	TypeSyncState = "sync_state"
	TypePing      = "ping"
)

// Server → client.
const (
	TypeInit         = "init"
	TypeStateUpdated = "state_updated"
	TypeError        = "error"
	TypePong         = "pong"
)

// Error kinds carried in the envelope's error field.
const (
	ErrRoomNotFound    = "room_not_found"
	ErrInvalidMessage  = "invalid_message"
	ErrUnsupportedType = "unsupported_type"
	ErrInternal        = "internal_error"
)

type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	At      int64  `json:"at,omitempty"`
}

// InitPayload is what a freshly joined connection receives.
type InitPayload struct {
	RoomID string         `json:"roomId"`
	State  document.State `json:"state"`
}

func Init(roomID string, state document.State) ServerMessage {
	return ServerMessage{Type: TypeInit, Payload: InitPayload{RoomID: roomID, State: state}}
}

func StateUpdated(state document.State) ServerMessage {
	return ServerMessage{Type: TypeStateUpdated, Payload: state}
}

func Error(kind, message string) ServerMessage {
	return ServerMessage{Type: TypeError, Error: kind, Message: message}
}

func Pong(atMillis int64) ServerMessage {
	return ServerMessage{Type: TypePong, At: atMillis}
}
