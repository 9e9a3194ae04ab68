// Package ws runs the realtime connection: admission by room id, init
// snapshot, sync/heartbeat handling, and fan-out of room broadcasts.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soullock/tracker-server/internal/hub"
	"github.com/soullock/tracker-server/internal/protocol"
	"github.com/soullock/tracker-server/internal/room"
	"github.com/soullock/tracker-server/internal/store"
)

const (
	writeTimeout = 3 * time.Second
	readTimeout  = 60 * time.Second // heartbeat interval is 25s, so two misses kill the read
)

func Handler(h *hub.Hub, st store.Store, log *zap.Logger, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		roomID := r.URL.Query().Get("roomId")
		if roomID == "" {
			send(r.Context(), conn, protocol.Error(protocol.ErrRoomNotFound, "Room does not exist."))
			conn.Close(websocket.StatusPolicyViolation, "room not found")
			return
		}

		// Admission: the room id is the only check. The stored document is
		// read through the registry's defensive decode, so records written
		// by older policy versions come back canonical.
		stored, err := st.GetRoom(r.Context(), roomID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				send(r.Context(), conn, protocol.Error(protocol.ErrRoomNotFound, "Room does not exist."))
				conn.Close(websocket.StatusPolicyViolation, "room not found")
				return
			}
			log.Error("room lookup failed", zap.String("room", roomID), zap.Error(err))
			send(r.Context(), conn, protocol.Error(protocol.ErrInternal, "The server encountered an error."))
			conn.Close(websocket.StatusInternalError, "internal error")
			return
		}

		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.EnsureRoom{RoomID: roomID, Initial: stored, Reply: reply}
		rm := <-reply

		out := make(chan room.Outbound, 8)
		clientID := uuid.NewString()

		rm.Inbox() <- room.Join{ClientID: clientID, Outbox: out}
		defer func() { rm.Inbox() <- room.Leave{ClientID: clientID} }()

		log.Info("client joined room", zap.String("room", roomID), zap.String("client", clientID))

		// Writer goroutine: drains the room outbox until Leave (or a slow
		// drop) closes it.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for ev := range out {
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				send(ctx, conn, toServerMessage(ev))
				cancel()
			}
		}()

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				// Otherwise, just exit (room.Leave in defer):
				return
			}

			var cm protocol.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil || cm.Type == "" {
				send(r.Context(), conn, protocol.Error(protocol.ErrInvalidMessage, "Messages must be valid JSON with a type field."))
				continue
			}

			switch cm.Type {
			case protocol.TypeSyncState:
				var payload any
				if err := json.Unmarshal(cm.Payload, &payload); err != nil {
					continue
				}
				if _, ok := payload.(map[string]any); !ok {
					// The sync unit is always a full document object.
					continue
				}
				rm.Inbox() <- room.SyncState{ClientID: clientID, Payload: payload}

			case protocol.TypePing:
				send(r.Context(), conn, protocol.Pong(time.Now().UnixMilli()))

			default:
				send(r.Context(), conn, protocol.Error(protocol.ErrUnsupportedType,
					fmt.Sprintf("Unsupported message type: %s", cm.Type)))
			}
		}
	}
}

func toServerMessage(ev room.Outbound) protocol.ServerMessage {
	switch e := ev.(type) {
	case room.Init:
		return protocol.Init(e.RoomID, e.State)
	case room.StateUpdated:
		return protocol.StateUpdated(e.State)
	case room.SyncFailed:
		return protocol.Error(protocol.ErrInternal, e.Message)
	default:
		return protocol.Error(protocol.ErrInternal, "The server encountered an error.")
	}
}

func send(ctx context.Context, conn *websocket.Conn, msg protocol.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
