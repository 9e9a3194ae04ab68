// Package hub is the process-scoped registry of live room actors. It is
// rebuilt from nothing on restart; clients reconnect and re-subscribe.
package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/soullock/tracker-server/internal/room"
	"github.com/soullock/tracker-server/internal/store"
	"github.com/soullock/tracker-server/pkg/document"
)

type HubMsg interface{ isHubMsg() }

// EnsureRoom returns the live actor for a room, starting one from the
// given initial document if none is running.
type EnsureRoom struct {
	RoomID  string
	Initial document.State // only used if creation happens
	Reply   chan *room.Room
}

type GetRoom struct {
	RoomID string
	Reply  chan *room.Room
}

type RemoveRoom struct {
	RoomID string
}

// SweepIdle retires actors with zero connected clients so empty entries
// do not accumulate.
type SweepIdle struct{}

type ShutdownHub struct{}

func (EnsureRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (SweepIdle) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	store  store.Store
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, st store.Store, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		store:  st,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				if rm := h.rooms[msg.RoomID]; rm != nil {
					msg.Reply <- rm
					break
				}
				rm := room.New(h.ctx, msg.RoomID, msg.Initial, h.store, h.log)
				h.rooms[msg.RoomID] = rm
				msg.Reply <- rm

			case GetRoom:
				msg.Reply <- h.rooms[msg.RoomID] // May be nil

			case RemoveRoom:
				if rm := h.rooms[msg.RoomID]; rm != nil {
					rm.Inbox() <- room.Shutdown{}
					delete(h.rooms, msg.RoomID)
				}

			case SweepIdle:
				h.sweepIdle()

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) sweepIdle() {
	for id, rm := range h.rooms {
		reply := make(chan room.View, 1)
		rm.Inbox() <- room.GetView{Reply: reply}
		select {
		case view := <-reply:
			if view.NumClients == 0 {
				rm.Inbox() <- room.Shutdown{}
				delete(h.rooms, id)
				h.log.Debug("retired idle room", zap.String("room", id))
			}
		case <-time.After(time.Second):
			// Room is busy persisting; leave it for the next sweep.
		}
	}
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		rm.Inbox() <- room.Shutdown{}
	}
	clear(h.rooms)
	h.cancel()
}
