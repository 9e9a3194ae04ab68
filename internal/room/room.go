// Package room runs one goroutine per live room. The actor owns the
// room's in-memory current document and serializes every mutation:
// sanitize, persist, adopt, broadcast run to completion before the next
// message is handled, which gives the per-room total order.
package room

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/soullock/tracker-server/internal/store"
	"github.com/soullock/tracker-server/pkg/document"
)

const persistTimeout = 5 * time.Second

type Msg interface{ isRoomMsg() }

// Join registers a connection and immediately replies with an Init
// snapshot on its outbox.
type Join struct {
	ClientID string
	Outbox   chan Outbound
}

func (Join) isRoomMsg() {}

type Leave struct{ ClientID string }

func (Leave) isRoomMsg() {}

// SyncState carries a full candidate document decoded from JSON. ClientID
// identifies the sender so the resulting broadcast can exclude it.
type SyncState struct {
	ClientID string
	Payload  any
}

func (SyncState) isRoomMsg() {}

type GetView struct {
	Reply chan View
}

func (GetView) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// Outbound is what connections receive on their outbox.
type Outbound interface{ isOutbound() }

type Init struct {
	RoomID string
	State  document.State
}

func (Init) isOutbound() {}

type StateUpdated struct {
	State document.State
}

func (StateUpdated) isOutbound() {}

// SyncFailed goes to the sender alone when its write could not be
// persisted. The connection survives; the write is dropped.
type SyncFailed struct {
	Message string
}

func (SyncFailed) isOutbound() {}

type View struct {
	NumClients int
	State      document.State
}

type Room struct {
	id      string
	inbox   chan Msg
	state   document.State
	clients map[string]chan Outbound
	store   store.Store
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(parent context.Context, id string, initial document.State, st store.Store, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		id:      id,
		inbox:   make(chan Msg, 64),
		state:   initial,
		clients: make(map[string]chan Outbound),
		store:   st,
		log:     log.With(zap.String("room", id)),
		ctx:     ctx,
		cancel:  cancel,
	}

	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.clients[msg.ClientID] = msg.Outbox
				r.sendTo(msg.ClientID, Init{RoomID: r.id, State: r.state})

			case Leave:
				// Closing the outbox lets the connection's writer
				// goroutine exit.
				if ch, ok := r.clients[msg.ClientID]; ok {
					close(ch)
					delete(r.clients, msg.ClientID)
				}

			case SyncState:
				r.handleSync(msg)

			case GetView:
				msg.Reply <- View{NumClients: len(r.clients), State: r.state}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

// handleSync blocks the room, not the process: other rooms keep handling
// messages while this one's persistence write is in flight, and a second
// sync for this room queues behind it on the inbox.
func (r *Room) handleSync(msg SyncState) {
	next := document.Sanitize(msg.Payload, &r.state, time.Now())

	ctx, cancel := context.WithTimeout(r.ctx, persistTimeout)
	err := r.store.ReplaceState(ctx, r.id, next)
	cancel()
	if err != nil {
		// The in-memory document is not advanced, so a later successful
		// write starts from the last state that actually persisted.
		r.log.Error("failed to persist room state", zap.Error(err))
		r.sendTo(msg.ClientID, SyncFailed{Message: "Failed to save room state."})
		return
	}

	r.state = next
	r.broadcast(StateUpdated{State: next}, msg.ClientID)
}

func (r *Room) shutdown() {
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
}

// broadcast fans out to every client except the originator. The sender's
// optimistic local copy is already correct; it gets no echo.
func (r *Room) broadcast(out Outbound, except string) {
	for id, ch := range r.clients {
		if id == except {
			continue
		}
		select {
		case ch <- out:
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(r.clients, id)
		}
	}
}

func (r *Room) sendTo(clientID string, out Outbound) {
	ch, ok := r.clients[clientID]
	if !ok {
		return
	}
	select {
	case ch <- out:
	default:
		close(ch)
		delete(r.clients, clientID)
	}
}
