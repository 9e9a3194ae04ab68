package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/soullock/tracker-server/pkg/document"
	"github.com/soullock/tracker-server/internal/room"
	"github.com/soullock/tracker-server/internal/store"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, store.NewMemoryStore(), zap.NewNop())
}

func TestHub_Ensure_Get_SamePointer(t *testing.T) {
	h := newTestHub(t)
	reply := make(chan *room.Room, 1)

	initial := document.NewInitialState(time.Now())
	h.Inbox() <- EnsureRoom{RoomID: "ab12cd34", Initial: initial, Reply: reply}
	rm1 := <-reply

	h.Inbox() <- GetRoom{RoomID: "ab12cd34", Reply: reply}
	rm2 := <-reply

	if rm1 == nil || rm2 == nil || rm1 != rm2 {
		t.Fatalf("expected same room pointer")
	}
}

func TestHub_GetUnknownRoomIsNil(t *testing.T) {
	h := newTestHub(t)
	reply := make(chan *room.Room, 1)

	h.Inbox() <- GetRoom{RoomID: "missing", Reply: reply}
	assert.Nil(t, <-reply)
}

func TestHub_SweepRetiresEmptyRooms(t *testing.T) {
	h := newTestHub(t)
	reply := make(chan *room.Room, 1)

	h.Inbox() <- EnsureRoom{RoomID: "empty", Initial: document.NewInitialState(time.Now()), Reply: reply}
	empty := <-reply

	h.Inbox() <- EnsureRoom{RoomID: "busy", Initial: document.NewInitialState(time.Now()), Reply: reply}
	busy := <-reply

	out := make(chan room.Outbound, 2)
	busy.Inbox() <- room.Join{ClientID: "c1", Outbox: out}
	select {
	case <-out:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for init")
	}

	h.Inbox() <- SweepIdle{}

	h.Inbox() <- GetRoom{RoomID: "empty", Reply: reply}
	assert.Nil(t, <-reply)

	h.Inbox() <- GetRoom{RoomID: "busy", Reply: reply}
	require.Equal(t, busy, <-reply)

	// The retired actor was shut down, not leaked.
	view := make(chan room.View, 1)
	empty.Inbox() <- room.GetView{Reply: view}
	select {
	case <-view:
		t.Fatalf("expected retired room loop to be stopped")
	case <-time.After(150 * time.Millisecond):
	}
}
