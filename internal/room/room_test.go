package room

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/soullock/tracker-server/pkg/document"
	"github.com/soullock/tracker-server/internal/store"
)

// helper: receive one outbound with a timeout so tests never hang
func recvOutbound(t *testing.T, ch <-chan Outbound, within time.Duration) Outbound {
	t.Helper()
	select {
	case out, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return out
	case <-time.After(within):
		t.Fatalf("timed out waiting for outbound")
		return nil // unreachable
	}
}

func recvNoOutbound(t *testing.T, ch <-chan Outbound, within time.Duration) {
	t.Helper()
	select {
	case out, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no outbound within %v, but got: %+v", within, out)
	case <-time.After(within):
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func newTestRoom(t *testing.T, st store.Store) *Room {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	initial := document.NewInitialState(time.Now())
	if st == nil {
		mem := store.NewMemoryStore()
		require.NoError(t, mem.CreateRoom(ctx, "ab12cd34", initial))
		st = mem
	}
	return New(ctx, "ab12cd34", initial, st, zap.NewNop())
}

func join(t *testing.T, r *Room, clientID string, buffer int) chan Outbound {
	t.Helper()
	out := make(chan Outbound, buffer)
	r.Inbox() <- Join{ClientID: clientID, Outbox: out}
	return out
}

func TestRoom_JoinReceivesInitSnapshot(t *testing.T) {
	r := newTestRoom(t, nil)

	out := join(t, r, "c1", 2)
	first := recvOutbound(t, out, 100*time.Millisecond)

	init, ok := first.(Init)
	require.True(t, ok, "expected Init, got %T", first)
	assert.Equal(t, "ab12cd34", init.RoomID)
	assert.Equal(t, document.DefaultRoomName, init.State.Name)
}

func TestRoom_SyncBroadcastsToOthersNotSender(t *testing.T) {
	r := newTestRoom(t, nil)

	a := join(t, r, "a", 4)
	b := join(t, r, "b", 4)
	c := join(t, r, "c", 4)
	_ = recvOutbound(t, a, 100*time.Millisecond)
	_ = recvOutbound(t, b, 100*time.Millisecond)
	_ = recvOutbound(t, c, 100*time.Millisecond)

	r.Inbox() <- SyncState{ClientID: "a", Payload: map[string]any{
		"name": "Hoenn Run",
		"players": []any{
			map[string]any{"id": "p1", "name": "Ash"},
		},
	}}

	for _, out := range []chan Outbound{b, c} {
		got := recvOutbound(t, out, 200*time.Millisecond)
		updated, ok := got.(StateUpdated)
		require.True(t, ok, "expected StateUpdated, got %T", got)
		assert.Equal(t, "Hoenn Run", updated.State.Name)
		require.Len(t, updated.State.Players, 1)
		assert.Equal(t, "p1", updated.State.Players[0].ID)
		assert.Equal(t, "Ash", updated.State.Players[0].Name)
		assert.Nil(t, updated.State.Players[0].LockedBy)
	}

	recvNoOutbound(t, a, 150*time.Millisecond)
}

func TestRoom_SyncPersistsToStore(t *testing.T) {
	mem := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, mem.CreateRoom(ctx, "ab12cd34", document.NewInitialState(time.Now())))
	r := newTestRoom(t, mem)

	a := join(t, r, "a", 2)
	_ = recvOutbound(t, a, 100*time.Millisecond)

	r.Inbox() <- SyncState{ClientID: "a", Payload: map[string]any{"name": "Persisted Run"}}

	reply := make(chan View, 1)
	r.Inbox() <- GetView{Reply: reply}
	view := recvView(t, reply, 200*time.Millisecond)
	assert.Equal(t, "Persisted Run", view.State.Name)

	stored, err := mem.GetRoom(ctx, "ab12cd34")
	require.NoError(t, err)
	assert.Equal(t, "Persisted Run", stored.Name)
}

func TestRoom_OrderingAcrossSenders(t *testing.T) {
	r := newTestRoom(t, nil)

	a := join(t, r, "a", 4)
	b := join(t, r, "b", 4)
	observer := join(t, r, "obs", 4)
	_ = recvOutbound(t, a, 100*time.Millisecond)
	_ = recvOutbound(t, b, 100*time.Millisecond)
	_ = recvOutbound(t, observer, 100*time.Millisecond)

	r.Inbox() <- SyncState{ClientID: "a", Payload: map[string]any{"name": "Alpha"}}
	r.Inbox() <- SyncState{ClientID: "b", Payload: map[string]any{"name": "Beta"}}

	first := recvOutbound(t, observer, 200*time.Millisecond).(StateUpdated)
	second := recvOutbound(t, observer, 200*time.Millisecond).(StateUpdated)
	assert.Equal(t, "Alpha", first.State.Name)
	assert.Equal(t, "Beta", second.State.Name)

	reply := make(chan View, 1)
	r.Inbox() <- GetView{Reply: reply}
	assert.Equal(t, "Beta", recvView(t, reply, 200*time.Millisecond).State.Name)
}

// failOnceStore rejects writes while tripped.
type failOnceStore struct {
	*store.MemoryStore
	failing bool
}

func (s *failOnceStore) ReplaceState(ctx context.Context, roomID string, state document.State) error {
	if s.failing {
		return errors.New("store unreachable")
	}
	return s.MemoryStore.ReplaceState(ctx, roomID, state)
}

func TestRoom_PersistFailureIsSenderOnlyAndStateNotAdvanced(t *testing.T) {
	mem := store.NewMemoryStore()
	require.NoError(t, mem.CreateRoom(context.Background(), "ab12cd34", document.NewInitialState(time.Now())))
	failing := &failOnceStore{MemoryStore: mem, failing: true}
	r := newTestRoom(t, failing)

	a := join(t, r, "a", 4)
	b := join(t, r, "b", 4)
	_ = recvOutbound(t, a, 100*time.Millisecond)
	_ = recvOutbound(t, b, 100*time.Millisecond)

	r.Inbox() <- SyncState{ClientID: "a", Payload: map[string]any{"name": "Doomed"}}

	got := recvOutbound(t, a, 200*time.Millisecond)
	_, ok := got.(SyncFailed)
	require.True(t, ok, "expected SyncFailed, got %T", got)
	recvNoOutbound(t, b, 150*time.Millisecond)

	// The failed write must not leave a half-applied document behind.
	reply := make(chan View, 1)
	r.Inbox() <- GetView{Reply: reply}
	assert.Equal(t, document.DefaultRoomName, recvView(t, reply, 200*time.Millisecond).State.Name)

	// A later successful write starts from the last persisted state.
	failing.failing = false
	r.Inbox() <- SyncState{ClientID: "a", Payload: map[string]any{"name": "Recovered"}}
	updated := recvOutbound(t, b, 200*time.Millisecond).(StateUpdated)
	assert.Equal(t, "Recovered", updated.State.Name)
}

func TestRoom_FreshJoinSeesLatestDocument(t *testing.T) {
	r := newTestRoom(t, nil)

	a := join(t, r, "a", 4)
	_ = recvOutbound(t, a, 100*time.Millisecond)

	r.Inbox() <- SyncState{ClientID: "a", Payload: map[string]any{"name": "First"}}
	r.Inbox() <- SyncState{ClientID: "a", Payload: map[string]any{"name": "Second"}}

	late := join(t, r, "late", 2)
	init := recvOutbound(t, late, 200*time.Millisecond).(Init)
	assert.Equal(t, "Second", init.State.Name)
}

func TestRoom_DropSlowClient(t *testing.T) {
	r := newTestRoom(t, nil)

	// Buffer of 1 is consumed by the join snapshot; the broadcast below
	// cannot be delivered and the client is dropped.
	slow := join(t, r, "slow", 1)
	_ = slow

	fast := join(t, r, "fast", 4)
	_ = recvOutbound(t, fast, 100*time.Millisecond)

	r.Inbox() <- SyncState{ClientID: "fast", Payload: map[string]any{"name": "Push"}}

	reply := make(chan View, 1)
	r.Inbox() <- GetView{Reply: reply}
	view := recvView(t, reply, 200*time.Millisecond)
	assert.Equal(t, 1, view.NumClients)
}

func TestRoom_ShutdownClosesOutboxes(t *testing.T) {
	r := newTestRoom(t, nil)

	out := join(t, r, "c1", 2)
	_ = recvOutbound(t, out, 100*time.Millisecond)

	r.Inbox() <- Shutdown{}

	select {
	case _, ok := <-out:
		assert.False(t, ok, "outbox should be closed")
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("outbox not closed after shutdown")
	}
}
