package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soullock/tracker-server/pkg/document"
)

func TestMemoryStore_CreateGetReplace(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.UnixMilli(1700000000000)

	initial := document.NewInitialState(now)
	require.NoError(t, s.CreateRoom(ctx, "ab12cd34", initial))

	got, err := s.GetRoom(ctx, "ab12cd34")
	require.NoError(t, err)
	assert.Equal(t, document.DefaultRoomName, got.Name)
	assert.Equal(t, initial.CreatedAt, got.CreatedAt)

	next := got
	next.Name = "Hoenn Run"
	require.NoError(t, s.ReplaceState(ctx, "ab12cd34", next))

	got, err = s.GetRoom(ctx, "ab12cd34")
	require.NoError(t, err)
	assert.Equal(t, "Hoenn Run", got.Name)
}

func TestMemoryStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetRoom(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.ReplaceState(ctx, "missing", document.NewInitialState(time.Now()))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DuplicateCreateFails(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	state := document.NewInitialState(time.Now())

	require.NoError(t, s.CreateRoom(ctx, "ab12cd34", state))
	assert.Error(t, s.CreateRoom(ctx, "ab12cd34", state))
}

func TestNewRoomID_ShortHex(t *testing.T) {
	id := NewRoomID()
	require.Len(t, id, 8)
	for _, r := range id {
		assert.Contains(t, "0123456789abcdef", string(r))
	}
}
