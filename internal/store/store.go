// Package store is the durable Room Registry: one persisted document per
// room id, replaced wholesale on every accepted sync.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/soullock/tracker-server/pkg/document"
)

// ErrNotFound is returned when no room exists for the requested id.
var ErrNotFound = errors.New("room not found")

// Store persists room documents. ReplaceState overwrites unconditionally;
// the last writer to reach the store wins, which is the documented
// consistency model.
type Store interface {
	CreateRoom(ctx context.Context, roomID string, state document.State) error
	GetRoom(ctx context.Context, roomID string) (document.State, error)
	ReplaceState(ctx context.Context, roomID string, state document.State) error
}

// NewRoomID returns a short shareable room id: the first segment of a v4
// uuid, 8 hex chars. Collisions are negligible at this scale and creation
// fails loudly if one ever lands.
func NewRoomID() string {
	return uuid.NewString()[:8]
}
