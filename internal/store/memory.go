package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/soullock/tracker-server/pkg/document"
)

// MemoryStore keeps room records in-process. Used when no database is
// configured and throughout the tests. Records are held as marshalled JSON
// so reads see the same fidelity a database round-trip would give.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string][]byte)}
}

func (s *MemoryStore) CreateRoom(_ context.Context, roomID string, state document.State) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[roomID]; exists {
		return fmt.Errorf("room %s already exists", roomID)
	}
	s.rooms[roomID] = blob
	return nil
}

func (s *MemoryStore) GetRoom(_ context.Context, roomID string) (document.State, error) {
	s.mu.RLock()
	blob, exists := s.rooms[roomID]
	s.mu.RUnlock()

	if !exists {
		return document.State{}, ErrNotFound
	}
	return decodeStoredState(blob), nil
}

func (s *MemoryStore) ReplaceState(_ context.Context, roomID string, state document.State) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[roomID]; !exists {
		return ErrNotFound
	}
	s.rooms[roomID] = blob
	return nil
}
