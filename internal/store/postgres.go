package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/soullock/tracker-server/pkg/document"
)

// roomRecord is the persisted shape: one row per room, the full document
// as a jsonb blob.
type roomRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	State     []byte `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (roomRecord) TableName() string { return "rooms" }

// PostgresStore is the production Room Registry backed by Postgres.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&roomRecord{}); err != nil {
		return nil, fmt.Errorf("migrate rooms table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateRoom(ctx context.Context, roomID string, state document.State) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	rec := roomRecord{ID: roomID, State: blob}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("create room %s: %w", roomID, err)
	}
	return nil
}

func (s *PostgresStore) GetRoom(ctx context.Context, roomID string) (document.State, error) {
	var rec roomRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return document.State{}, ErrNotFound
	}
	if err != nil {
		return document.State{}, fmt.Errorf("fetch room %s: %w", roomID, err)
	}
	return decodeStoredState(rec.State), nil
}

func (s *PostgresStore) ReplaceState(ctx context.Context, roomID string, state document.State) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	res := s.db.WithContext(ctx).Model(&roomRecord{}).
		Where("id = ?", roomID).
		Updates(map[string]any{"state": blob, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("replace state for room %s: %w", roomID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// decodeStoredState reads a persisted blob leniently: records written by
// older policy versions still come back as a canonical document instead of
// failing the whole read.
func decodeStoredState(blob []byte) document.State {
	var raw any
	if len(blob) > 0 {
		_ = json.Unmarshal(blob, &raw)
	}
	return document.SanitizeStored(raw, time.Now())
}
