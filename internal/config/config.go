// Package config loads server settings from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Addr is the listen address, e.g. ":4000".
	Addr string

	// DatabaseURL is the Postgres DSN. Empty means the in-memory registry,
	// which loses all rooms on restart.
	DatabaseURL string

	// OriginPatterns are accepted WebSocket origins.
	OriginPatterns []string

	// RoomSweepInterval is how often idle room actors are retired.
	RoomSweepInterval time.Duration
}

func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Addr:              ":4000",
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		OriginPatterns:    []string{"*"},
		RoomSweepInterval: 30 * time.Minute,
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Addr = ":" + port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.OriginPatterns = cfg.OriginPatterns[:0]
		for _, origin := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.OriginPatterns = append(cfg.OriginPatterns, trimmed)
			}
		}
	}

	if raw := os.Getenv("ROOM_SWEEP_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.RoomSweepInterval = d
		}
	}

	return cfg
}
