// Package document defines the Room Document — the full synchronized state
// of a Soul Lock room — and the sanitizer that turns untrusted payloads
// into canonical documents.
package document

import "time"

const (
	DefaultRoomName = "Soul Lock Room"

	MaxRoomNameLen = 80
	MaxSpeciesLen  = 40
	MaxNicknameLen = 40
	MaxRefLen      = 64
	MaxTeamSize    = 6
	MaxSlot        = 5
)

const (
	StatusActive  = "active"
	StatusFainted = "fainted"
	StatusBoxed   = "boxed"
)

const (
	SeriesORAS        = "oras"
	SeriesHGSS        = "hgss"
	SeriesSwordShield = "sword_shield"
)

const (
	ModeStandard   = "standard"
	ModeRandomizer = "randomizer"
)

var allowedStatuses = map[string]bool{
	StatusActive:  true,
	StatusFainted: true,
	StatusBoxed:   true,
}

var allowedGameSeries = map[string]bool{
	SeriesORAS:        true,
	SeriesHGSS:        true,
	SeriesSwordShield: true,
}

var allowedVanillaModes = map[string]bool{
	ModeStandard:   true,
	ModeRandomizer: true,
}

// Pokemon is one team member owned by a player.
type Pokemon struct {
	ID          string  `json:"id"`
	Species     string  `json:"species"`
	Nickname    string  `json:"nickname"`
	Status      string  `json:"status"`
	Notes       string  `json:"notes"`
	Slot        int     `json:"slot"`
	EncounterID *string `json:"encounterId"`
	TrainerID   *string `json:"trainerId"`
}

// Player is one participant in the run. LockedBy is an advisory claim by a
// client id; the server never enforces it.
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Notes    string    `json:"notes"`
	Team     []Pokemon `json:"team"`
	LockedBy *string   `json:"lockedBy"`
}

// Selection is one player's catch for an encounter row.
type Selection struct {
	Species  *string `json:"species"`
	Nickname string  `json:"nickname"`
	IsDead   bool    `json:"isDead"`
}

// Encounter is one row of the encounter table. PokemonSelections is keyed
// strictly by current player ids; sanitization drops everything else.
type Encounter struct {
	ID                string               `json:"id"`
	LocationID        *string              `json:"locationId"`
	PokemonSelections map[string]Selection `json:"pokemonSelections"`
}

// State is the Room Document. It is replaced atomically on every accepted
// sync; LastUpdatedAt is server-assigned, never trusted from the client.
type State struct {
	Name          string      `json:"name"`
	Players       []Player    `json:"players"`
	Encounters    []Encounter `json:"encounters"`
	GameSeries    string      `json:"gameSeries"`
	VanillaMode   string      `json:"vanillaMode"`
	RoomGameID    *string     `json:"roomGameId"`
	IsConfigured  bool        `json:"isConfigured"`
	CreatedAt     int64       `json:"createdAt"`
	LastUpdatedAt int64       `json:"lastUpdatedAt"`
}

// NewInitialState is the document a freshly created room starts with.
func NewInitialState(now time.Time) State {
	ms := now.UnixMilli()
	return State{
		Name:          DefaultRoomName,
		Players:       []Player{},
		Encounters:    []Encounter{},
		GameSeries:    SeriesORAS,
		VanillaMode:   ModeStandard,
		RoomGameID:    nil,
		IsConfigured:  false,
		CreatedAt:     ms,
		LastUpdatedAt: ms,
	}
}
