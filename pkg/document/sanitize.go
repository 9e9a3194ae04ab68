package document

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// newID generates ids for entities the client sent without one. Package
// variable so tests can substitute a deterministic source.
var newID = uuid.NewString

// Sanitize normalizes an arbitrary decoded-JSON payload into a canonical
// State. It never fails: malformed or missing fields fall back to the
// previous document (nil means a fresh room) or to hard defaults.
// LastUpdatedAt is stamped from now; CreatedAt carries over from previous.
func Sanitize(incoming any, previous *State, now time.Time) State {
	var base State
	if previous != nil {
		base = *previous
	} else {
		base = NewInitialState(now)
	}

	in, _ := asObject(incoming)

	players := base.Players
	if raw, ok := asArray(in["players"]); ok {
		players = sanitizePlayers(raw)
	}
	if players == nil {
		players = []Player{}
	}

	encounters := base.Encounters
	if raw, ok := asArray(in["encounters"]); ok {
		encounters = sanitizeEncounters(raw, players)
	}
	if encounters == nil {
		encounters = []Encounter{}
	}

	roomGameID := sanitizeRef(firstPresent(in, "roomGameId", "gameId", "roomGame"))
	if roomGameID == nil {
		roomGameID = base.RoomGameID
	}

	return State{
		Name:          sanitizeRoomName(in["name"], fallbackName(base.Name)),
		Players:       players,
		Encounters:    encounters,
		GameSeries:    sanitizeGameSeries(in["gameSeries"], fallbackSeries(base.GameSeries)),
		VanillaMode:   sanitizeVanillaMode(firstPresent(in, "vanillaMode", "vinnliaMode"), fallbackMode(base.VanillaMode)),
		RoomGameID:    roomGameID,
		IsConfigured:  sanitizeBool(in["isConfigured"], base.IsConfigured),
		CreatedAt:     base.CreatedAt,
		LastUpdatedAt: now.UnixMilli(),
	}
}

// SanitizeStored normalizes a document read back from the registry. It
// tolerates records written by older policy versions: timestamps are kept
// when present instead of restamped, and isConfigured defaults to true so
// pre-policy rooms do not bounce back into setup.
func SanitizeStored(raw any, now time.Time) State {
	in, _ := asObject(raw)

	players := []Player{}
	if arr, ok := asArray(in["players"]); ok {
		players = sanitizePlayers(arr)
	}

	encounters := []Encounter{}
	if arr, ok := asArray(in["encounters"]); ok {
		encounters = sanitizeEncounters(arr, players)
	}

	return State{
		Name:          sanitizeRoomName(in["name"], DefaultRoomName),
		Players:       players,
		Encounters:    encounters,
		GameSeries:    sanitizeGameSeries(in["gameSeries"], SeriesORAS),
		VanillaMode:   sanitizeVanillaMode(firstPresent(in, "vanillaMode", "vinnliaMode"), ModeStandard),
		RoomGameID:    sanitizeRef(firstPresent(in, "roomGameId", "gameId", "roomGame")),
		IsConfigured:  sanitizeBool(in["isConfigured"], true),
		CreatedAt:     sanitizeEpochMillis(in["createdAt"], now),
		LastUpdatedAt: sanitizeEpochMillis(in["lastUpdatedAt"], now),
	}
}

func sanitizePlayers(raw []any) []Player {
	players := make([]Player, 0, len(raw))
	for _, entry := range raw {
		players = append(players, sanitizePlayer(entry))
	}
	return players
}

func sanitizePlayer(v any) Player {
	obj, _ := asObject(v)
	return Player{
		ID:       sanitizeID(obj["id"]),
		Name:     stringOr(obj["name"], ""),
		Notes:    stringOr(obj["notes"], ""),
		Team:     sanitizeTeam(obj["team"]),
		LockedBy: sanitizeRef(obj["lockedBy"]),
	}
}

func sanitizeTeam(v any) []Pokemon {
	arr, ok := asArray(v)
	if !ok {
		return []Pokemon{}
	}
	if len(arr) > MaxTeamSize {
		arr = arr[:MaxTeamSize]
	}

	// Last entry for a slot wins, then sort by slot ascending.
	bySlot := make(map[int]Pokemon, len(arr))
	i := 0
	for _, entry := range arr {
		if entry == nil {
			continue
		}
		p := sanitizePokemon(entry, i)
		bySlot[p.Slot] = p
		i++
	}

	team := make([]Pokemon, 0, len(bySlot))
	for slot := 0; slot <= MaxSlot; slot++ {
		if p, ok := bySlot[slot]; ok {
			team = append(team, p)
		}
	}
	return team
}

func sanitizePokemon(v any, fallbackSlot int) Pokemon {
	obj, _ := asObject(v)

	// Legacy clients sent the species under "name".
	species := trimCap(stringOr(obj["species"], stringOr(obj["name"], "")), MaxSpeciesLen)
	nickname := trimCap(stringOr(obj["nickname"], ""), MaxNicknameLen)
	if species == "" {
		nickname = ""
	}

	status := stringOr(obj["status"], "")
	if !allowedStatuses[status] {
		status = StatusActive
	}

	slot, ok := asInt(obj["slot"])
	if !ok {
		slot = fallbackSlot
	}
	slot = min(max(slot, 0), MaxSlot)

	return Pokemon{
		ID:          sanitizeID(obj["id"]),
		Species:     species,
		Nickname:    nickname,
		Status:      status,
		Notes:       stringOr(obj["notes"], ""),
		Slot:        slot,
		EncounterID: sanitizeRef(obj["encounterId"]),
		TrainerID:   sanitizeRef(obj["trainerId"]),
	}
}

func sanitizeEncounters(raw []any, players []Player) []Encounter {
	encounters := make([]Encounter, 0, len(raw))
	for _, entry := range raw {
		encounters = append(encounters, sanitizeEncounter(entry, players))
	}
	return encounters
}

func sanitizeEncounter(v any, players []Player) Encounter {
	obj, _ := asObject(v)

	var locationID *string
	if s, ok := asString(obj["locationId"]); ok && s != "" {
		locationID = &s
	}

	rawSelections, _ := asObject(obj["pokemonSelections"])

	// Keys are exactly the current player ids: stale selections are
	// dropped, missing ones filled with an empty selection.
	selections := make(map[string]Selection, len(players))
	for _, player := range players {
		selections[player.ID] = sanitizeSelection(rawSelections[player.ID])
	}

	return Encounter{
		ID:                sanitizeID(obj["id"]),
		LocationID:        locationID,
		PokemonSelections: selections,
	}
}

func sanitizeSelection(v any) Selection {
	if obj, ok := asObject(v); ok {
		var species *string
		if s := trimCap(stringOr(obj["species"], stringOr(obj["name"], "")), MaxSpeciesLen); s != "" {
			species = &s
		}
		isDead, _ := asBool(obj["isDead"])
		return Selection{
			Species:  species,
			Nickname: trimCap(stringOr(obj["nickname"], ""), MaxNicknameLen),
			IsDead:   isDead,
		}
	}

	// Bare-string shorthand for a species.
	if s, ok := asString(v); ok {
		var species *string
		if trimmed := trimCap(s, MaxSpeciesLen); trimmed != "" {
			species = &trimmed
		}
		return Selection{Species: species}
	}

	return Selection{}
}

func sanitizeID(v any) string {
	if s, ok := asString(v); ok && s != "" {
		return s
	}
	return newID()
}

func sanitizeRoomName(v any, fallback string) string {
	if s, ok := asString(v); ok {
		if trimmed := trimCap(s, MaxRoomNameLen); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func sanitizeGameSeries(v any, fallback string) string {
	if s, ok := asString(v); ok && allowedGameSeries[s] {
		return s
	}
	return fallback
}

func sanitizeVanillaMode(v any, fallback string) string {
	if s, ok := asString(v); ok && allowedVanillaModes[s] {
		return s
	}
	return fallback
}

// sanitizeRef normalizes a nullable reference string (lockedBy, trainerId,
// encounterId, roomGameId): trimmed, capped, empty becomes nil.
func sanitizeRef(v any) *string {
	s, ok := asString(v)
	if !ok {
		return nil
	}
	trimmed := trimCap(s, MaxRefLen)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func sanitizeBool(v any, fallback bool) bool {
	if b, ok := asBool(v); ok {
		return b
	}
	return fallback
}

func sanitizeEpochMillis(v any, now time.Time) int64 {
	if f, ok := v.(float64); ok && f == float64(int64(f)) && f > 0 {
		return int64(f)
	}
	if n, ok := v.(int64); ok && n > 0 {
		return n
	}
	return now.UnixMilli()
}

func fallbackName(s string) string {
	if s == "" {
		return DefaultRoomName
	}
	return s
}

func fallbackSeries(s string) string {
	if s == "" {
		return SeriesORAS
	}
	return s
}

func fallbackMode(s string) string {
	if s == "" {
		return ModeStandard
	}
	return s
}

func firstPresent(obj map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := obj[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func trimCap(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return s
}

func asObject(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	return obj, ok
}

func asArray(v any) ([]any, bool) {
	arr, ok := v.([]any)
	return arr, ok
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// asInt accepts only integral JSON numbers; 2.5 is not a slot.
func asInt(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func stringOr(v any, fallback string) string {
	if s, ok := asString(v); ok {
		return s
	}
	return fallback
}
