package domain

import (
	"fmt"
	"strings"
)

// SessionType identifies a session kind. It maps to a stable internal
// session name that is used as the key for every backend lookup.
type SessionType int

const (
	GameSession SessionType = iota
	PartySession
	SpectatorSession
	CustomSession
)

var sessionTypeNames = [...]string{
	GameSession:      "GameSession",
	PartySession:     "PartySession",
	SpectatorSession: "SpectatorSession",
	CustomSession:    "CustomSession",
}

// Name returns the internal session name for the type.
// Unknown values fall back to the game session name.
func (t SessionType) Name() string {
	if t < 0 || int(t) >= len(sessionTypeNames) {
		return sessionTypeNames[GameSession]
	}
	return sessionTypeNames[t]
}

func (t SessionType) String() string { return t.Name() }

// ParseSessionType accepts an internal name ("GameSession") or a short
// alias ("game", "party", "spectator", "custom"), case-insensitive.
func ParseSessionType(s string) (SessionType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, "session")
	switch v {
	case "", "game":
		return GameSession, nil
	case "party":
		return PartySession, nil
	case "spectator":
		return SpectatorSession, nil
	case "custom":
		return CustomSession, nil
	}
	return GameSession, fmt.Errorf("unknown session type %q", s)
}

// SessionTypeFromName maps an internal session name back to its type.
// Unknown names map to GameSession.
func SessionTypeFromName(name string) SessionType {
	for i, n := range sessionTypeNames {
		if strings.EqualFold(n, name) {
			return SessionType(i)
		}
	}
	return GameSession
}

func (t SessionType) MarshalText() ([]byte, error) { return []byte(t.Name()), nil }

func (t *SessionType) UnmarshalText(b []byte) error {
	v, err := ParseSessionType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Advertised keys written on every created session and read back
// from search results.
const (
	KeyDisplayName  = "SESSION_DISPLAY_NAME"
	KeyMapName      = "MAP_NAME_KEY"
	KeyGameMode     = "GAME_MODE_KEY"
	KeySessionType  = "SESSION_TYPE_KEY"
	KeyMigrationID  = "MIGRATION_ID_KEY"
	KeyUsesPresence = "USES_PRESENCE"
	KeySessionID    = "SESSION_ID_KEY"
)

const (
	// DefaultSessionIDLength is the length of generated public session IDs.
	DefaultSessionIDLength = 6
	// MigrationIDLength is the length of generated migration IDs.
	MigrationIDLength = 16
)

// SessionSettings holds the creation parameters of a session.
//
// A SessionSettings value is created once per session lifecycle. The
// MigrationID survives re-creation during host migration so that
// clients can find the "same" match again.
type SessionSettings struct {
	// ─────────────────────────────
	// Presentation
	// ─────────────────────────────

	DisplayName string `json:"display_name"`
	MapName     string `json:"map_name"`
	GameMode    string `json:"game_mode"`

	// ─────────────────────────────
	// Capacity & visibility
	// ─────────────────────────────

	MaxPlayers  int  `json:"max_players"`
	LAN         bool `json:"lan"`
	Private     bool `json:"private"`
	FriendsOnly bool `json:"friends_only"`

	Type SessionType `json:"type"`

	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	// SessionID is the short public identifier advertised under
	// KeySessionID. Generated on create when empty.
	SessionID       string `json:"session_id,omitempty"`
	SessionIDLength int    `json:"session_id_length,omitempty"`

	// ─────────────────────────────
	// Migration
	// ─────────────────────────────

	AllowMigration bool   `json:"allow_migration"`
	MigrationID    string `json:"migration_id,omitempty"`

	// Attributes is the custom advertisement bag, merged into the
	// advertised settings at create time.
	Attributes []Attribute `json:"attributes,omitempty"`
}

// Clone returns a deep copy of the settings.
func (s SessionSettings) Clone() SessionSettings {
	out := s
	if s.Attributes != nil {
		out.Attributes = append([]Attribute(nil), s.Attributes...)
	}
	return out
}

// Attribute is one advertised key/value pair.
type Attribute struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}
