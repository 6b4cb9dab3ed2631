package events

import "github.com/MrSnakeDoc/nexus/internal/domain"

type SessionCreated struct {
	SessionName string
	Success     bool
}

type SessionDestroyed struct {
	SessionName string
	Success     bool
}

// SessionsFound carries the filtered, ordered results of a search.
type SessionsFound struct {
	Success bool
	Results []domain.SearchResult
	Cached  bool
}

type SessionJoined struct {
	SessionName string
	Success     bool
}

type PlayerCountChanged struct {
	SessionName string
	Count       int
}

// PlayerJoined and PlayerLeft carry an empty PlayerID when the change
// was inferred from a count delta rather than reported explicitly.
type PlayerJoined struct {
	SessionName string
	PlayerID    string
}

type PlayerLeft struct {
	SessionName string
	PlayerID    string
}

type MigrationStarted struct {
	MigrationID string
	AsHost      bool
}

type MigrationFailed struct {
	Reason string
	Err    error
}

type MigrationCompleted struct {
	MigrationID string
	AsHost      bool
}

func (SessionCreated) EventName() string     { return "session_created" }
func (SessionDestroyed) EventName() string   { return "session_destroyed" }
func (SessionsFound) EventName() string      { return "sessions_found" }
func (SessionJoined) EventName() string      { return "session_joined" }
func (PlayerCountChanged) EventName() string { return "player_count_changed" }
func (PlayerJoined) EventName() string       { return "player_joined" }
func (PlayerLeft) EventName() string         { return "player_left" }
func (MigrationStarted) EventName() string   { return "migration_started" }
func (MigrationFailed) EventName() string    { return "migration_failed" }
func (MigrationCompleted) EventName() string { return "migration_completed" }
