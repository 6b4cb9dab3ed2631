// Package backend defines the asynchronous session service the
// orchestration layer sits on. Concrete services (a platform SDK, the
// in-process loopback in backend/memory) implement Subsystem.
//
// Every call that starts an operation returns false when the service
// refuses it synchronously. Otherwise exactly one notification of the
// matching kind is delivered later on the control thread.
package backend

import "github.com/MrSnakeDoc/nexus/internal/domain"

// Subsystem is the entry point of a session service.
type Subsystem interface {
	// Sessions returns the session interface, or nil when the service
	// exposes none.
	Sessions() Sessions
	Identity() Identity
}

// Identity resolves local player identities.
type Identity interface {
	LocalPlayerID(userIndex int) (string, bool)
}

// Sessions is the session interface of a Subsystem.
type Sessions interface {
	CreateSession(userIndex int, name string, settings CreateSettings) bool
	FindSessions(userIndex int, search *Search) bool
	JoinSession(userIndex int, name string, handle string) bool
	DestroySession(name string) bool

	NamedSession(name string) (NamedSession, bool)
	RegisterPlayer(name, playerID string) bool
	UnregisterPlayer(name, playerID string) bool
	ResolveConnectString(name string) (string, bool)

	// Subscribe registers fn for notifications of kind. The handler stays
	// registered until Unsubscribe is called with the returned ID.
	Subscribe(kind NotificationKind, fn func(Notification)) HandlerID
	Unsubscribe(id HandlerID)
}

// HandlerID identifies a registered notification handler.
type HandlerID uint64

// CreateSettings is what the service advertises for a new session.
type CreateSettings struct {
	LAN                  bool
	Advertise            bool
	UsesPresence         bool
	AllowJoinInProgress  bool
	FriendsOnly          bool
	NumPublicConnections int
	Attributes           map[string]domain.Value
}

// Search is a find request. Results are filled in by the service before
// the FindComplete notification fires.
type Search struct {
	Query   domain.SearchQuery
	Results []RawResult
}

// RawResult is one unfiltered search hit as reported by the service.
type RawResult struct {
	Handle                   string
	SessionID                string
	Attributes               map[string]domain.Value
	NumPublicConnections     int
	NumOpenPublicConnections int
	PingMs                   int
}

// NamedSession is the service's view of a session this peer hosts or
// has joined.
type NamedSession struct {
	Name              string
	SessionID         string
	Settings          CreateSettings
	RegisteredPlayers []string
	Host              bool
}

// JoinResult is the outcome code of a join.
type JoinResult int

const (
	JoinSuccess JoinResult = iota
	JoinSessionIsFull
	JoinSessionDoesNotExist
	JoinCouldNotRetrieveAddress
	JoinAlreadyInSession
	JoinUnknownError
)

func (r JoinResult) String() string {
	switch r {
	case JoinSuccess:
		return "Success"
	case JoinSessionIsFull:
		return "SessionIsFull"
	case JoinSessionDoesNotExist:
		return "SessionDoesNotExist"
	case JoinCouldNotRetrieveAddress:
		return "CouldNotRetrieveAddress"
	case JoinAlreadyInSession:
		return "AlreadyInSession"
	}
	return "UnknownError"
}

type NotificationKind int

const (
	CreateComplete NotificationKind = iota
	FindComplete
	JoinComplete
	DestroyComplete
	// ParticipantsChanged fires on the host when a player is registered
	// or unregistered.
	ParticipantsChanged
)

func (k NotificationKind) String() string {
	switch k {
	case CreateComplete:
		return "create_complete"
	case FindComplete:
		return "find_complete"
	case JoinComplete:
		return "join_complete"
	case DestroyComplete:
		return "destroy_complete"
	case ParticipantsChanged:
		return "participants_changed"
	}
	return "unknown"
}

// Notification is an asynchronous completion or membership change.
type Notification struct {
	Kind        NotificationKind
	SessionName string
	OK          bool

	// JoinComplete
	Join JoinResult
	// FindComplete: the request this completion belongs to.
	Search *Search
	// ParticipantsChanged
	PlayerID string
	Joined   bool
}
