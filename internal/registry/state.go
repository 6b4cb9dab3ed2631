// Package registry tracks who is in the local session. The Authority runs
// on the host, owns the state and publishes it; every other peer runs a
// Mirror that only ever replaces its copy with what the authority sent.
package registry

import "encoding/json"

// DefaultTopic is the replication topic of a session's registry state.
func DefaultTopic(sessionName string) string {
	return "registry:" + sessionName
}

// SessionTopic scopes the registry topic to one hosted instance of the
// session, so a recreated session never shares a topic with the one it
// replaces.
func SessionTopic(sessionName, sessionID string) string {
	if sessionID == "" {
		return DefaultTopic(sessionName)
	}
	return DefaultTopic(sessionName) + ":" + sessionID
}

// State is the replicated registry of one session.
type State struct {
	SessionName string   `json:"session_name"`
	HostID      string   `json:"host_id"`
	Players     []string `json:"players"`
	Count       int      `json:"count"`
	MaxPlayers  int      `json:"max_players"`
	// Heir is the player who recreates the session if the host is lost.
	Heir    string `json:"heir,omitempty"`
	Version uint64 `json:"version"`
}

func (s State) Clone() State {
	out := s
	out.Players = append([]string(nil), s.Players...)
	return out
}

func (s State) Marshal() ([]byte, error) { return json.Marshal(s) }

func UnmarshalState(data []byte) (State, error) {
	var s State
	err := json.Unmarshal(data, &s)
	return s, err
}

// ElectHeir picks the first registered player other than the host.
func ElectHeir(players []string, hostID string) string {
	for _, p := range players {
		if p != "" && p != hostID {
			return p
		}
	}
	return ""
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// added returns the players present in next but not in prev.
func added(prev, next []string) []string {
	seen := make(map[string]struct{}, len(prev))
	for _, p := range prev {
		seen[p] = struct{}{}
	}
	var out []string
	for _, p := range next {
		if _, ok := seen[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}
