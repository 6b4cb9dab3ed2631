// Package memory is an in-process session service. A Network holds the
// advertised sessions; every peer talks to it through its own Backend.
// Completions are delivered through the peer's dispatcher, never inline.
package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/nexus/internal/backend"
	"github.com/MrSnakeDoc/nexus/internal/domain"
)

// DefaultPingMs is reported for sessions without an explicit ping.
const DefaultPingMs = 20

type hosted struct {
	id       string
	owner    string
	name     string
	settings backend.CreateSettings
	players  []string
	pingMs   int
}

func (h *hosted) open() int {
	open := h.settings.NumPublicConnections - len(h.players)
	if open < 0 {
		return 0
	}
	return open
}

// Network is the shared view of every advertised session.
type Network struct {
	mu       sync.Mutex
	sessions []*hosted
	peers    map[string]*Backend
}

func NewNetwork() *Network {
	return &Network{peers: make(map[string]*Backend)}
}

// Host advertises a session owned by peerID without going through a
// Backend. It returns the backend session ID.
func (n *Network) Host(peerID, name string, settings backend.CreateSettings, pingMs int) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.addLocked(peerID, name, settings, pingMs).id
}

func (n *Network) addLocked(peerID, name string, settings backend.CreateSettings, pingMs int) *hosted {
	attrs := make(map[string]domain.Value, len(settings.Attributes))
	for k, v := range settings.Attributes {
		attrs[k] = v
	}
	settings.Attributes = attrs
	h := &hosted{
		id:       uuid.NewString(),
		owner:    peerID,
		name:     name,
		settings: settings,
		pingMs:   pingMs,
	}
	n.sessions = append(n.sessions, h)
	return h
}

// SetPing overrides the ping reported for a session.
func (n *Network) SetPing(sessionID string, ms int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if h := n.findLocked(sessionID); h != nil {
		h.pingMs = ms
	}
}

// Drop removes every session hosted by peerID, as if the host vanished.
func (n *Network) Drop(peerID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	kept := n.sessions[:0]
	dropped := 0
	for _, h := range n.sessions {
		if h.owner == peerID {
			dropped++
			continue
		}
		kept = append(kept, h)
	}
	n.sessions = kept
	return dropped
}

// Len reports the number of advertised sessions.
func (n *Network) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sessions)
}

func (n *Network) findLocked(id string) *hosted {
	for _, h := range n.sessions {
		if h.id == id {
			return h
		}
	}
	return nil
}

func (n *Network) removeLocked(id string) {
	for i, h := range n.sessions {
		if h.id == id {
			n.sessions = append(n.sessions[:i], n.sessions[i+1:]...)
			return
		}
	}
}

func (n *Network) attach(b *Backend) {
	n.mu.Lock()
	n.peers[b.peerID] = b
	n.mu.Unlock()
}
