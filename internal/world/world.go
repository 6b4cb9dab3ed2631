// Package world is the application context session operations run in:
// the net role of this process, the session service it talks to, client
// travel and network failure notifications.
package world

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MrSnakeDoc/nexus/internal/backend"
)

type NetMode int

const (
	Standalone NetMode = iota
	DedicatedServer
	ListenServer
	Client
)

func (m NetMode) String() string {
	switch m {
	case DedicatedServer:
		return "dedicated_server"
	case ListenServer:
		return "listen_server"
	case Client:
		return "client"
	}
	return "standalone"
}

// IsServer reports whether the mode hosts sessions.
func (m NetMode) IsServer() bool {
	return m == DedicatedServer || m == ListenServer
}

func ParseNetMode(s string) (NetMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standalone":
		return Standalone, nil
	case "dedicated", "dedicated_server", "server":
		return DedicatedServer, nil
	case "listen", "listen_server", "host":
		return ListenServer, nil
	case "client":
		return Client, nil
	}
	return Standalone, fmt.Errorf("unknown net mode %q", s)
}

// FailureKind classifies a network failure.
type FailureKind int

const (
	ConnectionLost FailureKind = iota
	ConnectionTimeout
	NetDriverError
	PendingConnectionFailure
	OutdatedClient
	OutdatedServer
	AuthenticationFailure
)

func (k FailureKind) String() string {
	switch k {
	case ConnectionLost:
		return "ConnectionLost"
	case ConnectionTimeout:
		return "ConnectionTimeout"
	case NetDriverError:
		return "NetDriverError"
	case PendingConnectionFailure:
		return "PendingConnectionFailure"
	case OutdatedClient:
		return "OutdatedClient"
	case OutdatedServer:
		return "OutdatedServer"
	case AuthenticationFailure:
		return "AuthenticationFailure"
	}
	return "Unknown"
}

// IsConnectionLoss reports whether the failure means the host went away.
func (k FailureKind) IsConnectionLoss() bool {
	return k == ConnectionLost || k == ConnectionTimeout
}

func ParseFailureKind(s string) (FailureKind, error) {
	for k := ConnectionLost; k <= AuthenticationFailure; k++ {
		if strings.EqualFold(k.String(), s) {
			return k, nil
		}
	}
	return ConnectionLost, fmt.Errorf("unknown failure kind %q", s)
}

type Failure struct {
	Kind    FailureKind
	Message string
}

// ErrNoTravel is returned by ClientTravel for an empty URL.
var ErrNoTravel = errors.New("empty travel url")

// World is the application context. The zero value is not usable; build
// one with New.
type World struct {
	mu        sync.RWMutex
	subsystem backend.Subsystem
	mode      NetMode
	travel    func(url string) error
	lastURL   string
	travels   int
	next      int
	observers map[int]func(Failure)
	order     []int
}

// New returns a world bound to a session service. subsystem may be nil
// when no service is available.
func New(subsystem backend.Subsystem, mode NetMode) *World {
	return &World{
		subsystem: subsystem,
		mode:      mode,
		observers: make(map[int]func(Failure)),
	}
}

func (w *World) Subsystem() backend.Subsystem {
	if w == nil {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.subsystem
}

func (w *World) NetMode() NetMode {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.mode
}

func (w *World) SetNetMode(m NetMode) {
	w.mu.Lock()
	w.mode = m
	w.mu.Unlock()
}

// SetTravel installs the function performing the actual connect.
func (w *World) SetTravel(fn func(url string) error) {
	w.mu.Lock()
	w.travel = fn
	w.mu.Unlock()
}

// ClientTravel connects this process to url. Without a travel function
// it only records the destination.
func (w *World) ClientTravel(url string) error {
	if url == "" {
		return ErrNoTravel
	}
	w.mu.Lock()
	fn := w.travel
	w.lastURL = url
	w.travels++
	w.mu.Unlock()

	if fn != nil {
		return fn(url)
	}
	return nil
}

// LastTravel returns the last travel destination and how many travels
// were requested.
func (w *World) LastTravel() (string, int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastURL, w.travels
}

// OnNetworkFailure registers fn and returns a function removing it.
func (w *World) OnNetworkFailure(fn func(Failure)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next++
	id := w.next
	w.observers[id] = fn
	w.order = append(w.order, id)
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.observers, id)
		for i, v := range w.order {
			if v == id {
				w.order = append(w.order[:i], w.order[i+1:]...)
				break
			}
		}
	}
}

// NotifyNetworkFailure reports a failure to every observer.
func (w *World) NotifyNetworkFailure(f Failure) {
	w.mu.RLock()
	fns := make([]func(Failure), 0, len(w.order))
	for _, id := range w.order {
		fns = append(fns, w.observers[id])
	}
	w.mu.RUnlock()

	for _, fn := range fns {
		fn(f)
	}
}
