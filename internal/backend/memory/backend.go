package memory

import (
	"sync"

	"github.com/MrSnakeDoc/nexus/internal/backend"
	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/filter"
	"github.com/MrSnakeDoc/nexus/internal/loop"
)

// Call is one entry of the call log.
type Call struct {
	Op   string
	Name string
}

type joined struct {
	sessionID string
	host      bool
	settings  backend.CreateSettings
}

type handler struct {
	id   backend.HandlerID
	kind backend.NotificationKind
	fn   func(backend.Notification)
}

// Backend is one peer's connection to a Network. It implements
// backend.Subsystem, backend.Sessions and backend.Identity.
type Backend struct {
	net           *Network
	peerID        string
	localPlayerID string
	disp          loop.Dispatcher

	mu          sync.Mutex
	named       map[string]*joined
	handlers    []handler
	nextID      backend.HandlerID
	calls       []Call
	failNext    map[backend.NotificationKind]int
	rejectNext  map[backend.NotificationKind]int
	ignoreQuery bool
	noSessions  bool
}

// NewBackend attaches a peer to the network. Notifications are posted on
// disp.
func NewBackend(n *Network, peerID, localPlayerID string, disp loop.Dispatcher) *Backend {
	b := &Backend{
		net:           n,
		peerID:        peerID,
		localPlayerID: localPlayerID,
		disp:          disp,
		named:         make(map[string]*joined),
		failNext:      make(map[backend.NotificationKind]int),
		rejectNext:    make(map[backend.NotificationKind]int),
	}
	n.attach(b)
	return b
}

func (b *Backend) PeerID() string { return b.peerID }

// ─────────────────────────────
// Subsystem / Identity
// ─────────────────────────────

func (b *Backend) Sessions() backend.Sessions {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.noSessions {
		return nil
	}
	return b
}

func (b *Backend) Identity() backend.Identity { return b }

func (b *Backend) LocalPlayerID(userIndex int) (string, bool) {
	if userIndex != 0 || b.localPlayerID == "" {
		return "", false
	}
	return b.localPlayerID, true
}

// ─────────────────────────────
// Test hooks
// ─────────────────────────────

// FailNext makes the next operation of kind complete with a failure.
func (b *Backend) FailNext(kind backend.NotificationKind) {
	b.mu.Lock()
	b.failNext[kind]++
	b.mu.Unlock()
}

// RejectNext makes the next operation of kind return false synchronously.
func (b *Backend) RejectNext(kind backend.NotificationKind) {
	b.mu.Lock()
	b.rejectNext[kind]++
	b.mu.Unlock()
}

// IgnoreQuery makes searches return every visible session regardless of
// the query parameters, like a service without server-side filtering.
func (b *Backend) IgnoreQuery(v bool) {
	b.mu.Lock()
	b.ignoreQuery = v
	b.mu.Unlock()
}

// SetSessionsAvailable toggles whether Sessions() returns an interface.
func (b *Backend) SetSessionsAvailable(v bool) {
	b.mu.Lock()
	b.noSessions = !v
	b.mu.Unlock()
}

// Calls returns a copy of the call log.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallCount returns how many times op was called.
func (b *Backend) CallCount(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// HandlerCount reports the number of registered notification handlers.
func (b *Backend) HandlerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

// ─────────────────────────────
// Notifications
// ─────────────────────────────

func (b *Backend) Subscribe(kind backend.NotificationKind, fn func(backend.Notification)) backend.HandlerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers = append(b.handlers, handler{id: b.nextID, kind: kind, fn: fn})
	return b.nextID
}

func (b *Backend) Unsubscribe(id backend.HandlerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.id == id {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return
		}
	}
}

func (b *Backend) deliver(n backend.Notification) {
	b.mu.Lock()
	var targets []func(backend.Notification)
	for _, h := range b.handlers {
		if h.kind == n.Kind {
			targets = append(targets, h.fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range targets {
		fn(n)
	}
}

func (b *Backend) post(n backend.Notification) {
	b.disp.Post(func() { b.deliver(n) })
}

// begin records the call and consumes pending reject/fail injections.
func (b *Backend) begin(op string, name string, kind backend.NotificationKind) (rejected, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Call{Op: op, Name: name})
	if b.rejectNext[kind] > 0 {
		b.rejectNext[kind]--
		return true, false
	}
	if b.failNext[kind] > 0 {
		b.failNext[kind]--
		return false, true
	}
	return false, false
}

// ─────────────────────────────
// Operations
// ─────────────────────────────

func (b *Backend) CreateSession(_ int, name string, settings backend.CreateSettings) bool {
	rejected, fail := b.begin("create", name, backend.CreateComplete)
	if rejected {
		return false
	}

	b.mu.Lock()
	_, exists := b.named[name]
	b.mu.Unlock()

	if fail || exists {
		b.post(backend.Notification{Kind: backend.CreateComplete, SessionName: name})
		return true
	}

	b.net.mu.Lock()
	h := b.net.addLocked(b.peerID, name, settings, DefaultPingMs)
	b.net.mu.Unlock()

	b.mu.Lock()
	b.named[name] = &joined{sessionID: h.id, host: true, settings: settings}
	b.mu.Unlock()

	b.post(backend.Notification{Kind: backend.CreateComplete, SessionName: name, OK: true})
	return true
}

func (b *Backend) DestroySession(name string) bool {
	rejected, fail := b.begin("destroy", name, backend.DestroyComplete)
	if rejected {
		return false
	}

	b.mu.Lock()
	j, ok := b.named[name]
	if ok && !fail {
		delete(b.named, name)
	}
	b.mu.Unlock()

	if !ok || fail {
		b.post(backend.Notification{Kind: backend.DestroyComplete, SessionName: name})
		return true
	}

	var host *Backend
	var hostName string
	b.net.mu.Lock()
	if j.host {
		b.net.removeLocked(j.sessionID)
	} else if h := b.net.findLocked(j.sessionID); h != nil && contains(h.players, b.localPlayerID) {
		h.players = without(h.players, b.localPlayerID)
		host, hostName = b.net.peers[h.owner], h.name
	}
	b.net.mu.Unlock()

	if host != nil {
		host.post(backend.Notification{
			Kind:        backend.ParticipantsChanged,
			SessionName: hostName,
			OK:          true,
			PlayerID:    b.localPlayerID,
		})
	}
	b.post(backend.Notification{Kind: backend.DestroyComplete, SessionName: name, OK: true})
	return true
}

func (b *Backend) FindSessions(_ int, search *backend.Search) bool {
	if search == nil {
		return false
	}
	rejected, fail := b.begin("find", "", backend.FindComplete)
	if rejected {
		return false
	}
	if fail {
		b.post(backend.Notification{Kind: backend.FindComplete, Search: search})
		return true
	}

	b.mu.Lock()
	ignore := b.ignoreQuery
	b.mu.Unlock()

	q := search.Query
	var results []backend.RawResult

	b.net.mu.Lock()
	for _, h := range b.net.sessions {
		if q.MaxResults > 0 && len(results) >= q.MaxResults {
			break
		}
		if h.owner == b.peerID || !h.settings.Advertise || h.settings.LAN != q.LAN {
			continue
		}
		if !ignore && !matchesQuery(q, h.settings.Attributes) {
			continue
		}
		results = append(results, rawResult(h))
	}
	b.net.mu.Unlock()

	search.Results = results
	b.post(backend.Notification{Kind: backend.FindComplete, Search: search, OK: true})
	return true
}

func (b *Backend) JoinSession(_ int, name string, handle string) bool {
	rejected, fail := b.begin("join", name, backend.JoinComplete)
	if rejected {
		return false
	}

	result := backend.JoinSuccess
	var settings backend.CreateSettings

	b.mu.Lock()
	_, already := b.named[name]
	b.mu.Unlock()

	b.net.mu.Lock()
	h := b.net.findLocked(handle)
	switch {
	case fail:
		result = backend.JoinUnknownError
	case already:
		result = backend.JoinAlreadyInSession
	case h == nil:
		result = backend.JoinSessionDoesNotExist
	case h.open() == 0:
		result = backend.JoinSessionIsFull
	default:
		settings = h.settings
	}
	b.net.mu.Unlock()

	if result == backend.JoinSuccess {
		b.mu.Lock()
		b.named[name] = &joined{sessionID: handle, settings: settings}
		b.mu.Unlock()
	}

	b.post(backend.Notification{
		Kind:        backend.JoinComplete,
		SessionName: name,
		OK:          result == backend.JoinSuccess,
		Join:        result,
	})
	return true
}

func (b *Backend) NamedSession(name string) (backend.NamedSession, bool) {
	b.mu.Lock()
	j, ok := b.named[name]
	b.mu.Unlock()
	if !ok {
		return backend.NamedSession{}, false
	}

	out := backend.NamedSession{Name: name, SessionID: j.sessionID, Settings: j.settings, Host: j.host}
	b.net.mu.Lock()
	if h := b.net.findLocked(j.sessionID); h != nil {
		out.Settings = h.settings
		out.RegisteredPlayers = append([]string(nil), h.players...)
	}
	b.net.mu.Unlock()
	return out, true
}

// RegisterPlayer adds playerID to the session's player list. On a joined
// session the registration is forwarded to the host, which receives the
// ParticipantsChanged notification.
func (b *Backend) RegisterPlayer(name, playerID string) bool {
	return b.setMembership(name, playerID, true)
}

func (b *Backend) UnregisterPlayer(name, playerID string) bool {
	return b.setMembership(name, playerID, false)
}

func (b *Backend) setMembership(name, playerID string, join bool) bool {
	if playerID == "" {
		return false
	}
	b.mu.Lock()
	j, ok := b.named[name]
	b.mu.Unlock()
	if !ok {
		return false
	}

	b.net.mu.Lock()
	h := b.net.findLocked(j.sessionID)
	if h == nil {
		b.net.mu.Unlock()
		return false
	}
	changed := false
	if join && !contains(h.players, playerID) {
		h.players = append(h.players, playerID)
		changed = true
	}
	if !join && contains(h.players, playerID) {
		h.players = without(h.players, playerID)
		changed = true
	}
	host := b.net.peers[h.owner]
	hostName := h.name
	b.net.mu.Unlock()

	if changed && host != nil {
		host.post(backend.Notification{
			Kind:        backend.ParticipantsChanged,
			SessionName: hostName,
			OK:          true,
			PlayerID:    playerID,
			Joined:      join,
		})
	}
	return true
}

func (b *Backend) ResolveConnectString(name string) (string, bool) {
	b.mu.Lock()
	j, ok := b.named[name]
	b.mu.Unlock()
	if !ok {
		return "", false
	}
	b.net.mu.Lock()
	defer b.net.mu.Unlock()
	if b.net.findLocked(j.sessionID) == nil {
		return "", false
	}
	return "memory://" + j.sessionID, true
}

// ─────────────────────────────
// Helpers
// ─────────────────────────────

func matchesQuery(q domain.SearchQuery, attrs map[string]domain.Value) bool {
	for _, p := range q.Params {
		stored, ok := attrs[p.Key]
		if !filter.Evaluate(p.Value, p.Op, stored, ok) {
			return false
		}
	}
	return true
}

func rawResult(h *hosted) backend.RawResult {
	attrs := make(map[string]domain.Value, len(h.settings.Attributes))
	for k, v := range h.settings.Attributes {
		attrs[k] = v
	}
	return backend.RawResult{
		Handle:                   h.id,
		SessionID:                h.id,
		Attributes:               attrs,
		NumPublicConnections:     h.settings.NumPublicConnections,
		NumOpenPublicConnections: h.open(),
		PingMs:                   h.pingMs,
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func without(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
