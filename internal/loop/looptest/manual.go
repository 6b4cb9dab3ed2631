// Package looptest provides a deterministic Dispatcher for tests.
package looptest

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Dispatcher driven explicitly by the test: posted work runs
// on Drain, timers fire on Advance. Time only moves when told to.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	queue  []func()
	timers []*timer
	seq    int
}

type timer struct {
	at        time.Time
	seq       int
	fn        func()
	cancelled bool
}

// New returns a manual dispatcher whose clock starts at a fixed instant.
func New() *Manual {
	return &Manual{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
}

func (m *Manual) After(d time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &timer{at: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return func() {
		m.mu.Lock()
		t.cancelled = true
		m.mu.Unlock()
	}
}

// Offload runs work as a separate queued step and marshals done back as
// a further step, mirroring the worker hop of the real loop.
func (m *Manual) Offload(work func(), done func()) {
	m.Post(func() {
		work()
		m.Post(done)
	})
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Drain runs queued work, including work queued while draining, until the
// queue is empty. It returns the number of closures executed.
func (m *Manual) Drain() int {
	n := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return n
		}
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		fn()
		n++
	}
}

// Advance moves the clock forward by d, firing due timers in order and
// draining after each one.
func (m *Manual) Advance(d time.Duration) {
	m.Drain()

	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			break
		}
		m.now = next.at
		next.cancelled = true
		fn := next.fn
		m.mu.Unlock()

		fn()
		m.Drain()
	}
	m.Drain()
}

func (m *Manual) nextDueLocked(target time.Time) *timer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	m.timers = live

	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	if len(m.timers) == 0 || m.timers[0].at.After(target) {
		return nil
	}
	return m.timers[0]
}

// PendingTimers reports how many timers are armed.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Queued reports how many closures wait for Drain.
func (m *Manual) Queued() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
