// Package loop provides the single logical control thread every session
// operation runs on. Work is posted as closures and executed serially;
// waiting is done with timers that post back, never by sleeping.
package loop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/logger"
)

// Dispatcher schedules work on the control thread.
type Dispatcher interface {
	// Post queues fn to run on the control thread.
	Post(fn func())
	// After runs fn on the control thread once d has elapsed. The returned
	// function cancels the timer if it has not fired yet.
	After(d time.Duration, fn func()) (cancel func())
	// Offload runs work on a background worker, then runs done on the
	// control thread. work must not touch state owned by the control thread.
	Offload(work func(), done func())
	// Now returns the dispatcher's clock.
	Now() time.Time
}

// ErrStopped is returned by Do once the loop has stopped.
var ErrStopped = errors.New("control loop stopped")

// Loop is a goroutine-backed Dispatcher. Posted work is queued without
// bound so the control thread can always post to itself; only Do callers
// are limited by the capacity given to New.
type Loop struct {
	qmu     sync.Mutex
	pending []func()
	wake    chan struct{}
	slots   chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  logger.Logger
	once    sync.Once
	started bool
	mu      sync.Mutex
}

// New creates a loop admitting at most capacity pending Do calls.
func New(capacity int, log logger.Logger) *Loop {
	if capacity <= 0 {
		capacity = 256
	}
	return &Loop{
		wake:   make(chan struct{}, 1),
		slots:  make(chan struct{}, capacity),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: log,
	}
}

// Start runs the loop until Stop is called or ctx is done.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	go func() {
		defer close(l.doneCh)
		for {
			select {
			case <-l.wake:
				if !l.drain(ctx) {
					return
				}
			case <-l.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// drain runs queued work, including work posted while draining, and
// reports whether the loop should keep going.
func (l *Loop) drain(ctx context.Context) bool {
	for {
		l.qmu.Lock()
		batch := l.pending
		l.pending = nil
		l.qmu.Unlock()
		if len(batch) == 0 {
			return true
		}
		for _, fn := range batch {
			select {
			case <-l.stopCh:
				return false
			case <-ctx.Done():
				return false
			default:
			}
			l.run(fn)
		}
	}
}

// Stop terminates the loop. Queued work that has not started is dropped.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.stopCh) })
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if started {
		<-l.doneCh
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("control loop task panicked", logger.Any("panic", r))
		}
	}()
	fn()
}

func (l *Loop) enqueue(fn func()) {
	l.qmu.Lock()
	l.pending = append(l.pending, fn)
	l.qmu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Post never blocks, so it is safe from the control thread itself.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.stopCh:
		return
	default:
	}
	l.enqueue(fn)
}

func (l *Loop) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, func() { l.Post(fn) })
	return func() { t.Stop() }
}

func (l *Loop) Offload(work func(), done func()) {
	go func() {
		work()
		l.Post(done)
	}()
}

func (l *Loop) Now() time.Time { return time.Now() }

// Do runs fn on the control thread and waits for it to return. It is the
// bridge for callers living on other goroutines (HTTP handlers).
func (l *Loop) Do(ctx context.Context, fn func()) error {
	select {
	case l.slots <- struct{}{}:
	case <-l.stopCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	done := make(chan struct{})
	l.enqueue(func() {
		<-l.slots
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-l.stopCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
