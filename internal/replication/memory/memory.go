// Package memory provides an in-process replication.Channel. Values are
// delivered synchronously on the publishing goroutine.
package memory

import (
	"context"
	"sync"

	"github.com/MrSnakeDoc/nexus/internal/replication"
)

type topic struct {
	last     []byte
	has      bool
	nextID   int
	handlers map[int]replication.Handler
	order    []int
}

// Channel implements replication.Channel in memory.
type Channel struct {
	mu     sync.Mutex
	topics map[string]*topic
}

func New() *Channel {
	return &Channel{topics: make(map[string]*topic)}
}

func (c *Channel) topicLocked(name string) *topic {
	t, ok := c.topics[name]
	if !ok {
		t = &topic{handlers: make(map[int]replication.Handler)}
		c.topics[name] = t
	}
	return t
}

func (c *Channel) Publish(ctx context.Context, name string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := append([]byte(nil), payload...)

	c.mu.Lock()
	t := c.topicLocked(name)
	t.last = data
	t.has = true
	fns := make([]replication.Handler, 0, len(t.order))
	for _, id := range t.order {
		fns = append(fns, t.handlers[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(append([]byte(nil), data...))
	}
	return nil
}

func (c *Channel) Subscribe(ctx context.Context, name string, fn replication.Handler) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	t := c.topicLocked(name)
	t.nextID++
	id := t.nextID
	t.handlers[id] = fn
	t.order = append(t.order, id)
	last, has := append([]byte(nil), t.last...), t.has
	c.mu.Unlock()

	var once sync.Once
	stop := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(stop)
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(t.handlers, id)
			for i, v := range t.order {
				if v == id {
					t.order = append(t.order[:i], t.order[i+1:]...)
					break
				}
			}
		})
	}
	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				cancel()
			case <-stop:
			}
		}()
	}

	if has {
		fn(last)
	}
	return cancel, nil
}

// Subscribers reports the number of live subscriptions on a topic.
func (c *Channel) Subscribers(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.topics[name]; ok {
		return len(t.order)
	}
	return 0
}
