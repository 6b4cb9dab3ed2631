// Package replication carries authoritative state from the single writer
// to read-only followers. A topic holds one value at a time: followers
// receive the latest value on subscribe and every replacement after it.
package replication

import "context"

// Handler receives a published value. It runs on a goroutine owned by the
// channel; handlers must hand the value to their own thread.
type Handler func(payload []byte)

// Channel is a last-value-wins publish/subscribe transport.
type Channel interface {
	// Publish replaces the value of topic and delivers it to subscribers.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe delivers the current value of topic, if any, and every
	// later one until cancel is called or ctx is done.
	Subscribe(ctx context.Context, topic string, fn Handler) (cancel func(), err error)
}
