// Package redis provides a replication.Channel over Redis: the latest
// value of a topic is kept as a key with a TTL and every update is sent
// over Pub/Sub.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/logger"
	"github.com/MrSnakeDoc/nexus/internal/replication"
	redisstore "github.com/MrSnakeDoc/nexus/internal/store/redis"
)

// Config contains configuration options for the Redis channel.
type Config struct {
	Store *redisstore.Store
	// TTL bounds how long a value outlives its publisher.
	// Defaults to redisstore.DefaultSnapshotTTL.
	TTL    time.Duration
	Logger logger.Logger
}

// Channel implements replication.Channel over Redis.
type Channel struct {
	store  *redisstore.Store
	ttl    time.Duration
	logger logger.Logger
}

func New(cfg Config) *Channel {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = redisstore.DefaultSnapshotTTL
	}
	return &Channel{
		store:  cfg.Store,
		ttl:    ttl,
		logger: logger.Component(cfg.Logger, "replication"),
	}
}

func (c *Channel) Publish(ctx context.Context, topic string, payload []byte) error {
	return c.store.PublishSnapshot(ctx, topic, payload, c.ttl)
}

// Subscribe subscribes before reading the stored value so no update
// published in between is lost. A stale stored value may then arrive
// after a newer one; followers discard it by version.
func (c *Channel) Subscribe(ctx context.Context, topic string, fn replication.Handler) (func(), error) {
	subCtx, cancelSub := context.WithCancel(ctx)

	sub, err := c.store.SubscribeSnapshots(subCtx, topic)
	if err != nil {
		cancelSub()
		return nil, err
	}

	last, err := c.store.GetSnapshot(subCtx, topic)
	if err != nil {
		cancelSub()
		_ = sub.Close()
		return nil, fmt.Errorf("failed to read current value of %s: %w", topic, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if last != nil {
			fn(last)
		}
		ch := sub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fn([]byte(msg.Payload))
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelSub()
			if err := sub.Close(); err != nil {
				c.logger.Warn("failed to close subscription",
					logger.String("topic", topic),
					logger.Error(err))
			}
			wg.Wait()
		})
	}
	return cancel, nil
}
