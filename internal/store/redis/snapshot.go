package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultSnapshotTTL bounds how long a published state survives its
// publisher.
const DefaultSnapshotTTL = 10 * time.Minute

// PublishSnapshot stores payload as the latest state of topic and
// notifies subscribers
func (s *Store) PublishSnapshot(ctx context.Context, topic string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.SnapshotKey(topic), payload, ttl)
	pipe.Publish(ctx, s.ChannelKey(topic), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the latest state of topic, or nil when none exists
func (s *Store) GetSnapshot(ctx context.Context, topic string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.SnapshotKey(topic)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // No snapshot yet
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return data, nil
}

// SubscribeSnapshots opens a Pub/Sub subscription for topic. The caller
// owns the returned subscription and must close it.
func (s *Store) SubscribeSnapshots(ctx context.Context, topic string) (*redis.PubSub, error) {
	sub := s.client.Subscribe(ctx, s.ChannelKey(topic))
	// Wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return sub, nil
}

// DeleteSnapshot removes the stored state of topic
func (s *Store) DeleteSnapshot(ctx context.Context, topic string) error {
	if err := s.client.Del(ctx, s.SnapshotKey(topic)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
