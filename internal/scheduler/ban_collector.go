package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/index"
	"github.com/MrSnakeDoc/nexus/internal/logger"
	redisstore "github.com/MrSnakeDoc/nexus/internal/store/redis"
)

// BanCollector removes temporary bans whose time is up
type BanCollector struct {
	store    *redisstore.Store
	index    *index.MemoryIndex
	logger   logger.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
}

// NewBanCollector creates a new ban collector. store may be nil.
func NewBanCollector(
	store *redisstore.Store,
	idx *index.MemoryIndex,
	log logger.Logger,
	interval time.Duration,
) *BanCollector {
	return &BanCollector{
		store:    store,
		index:    idx,
		logger:   logger.Component(log, "ban-gc"),
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (bc *BanCollector) Start(ctx context.Context) {
	bc.Collect(ctx)

	ticker := time.NewTicker(bc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				bc.Collect(ctx)
			case <-bc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the collector
func (bc *BanCollector) Stop() {
	close(bc.stopCh)
}

// Collect purges expired bans from the index and, best effort, from the
// store. It returns the purged player IDs.
func (bc *BanCollector) Collect(ctx context.Context) []string {
	purged := bc.index.PurgeExpiredBans(bc.now())
	if len(purged) == 0 {
		bc.logger.Debug("no expired bans to collect")
		return nil
	}

	if bc.store != nil {
		for _, id := range purged {
			if err := bc.store.DeleteBan(ctx, id); err != nil {
				bc.logger.Warn("failed to delete expired ban from redis",
					logger.String("player", id),
					logger.Error(err))
			}
		}
	}

	bc.logger.Info("expired bans collected",
		logger.Int("count", len(purged)),
		logger.Strings("players", purged))
	return purged
}
