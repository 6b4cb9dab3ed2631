package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/index"
	"github.com/MrSnakeDoc/nexus/internal/logger"
	redisstore "github.com/MrSnakeDoc/nexus/internal/store/redis"
)

// BanSyncer reconciles the ban list in memory with the one in Redis on
// startup, so every peer sharing the store enforces the same bans.
type BanSyncer struct {
	store  *redisstore.Store
	index  *index.MemoryIndex
	logger logger.Logger
}

// NewBanSyncer creates a new ban syncer
func NewBanSyncer(
	store *redisstore.Store,
	idx *index.MemoryIndex,
	log logger.Logger,
) *BanSyncer {
	return &BanSyncer{
		store:  store,
		index:  idx,
		logger: logger.Component(log, "ban-sync"),
	}
}

// Sync loads bans from Redis, merges them with the bans already in memory
// and pushes the ones Redis did not know about.
func (bs *BanSyncer) Sync(ctx context.Context) error {
	stored, err := bs.store.GetAllBans(ctx)
	if err != nil {
		return err
	}

	local := bs.index.GetAllBans()
	merged, missing := mergeBans(stored, local, time.Now())
	bs.index.UpdateBans(merged)

	if len(missing) > 0 {
		if err := bs.store.SaveBansMany(ctx, missing); err != nil {
			bs.logger.Warn("failed to push local bans to redis",
				logger.Int("count", len(missing)),
				logger.Error(err))
		}
	}

	bs.logger.Info("bans synced",
		logger.Int("from_redis", len(stored)),
		logger.Int("pushed", len(missing)),
		logger.Int("total", len(merged)))
	return nil
}

// mergeBans returns the union of stored and local bans, dropping expired
// ones. When both sides ban the same player the most recent ban wins.
// missing lists the bans the store has to learn about.
func mergeBans(stored []*domain.Ban, local []domain.Ban, now time.Time) (merged, missing []*domain.Ban) {
	byPlayer := make(map[string]*domain.Ban, len(stored)+len(local))
	fromStore := make(map[string]bool, len(stored))

	for _, b := range stored {
		if b == nil || b.PlayerID == "" || b.Expired(now) {
			continue
		}
		byPlayer[b.PlayerID] = b
		fromStore[b.PlayerID] = true
	}

	for i := range local {
		b := local[i]
		if b.Expired(now) {
			continue
		}
		if cur, ok := byPlayer[b.PlayerID]; ok && !b.BannedAt.After(cur.BannedAt) {
			continue
		}
		byPlayer[b.PlayerID] = &b
		fromStore[b.PlayerID] = false
	}

	merged = make([]*domain.Ban, 0, len(byPlayer))
	for id, b := range byPlayer {
		merged = append(merged, b)
		if !fromStore[id] {
			missing = append(missing, b)
		}
	}
	return merged, missing
}
