// Package admission decides whether a player may enter the hosted
// session: banned players and players arriving at a full session are
// turned away.
package admission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/index"
	"github.com/MrSnakeDoc/nexus/internal/logger"
	"github.com/MrSnakeDoc/nexus/internal/orchestrator"
)

const storeTimeout = 2 * time.Second

// BanStore persists bans beyond the process. *redis.Store implements it.
type BanStore interface {
	SaveBan(ctx context.Context, ban *domain.Ban) error
	DeleteBan(ctx context.Context, playerID string) error
}

// Occupancy reports how full a local session is.
type Occupancy interface {
	PlayerCounts(t domain.SessionType) (orchestrator.PlayerCount, error)
}

// BanError rejects a banned player. It matches domain.ErrBanned.
type BanError struct {
	Ban       domain.Ban
	Remaining int // minutes, 0 for permanent bans
}

func (e *BanError) Error() string {
	if e.Ban.Permanent() {
		return "You are banned: " + e.Ban.Reason
	}
	return fmt.Sprintf("TempBan remaining: %d minutes. Reason: %s", e.Remaining, e.Ban.Reason)
}

func (e *BanError) Unwrap() error { return domain.ErrBanned }

// Options configures a Gate.
type Options struct {
	// Protected players can never be banned.
	Protected []string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Gate admits or rejects players. Bans live in the memory index; the store
// is optional and written best effort. Methods must be called on the
// control thread.
type Gate struct {
	index     *index.MemoryIndex
	store     BanStore
	occupancy Occupancy
	protected map[string]struct{}
	now       func() time.Time
	logger    logger.Logger
}

func NewGate(idx *index.MemoryIndex, store BanStore, occ Occupancy, log logger.Logger, opts Options) *Gate {
	g := &Gate{
		index:     idx,
		store:     store,
		occupancy: occ,
		protected: make(map[string]struct{}, len(opts.Protected)),
		now:       opts.Now,
		logger:    logger.Component(log, "admission"),
	}
	if g.now == nil {
		g.now = time.Now
	}
	for _, id := range opts.Protected {
		if id = strings.TrimSpace(id); id != "" {
			g.protected[id] = struct{}{}
		}
	}
	return g
}

// Protect adds playerID to the players that cannot be banned.
func (g *Gate) Protect(playerID string) {
	if playerID != "" {
		g.protected[playerID] = struct{}{}
	}
}

// PreLogin checks playerID before it joins the local session of type t.
// It returns a *BanError for banned players and domain.ErrSessionFull
// when the session has no room left.
func (g *Gate) PreLogin(ctx context.Context, playerID string, t domain.SessionType) error {
	if strings.TrimSpace(playerID) == "" {
		return domain.ErrInvalidPlayer
	}

	if ban, ok := g.activeBan(ctx, playerID); ok {
		err := &BanError{Ban: ban, Remaining: ban.RemainingMinutes(g.now())}
		g.logger.Info("login rejected: banned",
			logger.String("player", playerID),
			logger.Bool("permanent", ban.Permanent()),
			logger.Int("remaining_minutes", err.Remaining))
		return err
	}

	if g.occupancy != nil {
		pc, err := g.occupancy.PlayerCounts(t)
		if err == nil && pc.Max > 0 && pc.Current >= pc.Max {
			g.logger.Info("login rejected: session full",
				logger.String("player", playerID),
				logger.Int("current", pc.Current),
				logger.Int("max", pc.Max))
			return domain.ErrSessionFull
		}
	}
	return nil
}

// activeBan returns the ban on playerID unless there is none or it has
// expired, in which case it is removed.
func (g *Gate) activeBan(ctx context.Context, playerID string) (domain.Ban, bool) {
	ban, ok := g.index.GetBan(playerID)
	if !ok {
		return domain.Ban{}, false
	}
	if !ban.Expired(g.now()) {
		return ban, true
	}
	g.index.DeleteBan(playerID)
	g.deleteStored(ctx, playerID)
	g.logger.Info("expired ban removed", logger.String("player", playerID))
	return domain.Ban{}, false
}

// Ban bans playerID permanently.
func (g *Gate) Ban(ctx context.Context, playerID, reason string) (domain.Ban, error) {
	return g.ban(ctx, playerID, reason, 0)
}

// TempBan bans playerID for d.
func (g *Gate) TempBan(ctx context.Context, playerID, reason string, d time.Duration) (domain.Ban, error) {
	if d <= 0 {
		return domain.Ban{}, fmt.Errorf("temporary ban needs a positive duration, got %s", d)
	}
	return g.ban(ctx, playerID, reason, d)
}

func (g *Gate) ban(ctx context.Context, playerID, reason string, d time.Duration) (domain.Ban, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return domain.Ban{}, domain.ErrInvalidPlayer
	}
	if _, ok := g.protected[playerID]; ok {
		return domain.Ban{}, fmt.Errorf("%w: %s", domain.ErrProtectedBan, playerID)
	}

	now := g.now()
	ban := domain.Ban{PlayerID: playerID, Reason: reason, BannedAt: now}
	if d > 0 {
		ban.ExpiresAt = now.Add(d)
	}
	g.index.AddBan(ban)

	if g.store != nil {
		sctx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		if err := g.store.SaveBan(sctx, &ban); err != nil {
			g.logger.Warn("failed to persist ban, kept in memory",
				logger.String("player", playerID),
				logger.Error(err))
		}
	}

	g.logger.Info("player banned",
		logger.String("player", playerID),
		logger.String("reason", reason),
		logger.Duration("duration", d))
	return ban, nil
}

// Unban lifts the ban on playerID.
func (g *Gate) Unban(ctx context.Context, playerID string) error {
	if !g.index.DeleteBan(playerID) {
		return fmt.Errorf("%w: %s", domain.ErrBanNotFound, playerID)
	}
	g.deleteStored(ctx, playerID)
	g.logger.Info("player unbanned", logger.String("player", playerID))
	return nil
}

// List returns the bans still in force.
func (g *Gate) List() []domain.Ban {
	now := g.now()
	all := g.index.GetAllBans()
	out := all[:0]
	for _, b := range all {
		if !b.Expired(now) {
			out = append(out, b)
		}
	}
	return out
}

func (g *Gate) deleteStored(ctx context.Context, playerID string) {
	if g.store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := g.store.DeleteBan(sctx, playerID); err != nil && !errors.Is(err, domain.ErrBanNotFound) {
		g.logger.Warn("failed to delete ban from store",
			logger.String("player", playerID),
			logger.Error(err))
	}
}
