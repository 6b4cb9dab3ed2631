package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/index"
	"github.com/MrSnakeDoc/nexus/internal/logger"
	"github.com/MrSnakeDoc/nexus/internal/orchestrator"
)

type fakeStore struct {
	saved   map[string]domain.Ban
	deleted []string
	fail    error
}

func newFakeStore() *fakeStore { return &fakeStore{saved: map[string]domain.Ban{}} }

func (s *fakeStore) SaveBan(_ context.Context, ban *domain.Ban) error {
	if s.fail != nil {
		return s.fail
	}
	s.saved[ban.PlayerID] = *ban
	return nil
}

func (s *fakeStore) DeleteBan(_ context.Context, playerID string) error {
	s.deleted = append(s.deleted, playerID)
	delete(s.saved, playerID)
	return nil
}

type fixedOccupancy struct {
	count orchestrator.PlayerCount
	err   error
}

func (o fixedOccupancy) PlayerCounts(domain.SessionType) (orchestrator.PlayerCount, error) {
	return o.count, o.err
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newGate(store BanStore, occ Occupancy) (*Gate, *clock) {
	c := &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	g := NewGate(index.NewMemoryIndex(), store, occ, logger.NewNop(), Options{
		Protected: []string{"p-host", " "},
		Now:       c.Now,
	})
	return g, c
}

func TestPreLogin(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(g *Gate)
		occ     Occupancy
		player  string
		wantErr error
		wantMsg string
	}{
		{
			name:   "clean player admitted",
			occ:    fixedOccupancy{count: orchestrator.PlayerCount{Current: 1, Max: 4}},
			player: "p1",
		},
		{
			name:    "empty id",
			player:  " ",
			wantErr: domain.ErrInvalidPlayer,
		},
		{
			name:    "permanent ban",
			setup:   func(g *Gate) { _, _ = g.Ban(ctx, "p1", "cheating") },
			player:  "p1",
			wantErr: domain.ErrBanned,
			wantMsg: "You are banned: cheating",
		},
		{
			name:    "temporary ban",
			setup:   func(g *Gate) { _, _ = g.TempBan(ctx, "p1", "spam", 90*time.Second) },
			player:  "p1",
			wantErr: domain.ErrBanned,
			wantMsg: "TempBan remaining: 2 minutes. Reason: spam",
		},
		{
			name:    "session full",
			occ:     fixedOccupancy{count: orchestrator.PlayerCount{Current: 4, Max: 4}},
			player:  "p1",
			wantErr: domain.ErrSessionFull,
		},
		{
			name:   "no local session",
			occ:    fixedOccupancy{err: domain.ErrSessionNotFound},
			player: "p1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newGate(nil, tt.occ)
			if tt.setup != nil {
				tt.setup(g)
			}

			err := g.PreLogin(ctx, tt.player, domain.GameSession)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("PreLogin() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("PreLogin() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && err.Error() != tt.wantMsg {
				t.Errorf("PreLogin() message = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestExpiredBanRemovedOnCheck(t *testing.T) {
	store := newFakeStore()
	g, c := newGate(store, nil)
	ctx := context.Background()

	if _, err := g.TempBan(ctx, "p1", "spam", time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.saved["p1"]; !ok {
		t.Fatalf("ban not persisted")
	}

	c.now = c.now.Add(time.Minute)
	if err := g.PreLogin(ctx, "p1", domain.GameSession); err != nil {
		t.Errorf("PreLogin() after expiry = %v", err)
	}
	if len(g.List()) != 0 || len(store.deleted) != 1 {
		t.Errorf("expired ban kept: list=%v deleted=%v", g.List(), store.deleted)
	}
}

func TestProtectedPlayersCannotBeBanned(t *testing.T) {
	g, _ := newGate(nil, nil)
	g.Protect("p-local")
	ctx := context.Background()

	for _, id := range []string{"p-host", "p-local"} {
		if _, err := g.Ban(ctx, id, "x"); !errors.Is(err, domain.ErrProtectedBan) {
			t.Errorf("Ban(%s) error = %v, want ErrProtectedBan", id, err)
		}
	}
	if _, err := g.Ban(ctx, " ", "x"); !errors.Is(err, domain.ErrInvalidPlayer) {
		t.Errorf("Ban(blank) error = %v, want ErrInvalidPlayer", err)
	}
}

func TestUnban(t *testing.T) {
	store := newFakeStore()
	g, _ := newGate(store, nil)
	ctx := context.Background()

	_, _ = g.Ban(ctx, "p1", "cheating")
	if err := g.Unban(ctx, "p1"); err != nil {
		t.Fatalf("Unban() error = %v", err)
	}
	if err := g.PreLogin(ctx, "p1", domain.GameSession); err != nil {
		t.Errorf("PreLogin() after Unban = %v", err)
	}
	if err := g.Unban(ctx, "p1"); !errors.Is(err, domain.ErrBanNotFound) {
		t.Errorf("second Unban() error = %v, want ErrBanNotFound", err)
	}
}

func TestStoreFailureKeepsBan(t *testing.T) {
	store := newFakeStore()
	store.fail = errors.New("connection refused")
	g, _ := newGate(store, nil)
	ctx := context.Background()

	if _, err := g.Ban(ctx, "p1", "cheating"); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}
	if err := g.PreLogin(ctx, "p1", domain.GameSession); !errors.Is(err, domain.ErrBanned) {
		t.Errorf("PreLogin() = %v, want banned", err)
	}
}

func TestTempBanRejectsNonPositiveDuration(t *testing.T) {
	g, _ := newGate(nil, nil)
	if _, err := g.TempBan(context.Background(), "p1", "x", 0); err == nil {
		t.Errorf("TempBan(0) succeeded")
	}
}
