package index

import (
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/filter"
)

// MemoryIndex holds the ban list and the filter presets of this process.
// Bans are mirrored to Redis when it is configured; the index stays the
// source for every lookup.
type MemoryIndex struct {
	mu               sync.RWMutex
	bans             map[string]*domain.Ban    // player ID -> Ban
	presets          map[string]*filter.Preset // name -> Preset
	lastPresetReload time.Time                 // Timestamp of last presets reload
	lastBanSync      time.Time                 // Timestamp of last ban sync with the store
}

// NewMemoryIndex creates a new memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		bans:    make(map[string]*domain.Ban),
		presets: make(map[string]*filter.Preset),
	}
}

// ─────────────────────────────────────────────────────────────────
// Ban methods
// ─────────────────────────────────────────────────────────────────

// UpdateBans replaces all bans in the index
func (idx *MemoryIndex) UpdateBans(bans []*domain.Ban) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.bans = make(map[string]*domain.Ban, len(bans))
	for _, ban := range bans {
		if ban == nil || ban.PlayerID == "" {
			continue
		}
		b := *ban
		idx.bans[ban.PlayerID] = &b
	}
	idx.lastBanSync = time.Now()
}

// GetBan returns a copy of the ban on playerID
func (idx *MemoryIndex) GetBan(playerID string) (domain.Ban, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ban, ok := idx.bans[playerID]
	if !ok {
		return domain.Ban{}, false
	}
	return *ban, true
}

// GetAllBans returns copies of every ban, oldest first
func (idx *MemoryIndex) GetAllBans() []domain.Ban {
	idx.mu.RLock()
	bans := make([]domain.Ban, 0, len(idx.bans))
	for _, ban := range idx.bans {
		bans = append(bans, *ban)
	}
	idx.mu.RUnlock()

	sort.Slice(bans, func(i, j int) bool {
		if bans[i].BannedAt.Equal(bans[j].BannedAt) {
			return bans[i].PlayerID < bans[j].PlayerID
		}
		return bans[i].BannedAt.Before(bans[j].BannedAt)
	})
	return bans
}

// AddBan adds or replaces the ban on ban.PlayerID
func (idx *MemoryIndex) AddBan(ban domain.Ban) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.bans[ban.PlayerID] = &ban
}

// DeleteBan removes a ban and reports whether it existed
func (idx *MemoryIndex) DeleteBan(playerID string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	_, ok := idx.bans[playerID]
	delete(idx.bans, playerID)
	return ok
}

// PurgeExpiredBans drops temporary bans that ended before now and
// returns the affected player IDs
func (idx *MemoryIndex) PurgeExpiredBans(now time.Time) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var purged []string
	for id, ban := range idx.bans {
		if ban.Expired(now) {
			delete(idx.bans, id)
			purged = append(purged, id)
		}
	}
	sort.Strings(purged)
	return purged
}

// BanCount returns the number of bans in the index
func (idx *MemoryIndex) BanCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.bans)
}

// GetLastBanSync returns the timestamp of the last ban sync
func (idx *MemoryIndex) GetLastBanSync() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.lastBanSync
}

// ─────────────────────────────────────────────────────────────────
// Preset methods
// ─────────────────────────────────────────────────────────────────

// UpdatePresets replaces all presets in the index
func (idx *MemoryIndex) UpdatePresets(presets []*filter.Preset) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	// Clear and rebuild
	idx.presets = make(map[string]*filter.Preset, len(presets))
	for _, preset := range presets {
		idx.presets[preset.Name] = preset
	}
	idx.lastPresetReload = time.Now()
}

// GetPreset retrieves a preset by name. Presets are shared: callers pass
// them to filter.Resolve, which never mutates them.
func (idx *MemoryIndex) GetPreset(name string) (*filter.Preset, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	preset, ok := idx.presets[name]
	return preset, ok
}

// GetAllPresets returns all presets ordered by name
func (idx *MemoryIndex) GetAllPresets() []*filter.Preset {
	idx.mu.RLock()
	presets := make([]*filter.Preset, 0, len(idx.presets))
	for _, preset := range idx.presets {
		presets = append(presets, preset)
	}
	idx.mu.RUnlock()

	sort.Slice(presets, func(i, j int) bool { return presets[i].Name < presets[j].Name })
	return presets
}

// PresetCount returns the number of presets in the index
func (idx *MemoryIndex) PresetCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.presets)
}

// GetLastPresetReload returns the timestamp of the last presets reload
func (idx *MemoryIndex) GetLastPresetReload() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.lastPresetReload
}
