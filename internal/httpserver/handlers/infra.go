package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/httpserver/deps"
)

type componentStatus struct {
	OK         bool   `json:"ok"`
	Loaded     *int   `json:"loaded,omitempty"`
	LastReload string `json:"last_reload,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Impact     string `json:"impact,omitempty"`
	Error      string `json:"error,omitempty"`
}

type infraResponse struct {
	PeerID     string                     `json:"peer_id"`
	NetMode    string                     `json:"net_mode"`
	State      string                     `json:"state"`
	Components map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		components := map[string]componentStatus{
			"presets": presetStatus(d),
			"bans":    banStatus(d),
			"redis":   checkRedis(ctx, d),
		}

		type loopView struct {
			netMode string
			phase   string
		}
		view, err := read(ctx, d.Loop, func() loopView {
			return loopView{
				netMode: d.Peer.World().NetMode().String(),
				phase:   d.Peer.Migration().Phase().String(),
			}
		})
		if err != nil {
			components["control_loop"] = componentStatus{OK: false, Error: err.Error()}
		} else {
			components["control_loop"] = componentStatus{OK: true}
			cfg := d.Migration.Migration()
			mode := "disabled"
			if cfg.Enabled {
				mode = view.phase
			}
			components["migration"] = componentStatus{OK: true, Mode: mode}
		}

		writeJSON(w, http.StatusOK, infraResponse{
			PeerID:     d.PeerID,
			NetMode:    view.netMode,
			State:      determineState(components),
			Components: components,
		})
	}
}

func presetStatus(d deps.Deps) componentStatus {
	if d.PresetFile == "" {
		return componentStatus{OK: true, Mode: "disabled"}
	}
	count := d.MemoryIndex.PresetCount()
	return componentStatus{
		OK:         count > 0,
		Loaded:     &count,
		LastReload: formatTime(d.MemoryIndex.GetLastPresetReload()),
		Mode:       "file",
	}
}

func banStatus(d deps.Deps) componentStatus {
	count := d.MemoryIndex.BanCount()
	mode := "memory"
	if d.RedisClient != nil {
		mode = "redis"
	}
	return componentStatus{
		OK:         true,
		Loaded:     &count,
		LastReload: formatTime(d.MemoryIndex.GetLastBanSync()),
		Mode:       mode,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04:05")
}

// determineState is "critical" when the control loop is down, "degraded"
// when a supporting component is, and "operational" otherwise.
func determineState(components map[string]componentStatus) string {
	if c, ok := components["control_loop"]; ok && !c.OK {
		return "critical"
	}
	for _, c := range components {
		if !c.OK {
			return "degraded"
		}
	}
	return "operational"
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if d.RedisClient == nil {
		return componentStatus{
			OK:     true,
			Mode:   "disabled",
			Impact: "bans-and-registry-local-only",
		}
	}

	if err := d.RedisClient.Ping(ctx).Err(); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "bans-not-shared",
			Error:  err.Error(),
		}
	}

	return componentStatus{
		OK:   true,
		Mode: "shared",
	}
}
