package handlers

import (
	"net/http"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/httpserver/deps"
)

type buildInfo struct {
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

type healthzResponse struct {
	Status        string    `json:"status"`
	PeerID        string    `json:"peer_id,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Build         buildInfo `json:"build"`
}

// Healthz is the liveness probe. It never touches the control loop so a
// stuck loop shows up in /readyz, not here.
func Healthz(d deps.Deps) http.HandlerFunc {
	build := buildInfo{
		Version:   d.Version,
		Commit:    d.Commit,
		BuildDate: d.BuildDate,
		GoVersion: d.GoVersion,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthzResponse{
			Status:        "ok",
			PeerID:        d.PeerID,
			StartedAt:     d.StartTime.UTC(),
			UptimeSeconds: timeNow(d).Sub(d.StartTime).Seconds(),
			Build:         build,
		})
	}
}
