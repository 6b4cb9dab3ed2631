package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/nexus/internal/config"
	"github.com/MrSnakeDoc/nexus/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nexus/internal/logger"
	"github.com/MrSnakeDoc/nexus/internal/migration"
	"github.com/MrSnakeDoc/nexus/internal/world"
)

// migrationConfigView mirrors the migration file layout: delays in seconds.
type migrationConfigView struct {
	Enabled              bool    `json:"enabled"`
	MaxRetries           int     `json:"max_retries"`
	ClientSearchInterval float64 `json:"client_search_interval"`
	ClientRetryDelay     float64 `json:"client_retry_delay"`
	JoinFailureDelay     float64 `json:"join_failure_delay"`
	HostRecoveryRetries  int     `json:"host_recovery_retries"`
	HostRetryDelay       float64 `json:"host_retry_delay"`
}

func viewMigrationConfig(c config.MigrationConfig) migrationConfigView {
	return migrationConfigView{
		Enabled:              c.Enabled,
		MaxRetries:           c.MaxRetries,
		ClientSearchInterval: c.ClientSearchInterval.Seconds(),
		ClientRetryDelay:     c.ClientRetryDelay.Seconds(),
		JoinFailureDelay:     c.JoinFailureDelay.Seconds(),
		HostRecoveryRetries:  c.HostRecoveryRetries,
		HostRetryDelay:       c.HostRetryDelay.Seconds(),
	}
}

type migrationResponse struct {
	Status     migration.Status    `json:"status"`
	NetMode    string              `json:"net_mode"`
	Config     migrationConfigView `json:"config"`
	ConfigFile string              `json:"config_file,omitempty"`
}

func migrationView(d deps.Deps) migrationResponse {
	return migrationResponse{
		Status:     d.Peer.Migration().Snapshot(),
		NetMode:    d.Peer.World().NetMode().String(),
		Config:     viewMigrationConfig(d.Migration.Migration()),
		ConfigFile: d.MigrationFile,
	}
}

// MigrationStatus reports the recovery state machine and its settings.
func MigrationStatus(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := read(r.Context(), d.Loop, func() migrationResponse { return migrationView(d) })
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type heirRequest struct {
	PlayerID string `json:"player_id"`
}

// SetHeir overrides the elected heir until the registry publishes again.
func SetHeir(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req heirRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
			return
		}
		resp, err := read(r.Context(), d.Loop, func() migrationResponse {
			d.Peer.Migration().SetHeir(strings.TrimSpace(req.PlayerID))
			return migrationView(d)
		})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type failureRequest struct {
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
}

type failureResponse struct {
	Started bool `json:"started"`
	migrationResponse
}

// ReportFailure injects a network failure as if the transport raised it.
func ReportFailure(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req failureRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
			return
		}
		kind, err := world.ParseFailureKind(req.Kind)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		resp, err := read(r.Context(), d.Loop, func() failureResponse {
			before := d.Peer.Migration().Snapshot()
			d.Peer.ReportFailure(world.Failure{Kind: kind, Message: req.Message})
			after := migrationView(d)
			started := after.Status.InFlight || after.Status.LastFailure != before.LastFailure
			return failureResponse{Started: started, migrationResponse: after}
		})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}

		d.Logger.Info("network failure reported via endpoint",
			logger.String("kind", kind.String()),
			logger.Bool("recovery_started", resp.Started),
			logger.String("remote_ip", r.RemoteAddr))
		writeJSON(w, http.StatusOK, resp)
	}
}

// MarkLeave flags the next network failure as an intentional leave.
func MarkLeave(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := read(r.Context(), d.Loop, func() migrationResponse {
			d.Peer.Migration().MarkIntentionalLeave()
			return migrationView(d)
		})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
