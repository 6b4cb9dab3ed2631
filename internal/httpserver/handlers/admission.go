package handlers

import (
	"fmt"
	"net/http"

	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nexus/internal/logger"
)

type admissionRequest struct {
	PlayerID    string `json:"player_id"`
	SessionType string `json:"session_type,omitempty"`
}

type admissionResponse struct {
	Admitted bool   `json:"admitted"`
	Reason   string `json:"reason,omitempty"`
}

// Admission runs the pre-login checks for a player about to join the
// local session.
func Admission(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req admissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
			return
		}
		t, err := domain.ParseSessionType(req.SessionType)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		ctx := r.Context()
		rejected, err := read(ctx, d.Loop, func() error { return d.Gate.PreLogin(ctx, req.PlayerID, t) })
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if rejected != nil {
			d.Logger.Debug("admission refused",
				logger.String("player", req.PlayerID),
				logger.Error(rejected))
			writeJSON(w, statusFor(rejected), admissionResponse{Admitted: false, Reason: rejected.Error()})
			return
		}
		writeJSON(w, http.StatusOK, admissionResponse{Admitted: true})
	}
}
