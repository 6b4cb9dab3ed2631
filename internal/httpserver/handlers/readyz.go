package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/httpserver/deps"
)

const readyTimeout = time.Second

type readyzResponse struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// Readyz reports ready once the control thread answers and, when Redis is
// configured, Redis does too.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		if err := d.Loop.Do(ctx, func() {}); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Error: "control loop: " + err.Error()})
			return
		}
		if d.RedisClient != nil {
			if err := d.RedisClient.Ping(ctx).Err(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Error: "redis: " + err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, readyzResponse{Ready: true})
	}
}
