package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/nexus/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nexus/internal/peer"
)

// Registry returns the player registry as this peer sees it.
func Registry(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := read(r.Context(), d.Loop, func() peer.RegistryView { return d.Peer.Registry() })
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}
