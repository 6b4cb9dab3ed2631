package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/nexus/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nexus/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/nexus/internal/httpserver/mw"
)

func init() { Register(registerBans) }

func registerBans(r chi.Router, d deps.Deps) {
	admin := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	admin.Get("/api/bans", handlers.ListBans(d))
	admin.Post("/api/bans", handlers.CreateBan(d))
	admin.Delete("/api/bans/{id}", handlers.DeleteBan(d))
	admin.Post("/api/admission", handlers.Admission(d))
}
