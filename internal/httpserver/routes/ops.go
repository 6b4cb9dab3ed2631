package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/nexus/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nexus/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/nexus/internal/httpserver/mw"
)

func init() { Register(registerOps) }

// Liveness is public; readiness, the infra report and the preset reload
// are admin only.
func registerOps(r chi.Router, d deps.Deps) {
	r.Get("/healthz", handlers.Healthz(d))

	admin := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	admin.Get("/readyz", handlers.Readyz(d))
	admin.Get("/api/infra", handlers.Infra(d))
	admin.Post("/api/reload", handlers.Reload(d))
}
