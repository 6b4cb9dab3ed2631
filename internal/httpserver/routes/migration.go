package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/nexus/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nexus/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/nexus/internal/httpserver/mw"
)

func init() {
	Register(registerMigration)
	Register(registerSessionRegistry)
}

func registerMigration(r chi.Router, d deps.Deps) {
	r.Route("/api/migration", func(sub chi.Router) {
		sub.Use(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
		sub.Get("/", handlers.MigrationStatus(d))
		sub.Post("/heir", handlers.SetHeir(d))
		sub.Post("/failure", handlers.ReportFailure(d))
		sub.Post("/leave", handlers.MarkLeave(d))
	})
}

func registerSessionRegistry(r chi.Router, d deps.Deps) {
	r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger)).Get("/api/registry", handlers.Registry(d))
}
