package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/nexus/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nexus/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/nexus/internal/httpserver/mw"
)

func init() { Register(registerSessions) }

func registerSessions(r chi.Router, d deps.Deps) {
	limited := r.With(mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.SearchBurst,
		RefillPerIPPerMin: d.SearchRefillPerMin,
		MaxEntries:        10000,
		TrustProxy:        d.TrustProxy,
		Scope:             handlers.SearchScope,
		Cost:              handlers.SearchCost,
		Logger:            d.Logger,
	}))
	limited.Get("/api/sessions/search", handlers.SearchSessions(d))

	admin := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	admin.Post("/api/sessions", handlers.CreateSession(d))
	admin.Post("/api/sessions/join", handlers.JoinSession(d))
	admin.Get("/api/sessions/{type}", handlers.GetSession(d))
	admin.Delete("/api/sessions/{type}", handlers.DestroySession(d))
}
