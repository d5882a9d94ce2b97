package controlplane

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/AlfredDev/orchestratord/internal/config"
)

// NewRouter builds the daemon's HTTP surface: the endpoint map from
// spec.md §4.9/§6 behind the full middleware chain. Grounded on
// router/router.go's chain ordering (CORS → security headers →
// request ID → recovery → logger → body limit, then route-scoped
// auth/rate-limit/timeout under an authenticated subtree), adapted
// from the teacher's "/v1" LLM-proxy routes to this daemon's "/api"
// stats/knowledge routes.
func NewRouter(cfg *config.Config, logger zerolog.Logger, deps Deps) http.Handler {
	h := &handlers{deps: deps}
	mw := newMiddlewares(logger, cfg.APIToken, cfg.RateLimitEnabled, cfg.RateLimitRPM, cfg.RateLimitBurst, cfg.MaxBodyBytes, cfg.RequestTimeout)

	r := chi.NewRouter()
	r.Use(corsAndSecurityHeaders)
	r.Use(chimw.RequestID)
	r.Use(recoverer(logger))
	r.Use(requestLogger(logger))
	r.Use(maxBodySize(cfg.MaxBodyBytes))

	// /health is unauthenticated liveness (spec.md §4.9).
	r.Get("/health", h.health)

	// API discoverability is ambient, not gated behind the bearer
	// token, matching handler/openapi.go's unauthenticated /docs.
	r.Get("/openapi.json", openAPIHandler())
	r.Get("/docs", swaggerUIHandler())

	r.Route("/api", func(api chi.Router) {
		api.Use(bearerAuth(cfg.APIToken))
		api.Use(mw.rateLimit)
		api.Use(requestTimeout(mw.timeout))

		api.Get("/stats", h.stats)
		api.Get("/stats/projects", h.statsByProject)
		api.Get("/stream", h.stream)

		api.Route("/knowledge", func(kr chi.Router) {
			kr.Post("/store", h.knowledgeStore)
			kr.Post("/store/batch", h.knowledgeBatchStore)
			kr.Get("/search", h.knowledgeSearch)
			kr.Post("/query", h.knowledgeQuery)
			kr.Get("/stats", h.knowledgeStats)
			kr.Get("/health", h.knowledgeHealth)
			kr.Delete("/cleanup", h.knowledgeCleanup)
			kr.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
				h.knowledgeGetByID(w, r, chi.URLParam(r, "id"))
			})
		})
	})

	return r
}

// recoverer renders a panic as the opaque-correlation-id 500 spec.md
// §7 names, instead of chi's default recoverer (which writes a bare
// 500 with no JSON body) — grounded on the same "Recoverer" slot in
// router.go's chain, replacing chi's built-in with one that speaks
// this daemon's wire error shape.
func recoverer(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					id := newCorrelationID()
					logger.Error().
						Interface("panic", rec).
						Str("correlation_id", id).
						Str("path", r.URL.Path).
						Msg("panic recovered in http handler")
					writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error", map[string]any{
						"correlation_id": id,
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
