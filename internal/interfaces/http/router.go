package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/internal/interfaces/http/handlers"
	"github.com/turtacn/OpenAD-Plugins/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware of the route tree.
// Nil handlers leave their routes unmounted.
type RouterConfig struct {
	HealthHandler     *handlers.HealthHandler
	RXNHandler        *handlers.RXNHandler
	DeepSearchHandler *handlers.DeepSearchHandler

	Auth    *middleware.APIKeyAuth
	Logging middleware.LoggingConfig
	Metrics middleware.HTTPMetrics
	// MetricsHandler serves /metrics when non-nil.
	MetricsHandler http.Handler

	Logger logging.Logger
}

// NewRouter builds the route tree: public health checks and metrics, and the
// key-protected /api/v1 groups.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogging(log.Named("http"), cfg.Logging, cfg.Metrics))
	r.Use(chimw.Recoverer)

	if h := cfg.HealthHandler; h != nil {
		r.Get("/healthz", h.Liveness)
		r.Get("/healthz/detail", h.Detailed)
		r.Get("/readyz", h.Readiness)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		if cfg.Auth != nil {
			api.Use(cfg.Auth.Handler)
		}
		registerRXNRoutes(api, cfg.RXNHandler)
		registerDeepSearchRoutes(api, cfg.DeepSearchHandler)
	})
	return r
}

func registerRXNRoutes(r chi.Router, h *handlers.RXNHandler) {
	if h == nil {
		return
	}
	r.Route("/rxn", func(rr chi.Router) {
		rr.Post("/predictions/reactions", h.PredictReactions)
		rr.Post("/predictions/retro", h.PredictRetro)
		rr.Post("/batches", h.EnqueueBatch)
		rr.Get("/models", h.ListModels)
		rr.Post("/recipes", h.InterpretRecipe)
		rr.Delete("/cache", h.ClearCache)
	})
}

func registerDeepSearchRoutes(r chi.Router, h *handlers.DeepSearchHandler) {
	if h == nil {
		return
	}
	r.Route("/ds", func(dr chi.Router) {
		dr.Get("/collections", h.ListCollections)
		dr.Get("/collections/containing", h.CollectionsContaining)
		dr.Get("/collections/{collection}", h.CollectionDetails)
		dr.Get("/domains", h.ListDomains)
		dr.Post("/search", h.Search)
		dr.Get("/molecules/similar", h.FindSimilar)
		dr.Get("/molecules/substructure", h.FindSubstructure)
		dr.Get("/patents", h.PatentsContaining)
		dr.Post("/patents/molecules", h.MoleculesInPatents)
	})
}
