package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/memsvc/memory/internal/cache"
	"github.com/memsvc/memory/internal/jobs"
	"github.com/memsvc/memory/internal/memory"
	"github.com/memsvc/memory/internal/store"
)

// NewRouter builds the read-only resource surface: stats, types, tags,
// relationships, clusters, and healthz. Every mutating operation lives
// behind the stdio tool façade instead, so there is nothing here to
// authenticate against a namespace beyond the user_context query param
// each handler reads directly.
func NewRouter(
	db *store.DB,
	svc *memory.Service,
	c *cache.Tiered,
	jobsClient *jobs.Client,
	apiKey string,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	healthH := NewHealthHandler(db, c, jobsClient)
	resourceH := NewResourceHandler(svc)

	r.Get("/healthz", healthH.Health)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(apiKey))

		r.Get("/stats", resourceH.Stats)
		r.Get("/types", resourceH.Types)
		r.Get("/tags", resourceH.Tags)
		r.Get("/relationships", resourceH.Relationships)
		r.Get("/clusters", resourceH.Clusters)
	})

	return r
}
