package api

import (
	"net/http"

	"github.com/memsvc/memory/internal/cache"
	"github.com/memsvc/memory/internal/jobs"
	"github.com/memsvc/memory/internal/models"
	"github.com/memsvc/memory/internal/store"
)

// HealthHandler reports the health of every durable dependency: the
// Postgres store, the two-tier cache's remote tier, and the job queue.
type HealthHandler struct {
	db    *store.DB
	cache *cache.Tiered
	jobs  *jobs.Client
}

func NewHealthHandler(db *store.DB, c *cache.Tiered, j *jobs.Client) *HealthHandler {
	return &HealthHandler{db: db, cache: c, jobs: j}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{Status: "ok"}

	if err := h.db.Pool.Ping(r.Context()); err != nil {
		resp.Store = models.ServiceCheck{Status: "error", Message: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.Store = models.ServiceCheck{Status: "ok"}
	}

	resp.RemoteAvailable = h.cache.RemoteAvailable()
	resp.Cache = models.ServiceCheck{Status: "ok"}
	if !resp.RemoteAvailable {
		resp.Cache = models.ServiceCheck{Status: "degraded", Message: "remote tier unavailable, serving from local cache"}
	}

	if err := h.jobs.Ping(); err != nil {
		resp.Queue = models.ServiceCheck{Status: "error", Message: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.Queue = models.ServiceCheck{Status: "ok"}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
