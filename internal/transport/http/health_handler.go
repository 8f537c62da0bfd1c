package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/mcrsoft/keyserve/internal/store"
	apiv1 "github.com/mcrsoft/keyserve/pkg/contracts/api/v1"
)

// HealthHandler reports liveness and storage reachability.
type HealthHandler struct {
	store   store.Store
	version string
}

// NewHealthHandler creates a health handler over the storage backend.
func NewHealthHandler(st store.Store, version string) *HealthHandler {
	return &HealthHandler{store: st, version: version}
}

// Health handles GET /api/health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := apiv1.HealthResponse{
		Status:    "ok",
		Version:   h.version,
		Storage:   "ok",
		Timestamp: time.Now().UTC(),
	}

	if err := h.store.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Storage = "unreachable"
		render.Status(r, http.StatusServiceUnavailable)
	}

	render.JSON(w, r, resp)
}
