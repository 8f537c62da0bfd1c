package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/mcrsoft/keyserve/internal/errors"
	"github.com/mcrsoft/keyserve/internal/infrastructure"
	"github.com/mcrsoft/keyserve/internal/license"
	apiv1 "github.com/mcrsoft/keyserve/pkg/contracts/api/v1"
)

// AdminHandler serves the administrative key endpoints: issuance, listing
// and revocation. The router mounts it behind the admin token middleware.
type AdminHandler struct {
	registry     *license.Registry
	validate     *validator.Validate
	logger       *slog.Logger
	maxBatchSize int
	maxGrantDays int
}

// NewAdminHandler creates an admin handler around the key registry.
func NewAdminHandler(registry *license.Registry, logger *slog.Logger, maxBatchSize, maxGrantDays int) *AdminHandler {
	return &AdminHandler{
		registry:     registry,
		validate:     validator.New(),
		logger:       logger.With(slog.String("handler", "admin")),
		maxBatchSize: maxBatchSize,
		maxGrantDays: maxGrantDays,
	}
}

// Routes returns the chi router for /api/keys.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Issue)
	r.Get("/", h.List)
	r.Delete("/{token}", h.Revoke)

	return r
}

// Issue handles POST /api/keys: generate a batch of fresh keys.
func (h *AdminHandler) Issue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	var req apiv1.KeyIssueRequest
	if err := render.Decode(r, &req); err != nil {
		render.Render(w, r, apperrors.NewValidationProblem(err.Error(), r.URL.Path, traceID))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		render.Render(w, r, apperrors.NewValidationProblem(err.Error(), r.URL.Path, traceID))
		return
	}
	if req.Count > h.maxBatchSize {
		render.Render(w, r, apperrors.NewValidationProblem(
			"count exceeds the configured batch limit", r.URL.Path, traceID))
		return
	}
	if req.Days > h.maxGrantDays {
		render.Render(w, r, apperrors.NewValidationProblem(
			"days exceeds the configured grant limit", r.URL.Path, traceID))
		return
	}

	creds, err := h.registry.Issue(ctx, req.Count, req.Days)
	if err != nil {
		h.logger.ErrorContext(ctx, "key issuance failed",
			slog.Int("count", req.Count),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apperrors.MapLicenseError(err, traceID))
		return
	}

	tokens := make([]string, len(creds))
	for i, cred := range creds {
		tokens[i] = cred.Token
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, apiv1.KeyIssueResponse{
		Keys:      tokens,
		Days:      req.Days,
		Timestamp: time.Now().UTC(),
	})
}

// List handles GET /api/keys: full credential inventory for the admin view.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	keys, err := h.registry.List(ctx)
	if err != nil {
		render.Render(w, r, apperrors.MapLicenseError(err, traceID))
		return
	}

	render.JSON(w, r, apiv1.KeyListResponse{Keys: keys, Count: len(keys)})
}

// Revoke handles DELETE /api/keys/{token}. Revocation takes the same
// per-token serialization as claiming, so it can never land mid-activation.
func (h *AdminHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)
	token := chi.URLParam(r, "token")

	if err := h.registry.Revoke(ctx, token); err != nil {
		render.Render(w, r, apperrors.MapLicenseError(err, traceID))
		return
	}

	h.logger.InfoContext(ctx, "key revoked via admin API")
	render.NoContent(w, r)
}
