package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/mcrsoft/keyserve/internal/errors"
	"github.com/mcrsoft/keyserve/internal/infrastructure"
	"github.com/mcrsoft/keyserve/internal/license"
	apiv1 "github.com/mcrsoft/keyserve/pkg/contracts/api/v1"
)

// LicenseHandler serves the client-facing license endpoints: activation,
// validity checks and grant extension.
type LicenseHandler struct {
	engine   *license.Engine
	validate *validator.Validate
	logger   *slog.Logger
}

// NewLicenseHandler creates a license handler around the activation engine.
func NewLicenseHandler(engine *license.Engine, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		engine:   engine,
		validate: validator.New(),
		logger:   logger.With(slog.String("handler", "license")),
	}
}

// Routes returns the chi router for /api/license.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Timeout(15 * time.Second))

	r.Post("/activate", h.Activate)
	r.Get("/check", h.Check)
	r.Post("/extend", h.Extend)

	return r
}

// Activate handles POST /api/license/activate.
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	var req apiv1.LicenseActivateRequest
	if err := render.Decode(r, &req); err != nil {
		render.Render(w, r, apperrors.NewValidationProblem(err.Error(), r.URL.Path, traceID))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		render.Render(w, r, apperrors.NewValidationProblem(err.Error(), r.URL.Path, traceID))
		return
	}

	result, err := h.engine.Activate(ctx, req.Key, req.Device)
	if err != nil {
		h.logger.WarnContext(ctx, "activation rejected",
			slog.String("key", maskKey(req.Key)),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apperrors.MapLicenseError(err, traceID))
		return
	}

	message := "License activated. Validity clock started."
	if result.Reactivated {
		message = "License already active on this device."
	}

	render.JSON(w, r, apiv1.LicenseActivateResponse{
		Success:       true,
		Message:       message,
		Reactivated:   result.Reactivated,
		Perpetual:     result.Perpetual,
		RemainingDays: result.RemainingDays,
		ExpiresAt:     result.ExpiresAt,
		ActivationID:  result.ActivationID,
		TraceID:       traceID,
		Timestamp:     time.Now().UTC(),
	})
}

// Check handles GET /api/license/check. Exactly one of key or account must
// be supplied alongside device; the check never mutates state.
func (h *LicenseHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	key := r.URL.Query().Get("key")
	accountID := r.URL.Query().Get("account")
	device := r.URL.Query().Get("device")

	if device == "" || (key == "") == (accountID == "") {
		render.Render(w, r, apperrors.NewValidationProblem(
			"exactly one of key or account is required, together with device",
			r.URL.Path, traceID))
		return
	}

	var (
		result *license.ValidityResult
		err    error
	)
	if key != "" {
		result, err = h.engine.CheckKey(ctx, key, device)
	} else {
		result, err = h.engine.CheckAccount(ctx, accountID, device)
	}
	if err != nil {
		render.Render(w, r, apperrors.MapLicenseError(err, traceID))
		return
	}

	render.JSON(w, r, apiv1.LicenseCheckResponse{
		Valid:         true,
		Perpetual:     result.Perpetual,
		RemainingDays: result.RemainingDays,
		ExpiresAt:     result.ExpiresAt,
		TraceID:       traceID,
		Timestamp:     time.Now().UTC(),
	})
}

// Extend handles POST /api/license/extend: the explicit stacking operation
// that redeems a fresh key against an account.
func (h *LicenseHandler) Extend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	var req apiv1.GrantExtendRequest
	if err := render.Decode(r, &req); err != nil {
		render.Render(w, r, apperrors.NewValidationProblem(err.Error(), r.URL.Path, traceID))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		render.Render(w, r, apperrors.NewValidationProblem(err.Error(), r.URL.Path, traceID))
		return
	}

	result, err := h.engine.ExtendGrant(ctx, req.AccountID, req.Key, req.Device)
	if err != nil {
		h.logger.WarnContext(ctx, "grant extension rejected",
			slog.String("account_id", req.AccountID),
			slog.String("key", maskKey(req.Key)),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apperrors.MapLicenseError(err, traceID))
		return
	}

	message := "Grant extended."
	if !result.Extended {
		message = "Key already redeemed; current grant unchanged."
	}

	render.JSON(w, r, apiv1.GrantExtendResponse{
		Success:       true,
		Message:       message,
		Perpetual:     result.Perpetual,
		RemainingDays: result.RemainingDays,
		ExpiresAt:     result.ExpiresAt,
		TraceID:       traceID,
		Timestamp:     time.Now().UTC(),
	})
}

// maskKey hides the bulk of a license key in logs, keeping just enough for
// correlation.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
