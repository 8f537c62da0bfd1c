package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface.
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON flattens extension members into the problem object.
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})
	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status
	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}
	for k, v := range pd.Extensions {
		data[k] = v
	}
	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error.
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension member to the problem details.
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// MapLicenseError maps domain errors to HTTP problem details. The transport
// layer is the only caller; the core never sees HTTP status codes.
func MapLicenseError(err error, traceID string) *ProblemDetails {
	instance := fmt.Sprintf("/api/license#trace-%s", traceID)

	switch {
	case errors.Is(err, ErrKeyNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			"/errors/key-not-found",
			"License Key Not Found",
			"The provided license key does not exist or has been revoked.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "KEY_NOT_FOUND")

	case errors.Is(err, ErrAccountNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			"/errors/account-not-found",
			"Account Not Found",
			"No account exists with the provided identifier.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "ACCOUNT_NOT_FOUND")

	case errors.Is(err, ErrDeviceMismatch):
		return NewProblemDetails(
			http.StatusConflict,
			"/errors/device-mismatch",
			"License Bound to a Different Device",
			"This license is already bound to another device. Contact support to transfer it.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "DEVICE_MISMATCH")

	case errors.Is(err, ErrKeyNotActivated):
		return NewProblemDetails(
			http.StatusPreconditionRequired,
			"/errors/key-not-activated",
			"License Key Not Activated",
			"This key has not been activated yet. Activate it before checking validity.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "KEY_NOT_ACTIVATED")

	case errors.Is(err, ErrKeyExpired), errors.Is(err, ErrAccountExpired):
		return NewProblemDetails(
			http.StatusForbidden,
			"/errors/license-expired",
			"License Expired",
			"The validity window of this license has passed. Redeem a new key to continue.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "LICENSE_EXPIRED")

	case errors.Is(err, ErrKeyAlreadyUsed):
		return NewProblemDetails(
			http.StatusConflict,
			"/errors/key-already-used",
			"License Key Already Used",
			"This single-use key has already been redeemed.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "KEY_ALREADY_USED")

	case errors.Is(err, ErrStorageFailure):
		return NewProblemDetails(
			http.StatusServiceUnavailable,
			"/errors/storage-failure",
			"Storage Failure",
			"A durable read or write failed. The request may be retried.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "STORAGE_FAILURE").
			WithExtension("retryable", true)

	default:
		return NewProblemDetails(
			http.StatusInternalServerError,
			"/errors/internal-error",
			"Internal Server Error",
			"An unexpected error occurred while processing your request.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "INTERNAL_ERROR")
	}
}

// NewValidationProblem reports a failed request validation.
func NewValidationProblem(detail, instance, traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusBadRequest,
		"/errors/validation-failed",
		"Request Validation Failed",
		detail,
		instance,
	).WithExtension("trace_id", traceID).
		WithExtension("error_code", "VALIDATION_FAILED")
}
