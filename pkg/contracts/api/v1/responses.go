package api

import (
	"time"

	"github.com/mcrsoft/keyserve/pkg/contracts/domain"
)

// KeyIssueResponse returns the freshly generated tokens.
type KeyIssueResponse struct {
	Keys      []string  `json:"keys"`
	Days      int       `json:"days"`
	Timestamp time.Time `json:"timestamp"`
}

// KeyListResponse returns all issued credentials for the admin view.
type KeyListResponse struct {
	Keys  []domain.Credential `json:"keys"`
	Count int                 `json:"count"`
}

// LicenseActivateResponse reports a successful activation or reactivation.
type LicenseActivateResponse struct {
	Success       bool       `json:"success"`
	Message       string     `json:"message"`
	Reactivated   bool       `json:"reactivated"`
	Perpetual     bool       `json:"perpetual"`
	RemainingDays int        `json:"remaining_days"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	ActivationID  string     `json:"activation_id,omitempty"`
	TraceID       string     `json:"trace_id"`
	Timestamp     time.Time  `json:"timestamp"`
}

// LicenseCheckResponse reports the current validity of a key or account.
type LicenseCheckResponse struct {
	Valid         bool       `json:"valid"`
	Perpetual     bool       `json:"perpetual"`
	RemainingDays int        `json:"remaining_days"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	TraceID       string     `json:"trace_id"`
	Timestamp     time.Time  `json:"timestamp"`
}

// GrantExtendResponse reports the account expiry after stacking a grant.
type GrantExtendResponse struct {
	Success       bool       `json:"success"`
	Message       string     `json:"message"`
	Perpetual     bool       `json:"perpetual"`
	RemainingDays int        `json:"remaining_days"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	TraceID       string     `json:"trace_id"`
	Timestamp     time.Time  `json:"timestamp"`
}

// HealthResponse reports liveness and storage reachability.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Storage   string    `json:"storage"`
	Timestamp time.Time `json:"timestamp"`
}
