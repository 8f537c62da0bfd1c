// Package domain contains the core domain models for the MCR license server.
// These types are the single source of truth shared by the registry, the
// activation engine, the storage adapters, and the HTTP transport.
package domain

import (
	"time"
)

// KeyState represents the stored lifecycle state of a credential.
// Expiry is never a stored state: it is derived at read time by comparing
// ExpiresAt against the current clock.
type KeyState string

const (
	// KeyStateIssued is the initial state of a freshly generated credential.
	KeyStateIssued KeyState = "issued"
	// KeyStateActivated means the credential is bound to exactly one device.
	KeyStateActivated KeyState = "activated"
)

// Credential is a single-use license key. Token and GrantDays are immutable
// after issuance. BoundDevice, ActivatedAt, ActivationID and ExpiresAt are
// set together, exactly once, by the registry's atomic claim operation.
type Credential struct {
	Token        string     `json:"token" db:"token"`
	GrantDays    int        `json:"grant_days" db:"grant_days"`
	State        KeyState   `json:"state" db:"state"`
	BoundDevice  string     `json:"bound_device,omitempty" db:"bound_device"`
	ActivationID string     `json:"activation_id,omitempty" db:"activation_id"`
	IssuedAt     time.Time  `json:"issued_at" db:"issued_at"`
	ActivatedAt  *time.Time `json:"activated_at,omitempty" db:"activated_at"`
	// ExpiresAt is nil until activation, and stays nil after activation for a
	// perpetual grant (GrantDays == 0).
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
}

// Perpetual reports whether the credential confers an unlimited grant window.
func (c Credential) Perpetual() bool {
	return c.GrantDays == 0
}

// ExpiredAt reports whether the credential's validity window has passed at
// the given instant. Unactivated and perpetual credentials never expire.
func (c Credential) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// Account is the caller-level entity a credential can be redeemed against.
// Accounts are created by the signup flow (outside this server); the engine
// mutates them only through the named extend-grant operation.
//
// A fresh account has no expiry and no perpetual flag: it carries no grant
// at all until a credential is redeemed against it. Redeeming a zero-day
// credential sets Perpetual instead of an expiry.
type Account struct {
	ID          string     `json:"id" db:"id"`
	BoundDevice string     `json:"bound_device,omitempty" db:"bound_device"`
	Perpetual   bool       `json:"perpetual" db:"perpetual"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// ValidAt reports whether the account holds an unexpired grant at the given
// instant.
func (a Account) ValidAt(now time.Time) bool {
	if a.Perpetual {
		return true
	}
	return a.ExpiresAt != nil && !now.After(*a.ExpiresAt)
}
