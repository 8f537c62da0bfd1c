// Package api contains API contract definitions for the MCR license server.
// Version v1 represents the current stable API version.
package api

// License API requests

// KeyIssueRequest asks the registry to generate a batch of credentials.
// Days == 0 issues perpetual keys.
type KeyIssueRequest struct {
	Count int `json:"count" validate:"required,min=1,max=1000"`
	Days  int `json:"days" validate:"min=0,max=3650"`
}

// LicenseActivateRequest binds a credential to a device.
type LicenseActivateRequest struct {
	Key    string `json:"key" validate:"required,min=10"`
	Device string `json:"device" validate:"required,min=1,max=256"`
}

// LicenseCheckRequest re-validates a previously activated key+device pair.
// Exactly one of Key or AccountID must be set.
type LicenseCheckRequest struct {
	Key       string `json:"key" validate:"required_without=AccountID"`
	AccountID string `json:"account_id" validate:"required_without=Key"`
	Device    string `json:"device" validate:"required,min=1,max=256"`
}

// GrantExtendRequest redeems a fresh credential against an existing account,
// stacking the credential's grant window onto the account's expiry.
type GrantExtendRequest struct {
	AccountID string `json:"account_id" validate:"required"`
	Key       string `json:"key" validate:"required,min=10"`
	Device    string `json:"device" validate:"required,min=1,max=256"`
}
