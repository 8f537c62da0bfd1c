// Package errors defines the typed error surface of the license server.
//
// Business-rule rejections (not found, device mismatch, expired, already
// used) are sentinel errors so callers can branch with errors.Is; they are
// terminal for the request that triggered them. ErrStorageFailure is the
// only retryable kind: it means a durable read or write failed and the
// operation may be attempted again.
package errors

import (
	"errors"
	"fmt"
)

// Domain sentinel errors.
var (
	ErrKeyNotFound     = errors.New("license key not found")
	ErrKeyNotActivated = errors.New("license key not activated")
	ErrKeyRevoked      = errors.New("license key revoked")
	ErrKeyExpired      = errors.New("license key expired")
	ErrKeyAlreadyUsed  = errors.New("license key already used")
	ErrDeviceMismatch  = errors.New("license bound to a different device")
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExpired  = errors.New("account grant expired")
	ErrDuplicateToken  = errors.New("duplicate token")
	ErrStorageFailure  = errors.New("storage failure")
)

// StorageFailure wraps a backend error so callers see a single retryable
// kind regardless of which store produced it.
func StorageFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageFailure, op, err)
}

// IsRetryable reports whether the caller may retry the failed operation.
// Only storage failures qualify; every business-rule rejection is terminal.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}
