// Package store defines the narrow persistence interface the registry and
// the activation engine operate against, plus its concrete backends.
//
// The store provides atomic single-record reads and writes only. Cross
// record coordination, in particular the per-token serialization of claim
// and revoke, is owned by the registry, never by the backend.
package store

import (
	"context"

	apperrors "github.com/mcrsoft/keyserve/internal/errors"
	"github.com/mcrsoft/keyserve/pkg/contracts/domain"
)

// Store is the durable backend behind the key registry.
//
// Implementations map backend-specific failures to apperrors.ErrStorageFailure
// and report missing or duplicate records with the corresponding sentinel so
// callers never see driver errors.
type Store interface {
	// InsertKey persists a freshly issued credential. Returns
	// apperrors.ErrDuplicateToken if the token already exists.
	InsertKey(ctx context.Context, cred domain.Credential) error

	// UpdateKey overwrites an existing credential. Returns
	// apperrors.ErrKeyNotFound if the token is unknown.
	UpdateKey(ctx context.Context, cred domain.Credential) error

	// GetKey returns a snapshot of the credential with the given token.
	GetKey(ctx context.Context, token string) (domain.Credential, error)

	// DeleteKey removes a credential. Returns apperrors.ErrKeyNotFound if
	// the token is unknown.
	DeleteKey(ctx context.Context, token string) error

	// ListKeys returns snapshots of every stored credential.
	ListKeys(ctx context.Context) ([]domain.Credential, error)

	// GetAccount returns a snapshot of the account with the given ID.
	GetAccount(ctx context.Context, id string) (domain.Account, error)

	// UpsertAccount creates or replaces an account record.
	UpsertAccount(ctx context.Context, acct domain.Account) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// sentinel re-exports so backends and tests need a single import.
var (
	ErrKeyNotFound     = apperrors.ErrKeyNotFound
	ErrAccountNotFound = apperrors.ErrAccountNotFound
	ErrDuplicateToken  = apperrors.ErrDuplicateToken
)
