package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	apperrors "github.com/mcrsoft/keyserve/internal/errors"
	"github.com/mcrsoft/keyserve/internal/store"
	"github.com/mcrsoft/keyserve/pkg/contracts/domain"
)

// maxIssueRetries bounds token regeneration when an insert collides with an
// existing token. Collisions are a ~2^-80 event per attempt; hitting the
// bound means the randomness source is broken.
const maxIssueRetries = 5

// ClaimStatus is the outcome of an atomic claim attempt.
type ClaimStatus int

const (
	// ClaimFirstActivation means this call performed the one and only
	// transition from issued to activated.
	ClaimFirstActivation ClaimStatus = iota
	// ClaimSameDevice means the key was already bound to the presenting
	// device; nothing was mutated.
	ClaimSameDevice
	// ClaimOtherDevice means the key is bound to a different device; the
	// attempt was rejected without mutation.
	ClaimOtherDevice
	// ClaimNotFound means no credential exists for the token.
	ClaimNotFound
)

// String returns the wire-friendly name of the status.
func (s ClaimStatus) String() string {
	switch s {
	case ClaimFirstActivation:
		return "first_activation"
	case ClaimSameDevice:
		return "same_device"
	case ClaimOtherDevice:
		return "other_device"
	case ClaimNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// ClaimResult carries the outcome of TryClaim together with a snapshot of
// the credential after the operation. Credential is zero for ClaimNotFound.
type ClaimResult struct {
	Status     ClaimStatus
	Credential domain.Credential
}

// Registry owns the issued credential set. All state lives in the store;
// the registry adds token generation and the per-token critical section
// that makes claim and revoke mutually exclusive and exactly-once.
type Registry struct {
	store  store.Store
	keygen *KeyGenerator
	clock  quartz.Clock
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*tokenLock
}

// tokenLock is a reference-counted mutex. Entries are removed from the map
// once the last holder releases, so the map stays proportional to the
// number of tokens under contention, not the number of tokens issued.
type tokenLock struct {
	sync.Mutex
	refs int
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithClock replaces the wall clock, used by tests to control time.
func WithClock(clock quartz.Clock) RegistryOption {
	return func(r *Registry) { r.clock = clock }
}

// NewRegistry creates a registry over the given store.
func NewRegistry(st store.Store, keygen *KeyGenerator, logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:  st,
		keygen: keygen,
		clock:  quartz.NewReal(),
		logger: logger.With(slog.String("component", "registry")),
		locks:  make(map[string]*tokenLock),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Issue creates count fresh credentials with the given grant window and
// persists them in issued state. grantDays == 0 issues perpetual keys.
// A token collision on insert is retried with a new token and never
// surfaced to the caller.
func (r *Registry) Issue(ctx context.Context, count, grantDays int) ([]domain.Credential, error) {
	if count < 1 {
		return nil, fmt.Errorf("count must be at least 1, got %d", count)
	}
	if grantDays < 0 {
		return nil, fmt.Errorf("grant days must not be negative, got %d", grantDays)
	}

	now := r.clock.Now().UTC()
	issued := make([]domain.Credential, 0, count)
	for i := 0; i < count; i++ {
		cred, err := r.issueOne(ctx, grantDays, now)
		if err != nil {
			return nil, err
		}
		issued = append(issued, cred)
	}

	r.logger.InfoContext(ctx, "keys issued",
		slog.Int("count", count),
		slog.Int("grant_days", grantDays),
	)
	keysIssuedTotal.Add(float64(count))
	return issued, nil
}

func (r *Registry) issueOne(ctx context.Context, grantDays int, now time.Time) (domain.Credential, error) {
	for attempt := 0; attempt < maxIssueRetries; attempt++ {
		token, err := r.keygen.Generate()
		if err != nil {
			return domain.Credential{}, fmt.Errorf("generate token: %w", err)
		}

		cred := domain.Credential{
			Token:     token,
			GrantDays: grantDays,
			State:     domain.KeyStateIssued,
			IssuedAt:  now,
		}
		err = r.store.InsertKey(ctx, cred)
		if err == nil {
			return cred, nil
		}
		if errors.Is(err, store.ErrDuplicateToken) {
			r.logger.WarnContext(ctx, "token collision on insert, regenerating",
				slog.Int("attempt", attempt+1),
			)
			continue
		}
		return domain.Credential{}, err
	}
	return domain.Credential{}, fmt.Errorf("token generation collided %d times: %w",
		maxIssueRetries, apperrors.ErrDuplicateToken)
}

// TryClaim atomically claims the credential for the device if it is still
// unactivated. The whole check-then-set-then-persist runs under the token's
// lock: concurrent claims for the same token serialize here, so exactly one
// caller observes issued state and wins. The state transition is durably
// persisted before success is reported; a failed persist leaves the stored
// credential untouched in issued state.
//
// Business outcomes are encoded in ClaimResult; the error return is
// reserved for storage failures.
func (r *Registry) TryClaim(ctx context.Context, token, device string) (ClaimResult, error) {
	if !r.keygen.ValidTokenFormat(token) {
		return ClaimResult{Status: ClaimNotFound}, nil
	}

	lock := r.acquireTokenLock(token)
	defer r.releaseTokenLock(token, lock)

	cred, err := r.store.GetKey(ctx, token)
	if errors.Is(err, store.ErrKeyNotFound) {
		return ClaimResult{Status: ClaimNotFound}, nil
	}
	if err != nil {
		return ClaimResult{}, err
	}

	if cred.State == domain.KeyStateActivated {
		if cred.BoundDevice == device {
			// Idempotent re-present: the stored expiry is returned untouched
			// so repeated claims never re-extend the window.
			return ClaimResult{Status: ClaimSameDevice, Credential: cred}, nil
		}
		return ClaimResult{Status: ClaimOtherDevice, Credential: cred}, nil
	}

	now := r.clock.Now().UTC()
	cred.State = domain.KeyStateActivated
	cred.BoundDevice = device
	cred.ActivationID = uuid.New().String()
	cred.ActivatedAt = &now
	if !cred.Perpetual() {
		expires := now.Add(time.Duration(cred.GrantDays) * 24 * time.Hour)
		cred.ExpiresAt = &expires
	}

	if err := r.store.UpdateKey(ctx, cred); err != nil {
		r.logger.ErrorContext(ctx, "claim persist failed",
			slog.String("device", device),
			slog.String("error", err.Error()),
		)
		return ClaimResult{}, err
	}

	r.logger.InfoContext(ctx, "key activated",
		slog.String("activation_id", cred.ActivationID),
		slog.String("device", device),
		slog.Int("grant_days", cred.GrantDays),
	)
	return ClaimResult{Status: ClaimFirstActivation, Credential: cred}, nil
}

// Lookup returns a read-only snapshot of the credential.
func (r *Registry) Lookup(ctx context.Context, token string) (domain.Credential, error) {
	return r.store.GetKey(ctx, token)
}

// List returns snapshots of all issued credentials.
func (r *Registry) List(ctx context.Context) ([]domain.Credential, error) {
	return r.store.ListKeys(ctx)
}

// Revoke permanently removes a credential. It takes the same per-token lock
// as TryClaim, so a revoke can never interleave with an in-flight claim.
func (r *Registry) Revoke(ctx context.Context, token string) error {
	lock := r.acquireTokenLock(token)
	defer r.releaseTokenLock(token, lock)

	if err := r.store.DeleteKey(ctx, token); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "key revoked")
	keysRevokedTotal.Inc()
	return nil
}

func (r *Registry) acquireTokenLock(token string) *tokenLock {
	r.mu.Lock()
	lock, ok := r.locks[token]
	if !ok {
		lock = &tokenLock{}
		r.locks[token] = lock
	}
	lock.refs++
	r.mu.Unlock()

	lock.Lock()
	return lock
}

func (r *Registry) releaseTokenLock(token string, lock *tokenLock) {
	lock.Unlock()

	r.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(r.locks, token)
	}
	r.mu.Unlock()
}
