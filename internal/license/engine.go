package license

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/coder/quartz"

	apperrors "github.com/mcrsoft/keyserve/internal/errors"
	"github.com/mcrsoft/keyserve/internal/store"
	"github.com/mcrsoft/keyserve/pkg/contracts/domain"
)

const day = 24 * time.Hour

// ActivationResult reports a successful activation. Reactivated is true
// when the key was already bound to the presenting device; in that case
// RemainingDays is recomputed from the stored expiry relative to now, never
// re-derived from the grant window, so the clock is not reset.
type ActivationResult struct {
	Reactivated   bool
	Perpetual     bool
	RemainingDays int
	ExpiresAt     *time.Time
	ActivationID  string
}

// ValidityResult reports the outcome of a read-only validity check.
type ValidityResult struct {
	Perpetual     bool
	RemainingDays int
	ExpiresAt     *time.Time
}

// ExtendResult reports the account expiry after an extend-grant redemption.
// Extended is false when the call was an idempotent retry that performed no
// stacking.
type ExtendResult struct {
	Extended      bool
	Perpetual     bool
	RemainingDays int
	ExpiresAt     *time.Time
}

// Engine applies the license lifecycle rules over the registry and the
// account records. All business rejections surface as the sentinel errors
// of the errors package; success paths return typed results.
type Engine struct {
	registry *Registry
	store    store.Store
	clock    quartz.Clock
	logger   *slog.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithEngineClock replaces the wall clock, used by tests to control time.
func WithEngineClock(clock quartz.Clock) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine creates an activation engine over the registry and store.
func NewEngine(registry *Registry, st store.Store, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		registry: registry,
		store:    st,
		clock:    quartz.NewReal(),
		logger:   logger.With(slog.String("component", "engine")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Activate presents a credential and a device. First activation binds the
// device and starts the validity clock; re-presenting the same pair is an
// idempotent success. A key bound elsewhere fails with ErrDeviceMismatch,
// an unknown key with ErrKeyNotFound.
func (e *Engine) Activate(ctx context.Context, token, device string) (*ActivationResult, error) {
	result, err := e.registry.TryClaim(ctx, token, device)
	if err != nil {
		activationsTotal.WithLabelValues("storage_failure").Inc()
		return nil, err
	}

	switch result.Status {
	case ClaimFirstActivation, ClaimSameDevice:
		cred := result.Credential
		activationsTotal.WithLabelValues(result.Status.String()).Inc()
		return &ActivationResult{
			Reactivated:   result.Status == ClaimSameDevice,
			Perpetual:     cred.ExpiresAt == nil,
			RemainingDays: remainingDays(cred.ExpiresAt, e.clock.Now()),
			ExpiresAt:     cred.ExpiresAt,
			ActivationID:  cred.ActivationID,
		}, nil
	case ClaimOtherDevice:
		activationsTotal.WithLabelValues("device_mismatch").Inc()
		return nil, apperrors.ErrDeviceMismatch
	default:
		activationsTotal.WithLabelValues("not_found").Inc()
		return nil, apperrors.ErrKeyNotFound
	}
}

// CheckKey is the pure read path for credential re-validation. It never
// mutates state. Failure reasons: ErrKeyNotFound, ErrKeyNotActivated,
// ErrDeviceMismatch, ErrKeyExpired.
func (e *Engine) CheckKey(ctx context.Context, token, device string) (*ValidityResult, error) {
	cred, err := e.registry.Lookup(ctx, token)
	if err != nil {
		e.countCheck(err)
		return nil, err
	}

	if cred.State != domain.KeyStateActivated {
		e.countCheck(apperrors.ErrKeyNotActivated)
		return nil, apperrors.ErrKeyNotActivated
	}
	if cred.BoundDevice != device {
		e.countCheck(apperrors.ErrDeviceMismatch)
		return nil, apperrors.ErrDeviceMismatch
	}

	now := e.clock.Now()
	if cred.ExpiredAt(now) {
		e.countCheck(apperrors.ErrKeyExpired)
		return nil, apperrors.ErrKeyExpired
	}

	validityChecksTotal.WithLabelValues("valid").Inc()
	return &ValidityResult{
		Perpetual:     cred.ExpiresAt == nil,
		RemainingDays: remainingDays(cred.ExpiresAt, now),
		ExpiresAt:     cred.ExpiresAt,
	}, nil
}

// CheckAccount is the pure read path for account re-validation. Failure
// reasons: ErrAccountNotFound, ErrDeviceMismatch, ErrAccountExpired.
func (e *Engine) CheckAccount(ctx context.Context, accountID, device string) (*ValidityResult, error) {
	acct, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		e.countCheck(err)
		return nil, err
	}

	if acct.BoundDevice != "" && acct.BoundDevice != device {
		e.countCheck(apperrors.ErrDeviceMismatch)
		return nil, apperrors.ErrDeviceMismatch
	}

	now := e.clock.Now()
	if !acct.ValidAt(now) {
		e.countCheck(apperrors.ErrAccountExpired)
		return nil, apperrors.ErrAccountExpired
	}

	validityChecksTotal.WithLabelValues("valid").Inc()
	return &ValidityResult{
		Perpetual:     acct.Perpetual,
		RemainingDays: remainingDays(acct.ExpiresAt, now),
		ExpiresAt:     acct.ExpiresAt,
	}, nil
}

// ExtendGrant redeems a fresh credential against an account, stacking the
// credential's grant window onto the greater of the account's current
// expiry and now. This is the explicit stacking operation: Activate never
// touches accounts, and re-presenting an already redeemed key to this
// operation performs no second stack.
//
// The account's device lock is enforced first; the key is then claimed for
// the device, which also consumes it as a single-use credential.
func (e *Engine) ExtendGrant(ctx context.Context, accountID, token, device string) (*ExtendResult, error) {
	acct, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.BoundDevice != "" && acct.BoundDevice != device {
		return nil, apperrors.ErrDeviceMismatch
	}

	claim, err := e.registry.TryClaim(ctx, token, device)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now().UTC()
	switch claim.Status {
	case ClaimNotFound:
		return nil, apperrors.ErrKeyNotFound
	case ClaimOtherDevice:
		return nil, apperrors.ErrDeviceMismatch
	case ClaimSameDevice:
		// The key was consumed by an earlier call from this device. Report
		// the current account state without stacking again.
		return &ExtendResult{
			Extended:      false,
			Perpetual:     acct.Perpetual,
			RemainingDays: remainingDays(acct.ExpiresAt, now),
			ExpiresAt:     acct.ExpiresAt,
		}, nil
	}

	cred := claim.Credential
	if cred.Perpetual() {
		acct.Perpetual = true
		acct.ExpiresAt = nil
	} else if !acct.Perpetual {
		base := now
		if acct.ExpiresAt != nil && acct.ExpiresAt.After(now) {
			base = acct.ExpiresAt.UTC()
		}
		expires := base.Add(time.Duration(cred.GrantDays) * day)
		acct.ExpiresAt = &expires
	}
	acct.BoundDevice = device
	acct.UpdatedAt = now

	if err := e.store.UpsertAccount(ctx, acct); err != nil {
		e.logger.ErrorContext(ctx, "grant extension persist failed",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	e.logger.InfoContext(ctx, "grant extended",
		slog.String("account_id", accountID),
		slog.Int("grant_days", cred.GrantDays),
		slog.Bool("perpetual", acct.Perpetual),
	)
	grantExtensionsTotal.Inc()
	return &ExtendResult{
		Extended:      true,
		Perpetual:     acct.Perpetual,
		RemainingDays: remainingDays(acct.ExpiresAt, now),
		ExpiresAt:     acct.ExpiresAt,
	}, nil
}

func (e *Engine) countCheck(err error) {
	switch {
	case errors.Is(err, apperrors.ErrKeyExpired), errors.Is(err, apperrors.ErrAccountExpired):
		validityChecksTotal.WithLabelValues("expired").Inc()
	case errors.Is(err, apperrors.ErrDeviceMismatch):
		validityChecksTotal.WithLabelValues("device_mismatch").Inc()
	case errors.Is(err, apperrors.ErrKeyNotFound), errors.Is(err, apperrors.ErrAccountNotFound):
		validityChecksTotal.WithLabelValues("not_found").Inc()
	case errors.Is(err, apperrors.ErrKeyNotActivated):
		validityChecksTotal.WithLabelValues("not_activated").Inc()
	default:
		validityChecksTotal.WithLabelValues("error").Inc()
	}
}

// remainingDays computes ceil((expiresAt - now) / 24h), floored at zero.
// A nil expiry (perpetual grant) reports zero; callers expose the
// perpetual flag alongside.
func remainingDays(expiresAt *time.Time, now time.Time) int {
	if expiresAt == nil {
		return 0
	}
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / day)
	if remaining%day != 0 {
		days++
	}
	return days
}
