package license

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mcrsoft/keyserve/internal/errors"
	"github.com/mcrsoft/keyserve/internal/store"
	"github.com/mcrsoft/keyserve/pkg/contracts/domain"
)

func newTestEngine(t *testing.T) (*Engine, *Registry, *store.MemoryStore, *quartz.Mock) {
	t.Helper()
	st := store.NewMemoryStore()
	clock := quartz.NewMock(t)
	logger := testLogger()
	reg := NewRegistry(st, NewKeyGenerator("MCR"), logger, WithClock(clock))
	eng := NewEngine(reg, st, logger, WithEngineClock(clock))
	return eng, reg, st, clock
}

func issueKey(t *testing.T, reg *Registry, days int) string {
	t.Helper()
	creds, err := reg.Issue(context.Background(), 1, days)
	require.NoError(t, err)
	return creds[0].Token
}

func TestActivateStartsValidityClock(t *testing.T) {
	eng, reg, _, clock := newTestEngine(t)
	ctx := context.Background()
	token := issueKey(t, reg, 30)

	result, err := eng.Activate(ctx, token, "device-a")
	require.NoError(t, err)

	assert.False(t, result.Reactivated)
	assert.False(t, result.Perpetual)
	assert.Equal(t, 30, result.RemainingDays)
	assert.NotEmpty(t, result.ActivationID)
	require.NotNil(t, result.ExpiresAt)
	assert.Equal(t, clock.Now().UTC().Add(30*day), *result.ExpiresAt)
}

func TestActivateSameDeviceDoesNotResetClock(t *testing.T) {
	eng, reg, _, clock := newTestEngine(t)
	ctx := context.Background()
	token := issueKey(t, reg, 30)

	first, err := eng.Activate(ctx, token, "device-a")
	require.NoError(t, err)

	clock.Advance(10 * day)

	again, err := eng.Activate(ctx, token, "device-a")
	require.NoError(t, err)
	assert.True(t, again.Reactivated)
	assert.Equal(t, *first.ExpiresAt, *again.ExpiresAt)
	assert.Equal(t, first.ActivationID, again.ActivationID)
	assert.Equal(t, 20, again.RemainingDays)
}

func TestActivateOtherDevice(t *testing.T) {
	eng, reg, _, _ := newTestEngine(t)
	ctx := context.Background()
	token := issueKey(t, reg, 30)

	_, err := eng.Activate(ctx, token, "device-a")
	require.NoError(t, err)

	_, err = eng.Activate(ctx, token, "device-b")
	assert.True(t, errors.Is(err, apperrors.ErrDeviceMismatch))
}

func TestActivateUnknownKey(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)

	_, err := eng.Activate(context.Background(), "MCR-0000-0000-0000-0000", "device-a")
	assert.True(t, errors.Is(err, apperrors.ErrKeyNotFound))
}

func TestActivatePastExpiryClampsToZero(t *testing.T) {
	eng, reg, _, clock := newTestEngine(t)
	ctx := context.Background()
	token := issueKey(t, reg, 30)

	_, err := eng.Activate(ctx, token, "device-a")
	require.NoError(t, err)

	clock.Advance(31 * day)

	// Re-presenting after the window passed still succeeds for the bound
	// device; the remaining count bottoms out at zero.
	result, err := eng.Activate(ctx, token, "device-a")
	require.NoError(t, err)
	assert.True(t, result.Reactivated)
	assert.Equal(t, 0, result.RemainingDays)
}

func TestActivatePerpetualKey(t *testing.T) {
	eng, reg, _, clock := newTestEngine(t)
	ctx := context.Background()
	token := issueKey(t, reg, 0)

	result, err := eng.Activate(ctx, token, "device-a")
	require.NoError(t, err)
	assert.True(t, result.Perpetual)
	assert.Nil(t, result.ExpiresAt)
	assert.Equal(t, 0, result.RemainingDays)

	// Perpetual grants never expire, however far the clock moves.
	clock.Advance(3650 * day)
	check, err := eng.CheckKey(ctx, token, "device-a")
	require.NoError(t, err)
	assert.True(t, check.Perpetual)
}

func TestCheckKeyLifecycle(t *testing.T) {
	eng, reg, _, clock := newTestEngine(t)
	ctx := context.Background()
	token := issueKey(t, reg, 30)

	// Unactivated keys fail the check without being consumed.
	_, err := eng.CheckKey(ctx, token, "device-a")
	assert.True(t, errors.Is(err, apperrors.ErrKeyNotActivated))

	_, err = eng.Activate(ctx, token, "device-a")
	require.NoError(t, err)

	result, err := eng.CheckKey(ctx, token, "device-a")
	require.NoError(t, err)
	assert.Equal(t, 30, result.RemainingDays)

	_, err = eng.CheckKey(ctx, token, "device-b")
	assert.True(t, errors.Is(err, apperrors.ErrDeviceMismatch))

	_, err = eng.CheckKey(ctx, "MCR-0000-0000-0000-0000", "device-a")
	assert.True(t, errors.Is(err, apperrors.ErrKeyNotFound))

	// Expiry is derived at read time. Once the window passes the check
	// fails and never flips back.
	clock.Advance(31 * day)
	_, err = eng.CheckKey(ctx, token, "device-a")
	assert.True(t, errors.Is(err, apperrors.ErrKeyExpired))

	clock.Advance(day)
	_, err = eng.CheckKey(ctx, token, "device-a")
	assert.True(t, errors.Is(err, apperrors.ErrKeyExpired))
}

func TestCheckKeyRemainingDaysCountsDown(t *testing.T) {
	eng, reg, _, clock := newTestEngine(t)
	ctx := context.Background()
	token := issueKey(t, reg, 30)

	_, err := eng.Activate(ctx, token, "device-a")
	require.NoError(t, err)

	// A partial day still counts as a remaining day.
	clock.Advance(12 * time.Hour)
	result, err := eng.CheckKey(ctx, token, "device-a")
	require.NoError(t, err)
	assert.Equal(t, 30, result.RemainingDays)

	clock.Advance(12 * time.Hour)
	result, err = eng.CheckKey(ctx, token, "device-a")
	require.NoError(t, err)
	assert.Equal(t, 29, result.RemainingDays)

	clock.Advance(28*day + 23*time.Hour)
	result, err = eng.CheckKey(ctx, token, "device-a")
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemainingDays)
}

func TestCheckAccount(t *testing.T) {
	eng, _, st, clock := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.CheckAccount(ctx, "acct-1", "device-a")
	assert.True(t, errors.Is(err, apperrors.ErrAccountNotFound))

	expires := clock.Now().UTC().Add(10 * day)
	require.NoError(t, st.UpsertAccount(ctx, domain.Account{
		ID:          "acct-1",
		BoundDevice: "device-a",
		ExpiresAt:   &expires,
	}))

	result, err := eng.CheckAccount(ctx, "acct-1", "device-a")
	require.NoError(t, err)
	assert.Equal(t, 10, result.RemainingDays)

	_, err = eng.CheckAccount(ctx, "acct-1", "device-b")
	assert.True(t, errors.Is(err, apperrors.ErrDeviceMismatch))

	clock.Advance(11 * day)
	_, err = eng.CheckAccount(ctx, "acct-1", "device-a")
	assert.True(t, errors.Is(err, apperrors.ErrAccountExpired))
}

func TestCheckAccountWithoutGrant(t *testing.T) {
	eng, _, st, _ := newTestEngine(t)
	ctx := context.Background()

	// An account that never redeemed a credential holds no grant.
	require.NoError(t, st.UpsertAccount(ctx, domain.Account{ID: "acct-1"}))

	_, err := eng.CheckAccount(ctx, "acct-1", "device-a")
	assert.True(t, errors.Is(err, apperrors.ErrAccountExpired))
}

func TestExtendGrantFirstRedemption(t *testing.T) {
	eng, reg, st, clock := newTestEngine(t)
	ctx := context.Background()
	token := issueKey(t, reg, 30)

	require.NoError(t, st.UpsertAccount(ctx, domain.Account{ID: "acct-1"}))

	result, err := eng.ExtendGrant(ctx, "acct-1", token, "device-a")
	require.NoError(t, err)
	assert.True(t, result.Extended)
	assert.Equal(t, 30, result.RemainingDays)
	require.NotNil(t, result.ExpiresAt)
	assert.Equal(t, clock.Now().UTC().Add(30*day), *result.ExpiresAt)

	// Redemption binds the account to the redeeming device.
	acct, err := st.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "device-a", acct.BoundDevice)
}

func TestExtendGrantStacksOnUnexpiredGrant(t *testing.T) {
	eng, reg, st, clock := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertAccount(ctx, domain.Account{ID: "acct-1"}))

	first := issueKey(t, reg, 30)
	_, err := eng.ExtendGrant(ctx, "acct-1", first, "device-a")
	require.NoError(t, err)

	// Ten days in, a second 30-day key stacks on the running window:
	// 20 days left plus 30 new.
	clock.Advance(10 * day)
	second := issueKey(t, reg, 30)
	result, err := eng.ExtendGrant(ctx, "acct-1", second, "device-a")
	require.NoError(t, err)
	assert.True(t, result.Extended)
	assert.Equal(t, 50, result.RemainingDays)
}

func TestExtendGrantStacksFromNowWhenExpired(t *testing.T) {
	eng, reg, st, clock := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertAccount(ctx, domain.Account{ID: "acct-1"}))

	first := issueKey(t, reg, 7)
	_, err := eng.ExtendGrant(ctx, "acct-1", first, "device-a")
	require.NoError(t, err)

	// Long lapsed: the new window starts from now, not the dead expiry.
	clock.Advance(100 * day)
	second := issueKey(t, reg, 30)
	result, err := eng.ExtendGrant(ctx, "acct-1", second, "device-a")
	require.NoError(t, err)
	assert.Equal(t, 30, result.RemainingDays)
	assert.Equal(t, clock.Now().UTC().Add(30*day), *result.ExpiresAt)
}

func TestExtendGrantIdempotentRetry(t *testing.T) {
	eng, reg, st, _ := newTestEngine(t)
	ctx := context.Background()
	token := issueKey(t, reg, 30)

	require.NoError(t, st.UpsertAccount(ctx, domain.Account{ID: "acct-1"}))

	first, err := eng.ExtendGrant(ctx, "acct-1", token, "device-a")
	require.NoError(t, err)
	require.True(t, first.Extended)

	// Replaying the same key from the same device performs no second stack.
	retry, err := eng.ExtendGrant(ctx, "acct-1", token, "device-a")
	require.NoError(t, err)
	assert.False(t, retry.Extended)
	assert.Equal(t, *first.ExpiresAt, *retry.ExpiresAt)
	assert.Equal(t, first.RemainingDays, retry.RemainingDays)
}

func TestExtendGrantDeviceLock(t *testing.T) {
	eng, reg, st, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertAccount(ctx, domain.Account{ID: "acct-1"}))

	first := issueKey(t, reg, 30)
	_, err := eng.ExtendGrant(ctx, "acct-1", first, "device-a")
	require.NoError(t, err)

	// The account is locked to device-a; a fresh key from another device
	// is rejected and stays unconsumed.
	second := issueKey(t, reg, 30)
	_, err = eng.ExtendGrant(ctx, "acct-1", second, "device-b")
	assert.True(t, errors.Is(err, apperrors.ErrDeviceMismatch))

	cred, err := reg.Lookup(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, domain.KeyStateIssued, cred.State)
}

func TestExtendGrantKeyConsumedElsewhere(t *testing.T) {
	eng, reg, st, _ := newTestEngine(t)
	ctx := context.Background()
	token := issueKey(t, reg, 30)

	// Key already activated on another device.
	_, err := eng.Activate(ctx, token, "device-b")
	require.NoError(t, err)

	require.NoError(t, st.UpsertAccount(ctx, domain.Account{ID: "acct-1"}))

	_, err = eng.ExtendGrant(ctx, "acct-1", token, "device-a")
	assert.True(t, errors.Is(err, apperrors.ErrDeviceMismatch))
}

func TestExtendGrantPerpetualKey(t *testing.T) {
	eng, reg, st, clock := newTestEngine(t)
	ctx := context.Background()

	expires := clock.Now().UTC().Add(5 * day)
	require.NoError(t, st.UpsertAccount(ctx, domain.Account{
		ID:          "acct-1",
		BoundDevice: "device-a",
		ExpiresAt:   &expires,
	}))

	token := issueKey(t, reg, 0)
	result, err := eng.ExtendGrant(ctx, "acct-1", token, "device-a")
	require.NoError(t, err)
	assert.True(t, result.Perpetual)
	assert.Nil(t, result.ExpiresAt)

	// Further timed keys cannot shorten a perpetual account.
	timed := issueKey(t, reg, 7)
	result, err = eng.ExtendGrant(ctx, "acct-1", timed, "device-a")
	require.NoError(t, err)
	assert.True(t, result.Perpetual)
	assert.Nil(t, result.ExpiresAt)
}

func TestExtendGrantUnknownAccountAndKey(t *testing.T) {
	eng, reg, st, _ := newTestEngine(t)
	ctx := context.Background()
	token := issueKey(t, reg, 30)

	_, err := eng.ExtendGrant(ctx, "no-such-account", token, "device-a")
	assert.True(t, errors.Is(err, apperrors.ErrAccountNotFound))

	require.NoError(t, st.UpsertAccount(ctx, domain.Account{ID: "acct-1"}))
	_, err = eng.ExtendGrant(ctx, "acct-1", "MCR-0000-0000-0000-0000", "device-a")
	assert.True(t, errors.Is(err, apperrors.ErrKeyNotFound))
}

// TestFullLifecycle walks a credential through issue, activation, the
// re-validation cadence, expiry and revocation of a second key.
func TestFullLifecycle(t *testing.T) {
	eng, reg, _, clock := newTestEngine(t)
	ctx := context.Background()

	creds, err := reg.Issue(ctx, 2, 30)
	require.NoError(t, err)
	primary, spare := creds[0].Token, creds[1].Token

	// Day 0: activate on the laptop.
	act, err := eng.Activate(ctx, primary, "laptop")
	require.NoError(t, err)
	assert.Equal(t, 30, act.RemainingDays)

	// Day 10: routine re-validation.
	clock.Advance(10 * day)
	check, err := eng.CheckKey(ctx, primary, "laptop")
	require.NoError(t, err)
	assert.Equal(t, 20, check.RemainingDays)

	// A borrowed key on a second machine is refused.
	_, err = eng.Activate(ctx, primary, "desktop")
	assert.True(t, errors.Is(err, apperrors.ErrDeviceMismatch))

	// Day 31: the window has passed.
	clock.Advance(21 * day)
	_, err = eng.CheckKey(ctx, primary, "laptop")
	assert.True(t, errors.Is(err, apperrors.ErrKeyExpired))

	// The spare key is revoked before anyone uses it.
	require.NoError(t, reg.Revoke(ctx, spare))
	_, err = eng.Activate(ctx, spare, "laptop")
	assert.True(t, errors.Is(err, apperrors.ErrKeyNotFound))
}

func TestRemainingDays(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	at := func(d time.Duration) *time.Time {
		t := now.Add(d)
		return &t
	}

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      int
	}{
		{"nil expiry", nil, 0},
		{"exactly now", at(0), 0},
		{"already past", at(-time.Hour), 0},
		{"partial day rounds up", at(time.Hour), 1},
		{"exact day boundary", at(24 * time.Hour), 1},
		{"just over a day", at(24*time.Hour + time.Minute), 2},
		{"thirty days", at(30 * 24 * time.Hour), 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, remainingDays(tt.expiresAt, now))
		})
	}
}
