package trust

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/tendant/simple-device-trust/pkg/errors"
)

// Enforcer applies the per-account device limit. It holds no state of its own;
// every call reads and writes through the Store it is given.
type Enforcer struct {
	maxDevices  int
	autoUnblock bool
	now         func() time.Time
}

// Option configures an Enforcer
type Option func(*Enforcer)

// WithClock overrides the time source used for BlockedAt
func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) {
		e.now = now
	}
}

// WithAutoUnblock clears a TOO_MANY_DEVICES block as soon as removals bring the
// account back within the limit. Without it an administrator has to call Unblock.
func WithAutoUnblock(enabled bool) Option {
	return func(e *Enforcer) {
		e.autoUnblock = enabled
	}
}

// NewEnforcer creates an enforcer allowing up to maxDevices active devices per account
func NewEnforcer(maxDevices int, opts ...Option) (*Enforcer, error) {
	if maxDevices < 1 {
		return nil, fmt.Errorf("max devices per user must be at least 1, got %d", maxDevices)
	}
	e := &Enforcer{
		maxDevices: maxDevices,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// MaxDevices returns the configured limit
func (e *Enforcer) MaxDevices() int {
	return e.maxDevices
}

// AutoUnblock reports whether removals can lift a block
func (e *Enforcer) AutoUnblock() bool {
	return e.autoUnblock
}

// State returns the account's current trust state
func (e *Enforcer) State(ctx context.Context, store Store, userID string) (AccountTrustState, error) {
	return store.GetTrustState(ctx, userID)
}

// Evaluate blocks the account when its active device count exceeds the limit.
// An already blocked account is left untouched, so BlockedAt keeps the first
// time the limit was crossed. Evaluate never unblocks.
func (e *Enforcer) Evaluate(ctx context.Context, store Store, userID string) (AccountTrustState, error) {
	state, err := store.GetTrustState(ctx, userID)
	if err != nil {
		return AccountTrustState{}, err
	}
	if state.IsBlocked {
		return state, nil
	}

	count, err := store.CountActiveDevices(ctx, userID)
	if err != nil {
		return AccountTrustState{}, err
	}
	if count <= e.maxDevices {
		return state, nil
	}

	blockedAt := e.now().UTC()
	state = AccountTrustState{
		UserID:        userID,
		IsBlocked:     true,
		BlockedReason: ReasonTooManyDevices,
		BlockedAt:     &blockedAt,
	}
	if err := store.SaveTrustState(ctx, state); err != nil {
		return AccountTrustState{}, err
	}
	slog.Warn("Account blocked", "userID", userID, "activeDevices", count, "limit", e.maxDevices)
	return state, nil
}

// Reconcile is called after a device removal. With auto-unblock enabled it lifts
// a TOO_MANY_DEVICES block once the account is back within the limit; otherwise
// it returns the state unchanged.
func (e *Enforcer) Reconcile(ctx context.Context, store Store, userID string) (AccountTrustState, error) {
	state, err := store.GetTrustState(ctx, userID)
	if err != nil {
		return AccountTrustState{}, err
	}
	if !e.autoUnblock || !state.IsBlocked || state.BlockedReason != ReasonTooManyDevices {
		return state, nil
	}

	count, err := store.CountActiveDevices(ctx, userID)
	if err != nil {
		return AccountTrustState{}, err
	}
	if count > e.maxDevices {
		return state, nil
	}

	state = Active(userID)
	if err := store.SaveTrustState(ctx, state); err != nil {
		return AccountTrustState{}, err
	}
	slog.Info("Account unblocked after device removal", "userID", userID, "activeDevices", count)
	return state, nil
}

// Unblock clears a block on administrator request. It refuses while the account
// still has more active devices than allowed, since the next registration would
// block it again.
func (e *Enforcer) Unblock(ctx context.Context, store Store, userID string) (AccountTrustState, error) {
	state, err := store.GetTrustState(ctx, userID)
	if err != nil {
		return AccountTrustState{}, err
	}
	if !state.IsBlocked {
		return state, nil
	}

	count, err := store.CountActiveDevices(ctx, userID)
	if err != nil {
		return AccountTrustState{}, err
	}
	if count > e.maxDevices {
		return AccountTrustState{}, apperrors.DeviceLimitExceeded(count, e.maxDevices)
	}

	state = Active(userID)
	if err := store.SaveTrustState(ctx, state); err != nil {
		return AccountTrustState{}, err
	}
	slog.Info("Account unblocked by administrator", "userID", userID, "activeDevices", count)
	return state, nil
}
