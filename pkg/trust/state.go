package trust

import (
	"context"
	"time"
)

// State is the trust status of an account
type State string

const (
	StateActive  State = "ACTIVE"
	StateBlocked State = "BLOCKED"
)

// ReasonTooManyDevices is recorded when an account registers more devices than allowed
const ReasonTooManyDevices = "TOO_MANY_DEVICES"

// AccountTrustState is the persisted trust status of one account.
// An account without a stored row is treated as active.
type AccountTrustState struct {
	UserID        string     `json:"user_id"`
	IsBlocked     bool       `json:"is_blocked"`
	BlockedReason string     `json:"blocked_reason,omitempty"`
	BlockedAt     *time.Time `json:"blocked_at,omitempty"`
}

// State reports ACTIVE or BLOCKED
func (s AccountTrustState) State() State {
	if s.IsBlocked {
		return StateBlocked
	}
	return StateActive
}

// Active returns the default state for an account with no stored row
func Active(userID string) AccountTrustState {
	return AccountTrustState{UserID: userID}
}

// Store is the persistence the enforcer needs. Device repositories implement it
// so the evaluation can run in the same per-user unit of work as registration.
type Store interface {
	CountActiveDevices(ctx context.Context, userID string) (int, error)
	GetTrustState(ctx context.Context, userID string) (AccountTrustState, error)
	SaveTrustState(ctx context.Context, state AccountTrustState) error
}
