package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/tendant/simple-device-trust/pkg/errors"
	"github.com/tendant/simple-device-trust/pkg/fingerprint"
	"github.com/tendant/simple-device-trust/pkg/metrics"
	"github.com/tendant/simple-device-trust/pkg/mgmttoken"
	"github.com/tendant/simple-device-trust/pkg/ratelimit"
	"github.com/tendant/simple-device-trust/pkg/similarity"
	"github.com/tendant/simple-device-trust/pkg/trust"
)

// DefaultStorageTimeout bounds each registry operation's storage work
const DefaultStorageTimeout = 5 * time.Second

// BlockAlerter is notified after an account has been blocked
type BlockAlerter interface {
	AccountBlocked(ctx context.Context, userID string, token mgmttoken.Token) error
}

// Registry recognizes the devices of an account and enforces the device limit
type Registry struct {
	repo      Repository
	matcher   *similarity.Matcher
	enforcer  *trust.Enforcer
	throttler *ratelimit.RemovalThrottler
	tokens    *mgmttoken.Service
	alerter   BlockAlerter
	metrics   *metrics.Metrics
	timeout   time.Duration
	now       func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithAlerter sets the notifier called when an account becomes blocked
func WithAlerter(alerter BlockAlerter) Option {
	return func(r *Registry) {
		r.alerter = alerter
	}
}

// WithMetrics records registry decisions
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithStorageTimeout overrides DefaultStorageTimeout
func WithStorageTimeout(timeout time.Duration) Option {
	return func(r *Registry) {
		r.timeout = timeout
	}
}

// WithClock overrides the time source for CreatedAt and LastUsedAt
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry wires the registry to its collaborators
func NewRegistry(repo Repository, matcher *similarity.Matcher, enforcer *trust.Enforcer, throttler *ratelimit.RemovalThrottler, tokens *mgmttoken.Service, opts ...Option) (*Registry, error) {
	switch {
	case repo == nil:
		return nil, fmt.Errorf("device repository is required")
	case matcher == nil:
		return nil, fmt.Errorf("similarity matcher is required")
	case enforcer == nil:
		return nil, fmt.Errorf("trust enforcer is required")
	case throttler == nil:
		return nil, fmt.Errorf("removal throttler is required")
	case tokens == nil:
		return nil, fmt.Errorf("management token service is required")
	}

	r := &Registry{
		repo:      repo,
		matcher:   matcher,
		enforcer:  enforcer,
		throttler: throttler,
		tokens:    tokens,
		alerter:   NoopAlerter{},
		timeout:   DefaultStorageTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// MaxDevices returns the per-account device limit
func (r *Registry) MaxDevices() int {
	return r.enforcer.MaxDevices()
}

// RegistrationResult describes what RegisterOrTouch did
type RegistrationResult struct {
	Device      DeviceRecord
	Matched     bool
	Score       float64
	ActiveCount int
	TrustState  trust.AccountTrustState
}

// RegisterOrTouch records a sign-in from fp.
//
// A fingerprint similar enough to an active device refreshes that device.
// Anything else becomes a new device, after which the device limit is
// evaluated in the same per-account unit of work.
//
// Blocked accounts get an ACCOUNT_BLOCKED error; a known device is still
// refreshed and returned alongside it. When this call is the one that blocks
// the account, the new device and state are returned together with a
// DEVICE_LIMIT_EXCEEDED error.
func (r *Registry) RegisterOrTouch(ctx context.Context, userID string, fp fingerprint.Fingerprint, label string) (RegistrationResult, error) {
	label, err := NormalizeLabel(label)
	if err != nil {
		r.metrics.Registration(metrics.OutcomeRejected)
		return RegistrationResult{}, apperrors.InvalidInput("deviceLabel", err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		result       RegistrationResult
		newlyBlocked bool
	)
	err = r.repo.RunInUserTx(ctx, userID, func(repo Repository) error {
		state, err := repo.GetTrustState(ctx, userID)
		if err != nil {
			return err
		}

		active, err := repo.FindActiveDevices(ctx, userID)
		if err != nil {
			return err
		}
		candidates := make([]similarity.Candidate, len(active))
		for i, d := range active {
			candidates[i] = similarity.Candidate{Fingerprint: d.Fingerprint, LastUsedAt: d.LastUsedAt}
		}

		now := r.now().UTC()
		if match, ok := r.matcher.FindBestMatch(fp, candidates); ok {
			touched, err := repo.TouchDevice(ctx, userID, active[match.Index].ID, now, label)
			if err != nil {
				return err
			}
			result = RegistrationResult{
				Device:      touched,
				Matched:     true,
				Score:       match.Score,
				ActiveCount: len(active),
				TrustState:  state,
			}
			return nil
		}

		if state.IsBlocked {
			return apperrors.AccountBlocked(state.BlockedReason)
		}

		hash := fp.Hash()
		if fp.HasCanvas() {
			owners, err := repo.FindActiveByFingerprintHash(ctx, hash, userID)
			if err != nil {
				return err
			}
			if len(owners) > 0 {
				slog.Warn("Fingerprint already active under another account", "userID", userID, "owners", len(owners))
				return apperrors.DeviceConflict()
			}
		}

		if label == "" {
			label = DefaultLabel(fp, now)
		}
		created, err := repo.CreateDevice(ctx, DeviceRecord{
			ID:              uuid.New().String(),
			UserID:          userID,
			Fingerprint:     fp,
			FingerprintHash: hash,
			DeviceLabel:     label,
			CreatedAt:       now,
			LastUsedAt:      now,
			IsActive:        true,
		})
		if err != nil {
			return err
		}

		newState, err := r.enforcer.Evaluate(ctx, repo, userID)
		if err != nil {
			return err
		}
		count, err := repo.CountActiveDevices(ctx, userID)
		if err != nil {
			return err
		}

		newlyBlocked = newState.IsBlocked
		result = RegistrationResult{
			Device:      created,
			ActiveCount: count,
			TrustState:  newState,
		}
		return nil
	})

	switch {
	case apperrors.IsCode(err, apperrors.ErrCodeAccountBlocked):
		r.metrics.Registration(metrics.OutcomeRejected)
		slog.Info("Registration refused for blocked account", "userID", userID)
		return RegistrationResult{}, err
	case apperrors.IsCode(err, apperrors.ErrCodeDeviceConflict):
		r.metrics.Registration(metrics.OutcomeConflict)
		return RegistrationResult{}, err
	case err != nil:
		slog.Error("Failed to register device", "userID", userID, "error", err)
		return RegistrationResult{}, storageError(err, "failed to register device")
	}

	if result.Matched {
		r.metrics.Registration(metrics.OutcomeMatched)
		r.metrics.MatchScore(result.Score)
		slog.Debug("Device recognized", "userID", userID, "deviceID", result.Device.ID, "score", result.Score)
		if result.TrustState.IsBlocked {
			return result, apperrors.AccountBlocked(result.TrustState.BlockedReason)
		}
		return result, nil
	}

	if newlyBlocked {
		r.metrics.Registration(metrics.OutcomeBlocked)
		r.metrics.AccountBlocked()
		slog.Warn("Device registration exceeded limit", "userID", userID, "deviceID", result.Device.ID,
			"activeDevices", result.ActiveCount, "limit", r.enforcer.MaxDevices())
		r.sendBlockAlert(ctx, userID)
		return result, apperrors.DeviceLimitExceeded(result.ActiveCount, r.enforcer.MaxDevices())
	}

	r.metrics.Registration(metrics.OutcomeCreated)
	slog.Info("Device registered", "userID", userID, "deviceID", result.Device.ID, "activeDevices", result.ActiveCount)
	return result, nil
}

// sendBlockAlert runs after the block is committed. Failures are logged only.
func (r *Registry) sendBlockAlert(ctx context.Context, userID string) {
	token, err := r.tokens.Issue(userID)
	if err != nil {
		r.metrics.AlertFailed()
		slog.Error("Failed to issue management token for block alert", "userID", userID, "error", err)
		return
	}
	r.metrics.Token(metrics.TokenIssued)

	alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.alerter.AccountBlocked(alertCtx, userID, token); err != nil {
		r.metrics.AlertFailed()
		slog.Error("Failed to send block alert", "userID", userID, "error", err)
	}
}

// DeviceView is a device with browser and operating system derived from its user agent
type DeviceView struct {
	DeviceRecord
	Browser string `json:"browser"`
	OS      string `json:"os"`
}

// List returns the active devices of an account, most recently used first
func (r *Registry) List(ctx context.Context, userID string) ([]DeviceView, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	devices, err := r.repo.FindActiveDevices(ctx, userID)
	if err != nil {
		slog.Error("Failed to list devices", "userID", userID, "error", err)
		return nil, storageError(err, "failed to list devices")
	}

	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].LastUsedAt.After(devices[j].LastUsedAt)
	})

	views := make([]DeviceView, len(devices))
	for i, d := range devices {
		views[i] = DeviceView{
			DeviceRecord: d,
			Browser:      BrowserName(d.Fingerprint.UserAgent),
			OS:           OSName(d.Fingerprint.UserAgent),
		}
	}
	return views, nil
}

// Remove deactivates a device and returns the account's remaining active count.
// Only one removal per cooldown window is allowed.
func (r *Registry) Remove(ctx context.Context, userID, deviceID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var remaining int
	err := r.repo.RunInUserTx(ctx, userID, func(repo Repository) error {
		wait, err := r.throttler.TimeUntilNextRemoval(ctx, userID)
		if err != nil {
			return err
		}
		if wait > 0 {
			return apperrors.RemovalThrottled(int64(math.Ceil(wait.Seconds())))
		}

		if err := repo.DeactivateDevice(ctx, userID, deviceID); err != nil {
			if errors.Is(err, ErrDeviceNotFound) {
				return apperrors.NotFound("device", deviceID)
			}
			return err
		}
		if _, err := r.enforcer.Reconcile(ctx, repo, userID); err != nil {
			return err
		}
		remaining, err = repo.CountActiveDevices(ctx, userID)
		return err
	})

	switch {
	case apperrors.IsCode(err, apperrors.ErrCodeRemovalThrottled):
		r.metrics.Removal(metrics.OutcomeThrottled)
		slog.Warn("Device removal throttled", "userID", userID, "deviceID", deviceID)
		return 0, err
	case apperrors.IsCode(err, apperrors.ErrCodeNotFound):
		r.metrics.Removal(metrics.OutcomeNotFound)
		return 0, err
	case err != nil:
		slog.Error("Failed to remove device", "userID", userID, "deviceID", deviceID, "error", err)
		return 0, storageError(err, "failed to remove device")
	}

	// The removal is committed; a failed cooldown write is not reported to the caller
	if err := r.throttler.RecordRemoval(ctx, userID); err != nil {
		slog.Error("Failed to record device removal cooldown", "userID", userID, "deviceID", deviceID, "error", err)
	}

	r.metrics.Removal(metrics.OutcomeRemoved)
	slog.Info("Device removed", "userID", userID, "deviceID", deviceID, "remaining", remaining)
	return remaining, nil
}

// Rename changes the label of an active device
func (r *Registry) Rename(ctx context.Context, userID, deviceID, label string) (DeviceRecord, error) {
	label, err := NormalizeLabel(label)
	if err != nil {
		return DeviceRecord{}, apperrors.InvalidInput("deviceLabel", err.Error())
	}
	if label == "" {
		return DeviceRecord{}, apperrors.InvalidInput("deviceLabel", "label is required")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var renamed DeviceRecord
	err = r.repo.RunInUserTx(ctx, userID, func(repo Repository) error {
		var err error
		renamed, err = repo.RenameDevice(ctx, userID, deviceID, label)
		return err
	})
	if errors.Is(err, ErrDeviceNotFound) {
		return DeviceRecord{}, apperrors.NotFound("device", deviceID)
	}
	if err != nil {
		slog.Error("Failed to rename device", "userID", userID, "deviceID", deviceID, "error", err)
		return DeviceRecord{}, storageError(err, "failed to rename device")
	}
	slog.Info("Device renamed", "userID", userID, "deviceID", deviceID)
	return renamed, nil
}

// TrustState returns the account's current trust state
func (r *Registry) TrustState(ctx context.Context, userID string) (trust.AccountTrustState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	state, err := r.enforcer.State(ctx, r.repo, userID)
	if err != nil {
		slog.Error("Failed to load trust state", "userID", userID, "error", err)
		return trust.AccountTrustState{}, storageError(err, "failed to load trust state")
	}
	return state, nil
}

// Unblock clears a block. It fails with DEVICE_LIMIT_EXCEEDED while the
// account still has too many active devices.
func (r *Registry) Unblock(ctx context.Context, userID string) (trust.AccountTrustState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var state trust.AccountTrustState
	err := r.repo.RunInUserTx(ctx, userID, func(repo Repository) error {
		var err error
		state, err = r.enforcer.Unblock(ctx, repo, userID)
		return err
	})
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeDeviceLimitExceeded) {
			return trust.AccountTrustState{}, err
		}
		slog.Error("Failed to unblock account", "userID", userID, "error", err)
		return trust.AccountTrustState{}, storageError(err, "failed to unblock account")
	}
	return state, nil
}

// IssueManagementToken creates a device-management token for userID
func (r *Registry) IssueManagementToken(userID string) (mgmttoken.Token, error) {
	token, err := r.tokens.Issue(userID)
	if err != nil {
		return mgmttoken.Token{}, apperrors.InvalidInput("userID", err.Error())
	}
	r.metrics.Token(metrics.TokenIssued)
	slog.Info("Management token issued", "userID", userID, "expiresAt", token.ExpiresAt)
	return token, nil
}

// VerifyManagementToken checks a management token. Every failure is reported
// as TOKEN_INVALID; the specific reason is only logged.
func (r *Registry) VerifyManagementToken(value string) (mgmttoken.Token, error) {
	token, err := r.tokens.Verify(value)
	if err != nil {
		r.metrics.Token(metrics.TokenInvalid)
		slog.Warn("Management token rejected", "reason", err)
		return mgmttoken.Token{}, apperrors.TokenInvalid(err)
	}
	r.metrics.Token(metrics.TokenValid)
	return token, nil
}

// storageError passes typed errors through and wraps everything else
func storageError(err error, message string) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.InternalWrap(err, message)
}
