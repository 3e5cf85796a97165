package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-device-trust/pkg/trust"
)

// InMemDeviceRepository implements Repository using in-memory maps
type InMemDeviceRepository struct {
	devices map[string]DeviceRecord // Key: device ID
	states  map[string]trust.AccountTrustState
	mu      sync.RWMutex
	locks   *userLocks
}

// NewInMemDeviceRepository creates a new in-memory device repository
func NewInMemDeviceRepository() *InMemDeviceRepository {
	return &InMemDeviceRepository{
		devices: make(map[string]DeviceRecord),
		states:  make(map[string]trust.AccountTrustState),
		locks:   newUserLocks(),
	}
}

// userSnapshot is everything one account owns, captured before a unit of work
type userSnapshot struct {
	devices  []DeviceRecord
	state    trust.AccountTrustState
	hasState bool
}

// RunInUserTx serializes fn per account and restores the account's data if fn fails
func (r *InMemDeviceRepository) RunInUserTx(ctx context.Context, userID string, fn func(repo Repository) error) error {
	return r.runInUserTx(ctx, userID, r, fn, nil)
}

func (r *InMemDeviceRepository) runInUserTx(ctx context.Context, userID string, self Repository, fn func(repo Repository) error, afterRollback func() error) error {
	unlock, err := r.locks.lock(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to lock user %s: %w", userID, err)
	}
	defer unlock()

	snap := r.snapshot(userID)
	if err := fn(self); err != nil {
		r.restore(userID, snap)
		slog.Debug("Rolled back device changes", "userID", userID, "error", err)
		if afterRollback != nil {
			if rbErr := afterRollback(); rbErr != nil {
				slog.Error("Failed to persist rollback", "userID", userID, "error", rbErr)
			}
		}
		return err
	}
	return nil
}

func (r *InMemDeviceRepository) snapshot(userID string) userSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var snap userSnapshot
	for _, d := range r.devices {
		if d.UserID == userID {
			snap.devices = append(snap.devices, d)
		}
	}
	snap.state, snap.hasState = r.states[userID]
	return snap
}

func (r *InMemDeviceRepository) restore(userID string, snap userSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, d := range r.devices {
		if d.UserID == userID {
			delete(r.devices, id)
		}
	}
	for _, d := range snap.devices {
		r.devices[d.ID] = d
	}
	if snap.hasState {
		r.states[userID] = snap.state
	} else {
		delete(r.states, userID)
	}
}

// FindActiveDevices returns the active devices of an account
func (r *InMemDeviceRepository) FindActiveDevices(ctx context.Context, userID string) ([]DeviceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := []DeviceRecord{}
	for _, d := range r.devices {
		if d.UserID == userID && d.IsActive {
			devices = append(devices, d)
		}
	}
	slog.Debug("Found active devices", "userID", userID, "count", len(devices))
	return devices, nil
}

// GetDevice returns a device owned by userID, active or not
func (r *InMemDeviceRepository) GetDevice(ctx context.Context, userID, deviceID string) (DeviceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[deviceID]
	if !ok || d.UserID != userID {
		slog.Debug("Device not found", "userID", userID, "deviceID", deviceID)
		return DeviceRecord{}, ErrDeviceNotFound
	}
	return d, nil
}

// CreateDevice stores a new record, generating an ID when none is set
func (r *InMemDeviceRepository) CreateDevice(ctx context.Context, record DeviceRecord) (DeviceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if _, exists := r.devices[record.ID]; exists {
		return DeviceRecord{}, fmt.Errorf("device already exists: %s", record.ID)
	}

	r.devices[record.ID] = record
	slog.Debug("Device created", "userID", record.UserID, "deviceID", record.ID)
	return record, nil
}

// TouchDevice updates LastUsedAt and, when label is set, the device label
func (r *InMemDeviceRepository) TouchDevice(ctx context.Context, userID, deviceID string, at time.Time, label string) (DeviceRecord, error) {
	return r.update(userID, deviceID, func(d *DeviceRecord) {
		d.LastUsedAt = at
		if label != "" {
			d.DeviceLabel = label
		}
	})
}

// DeactivateDevice marks a device inactive
func (r *InMemDeviceRepository) DeactivateDevice(ctx context.Context, userID, deviceID string) error {
	_, err := r.update(userID, deviceID, func(d *DeviceRecord) {
		d.IsActive = false
	})
	return err
}

// RenameDevice replaces the device label
func (r *InMemDeviceRepository) RenameDevice(ctx context.Context, userID, deviceID, label string) (DeviceRecord, error) {
	return r.update(userID, deviceID, func(d *DeviceRecord) {
		d.DeviceLabel = label
	})
}

func (r *InMemDeviceRepository) update(userID, deviceID string, apply func(d *DeviceRecord)) (DeviceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok || d.UserID != userID || !d.IsActive {
		return DeviceRecord{}, ErrDeviceNotFound
	}
	apply(&d)
	r.devices[deviceID] = d
	return d, nil
}

// FindActiveByFingerprintHash returns active records with this hash owned by other accounts
func (r *InMemDeviceRepository) FindActiveByFingerprintHash(ctx context.Context, hash, excludeUserID string) ([]DeviceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []DeviceRecord
	for _, d := range r.devices {
		if d.IsActive && d.FingerprintHash == hash && d.UserID != excludeUserID {
			devices = append(devices, d)
		}
	}
	return devices, nil
}

// CountActiveDevices returns the number of active devices of an account
func (r *InMemDeviceRepository) CountActiveDevices(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, d := range r.devices {
		if d.UserID == userID && d.IsActive {
			count++
		}
	}
	return count, nil
}

// GetTrustState returns the stored state, or an active state if none is stored
func (r *InMemDeviceRepository) GetTrustState(ctx context.Context, userID string) (trust.AccountTrustState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if state, ok := r.states[userID]; ok {
		return state, nil
	}
	return trust.Active(userID), nil
}

// SaveTrustState stores the account's trust state
func (r *InMemDeviceRepository) SaveTrustState(ctx context.Context, state trust.AccountTrustState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states[state.UserID] = state
	return nil
}
