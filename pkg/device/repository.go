package device

import (
	"context"
	"errors"
	"time"

	"github.com/tendant/simple-device-trust/pkg/fingerprint"
	"github.com/tendant/simple-device-trust/pkg/trust"
)

// ErrDeviceNotFound is returned by repositories when no record matches
var ErrDeviceNotFound = errors.New("device not found")

// DeviceRecord is one recognized device of an account
type DeviceRecord struct {
	ID              string                  `json:"id"`
	UserID          string                  `json:"user_id"`
	Fingerprint     fingerprint.Fingerprint `json:"fingerprint"`
	FingerprintHash string                  `json:"fingerprint_hash"`
	DeviceLabel     string                  `json:"device_label"`
	CreatedAt       time.Time               `json:"created_at"`
	LastUsedAt      time.Time               `json:"last_used_at"`
	IsActive        bool                    `json:"is_active"`
}

// Repository stores device records and account trust state.
//
// RunInUserTx runs fn as one atomic unit for the given account: calls for the
// same userID are serialized and a returned error discards every write made
// through the repository handed to fn. Calls for different accounts do not
// wait on each other.
type Repository interface {
	trust.Store

	RunInUserTx(ctx context.Context, userID string, fn func(repo Repository) error) error

	FindActiveDevices(ctx context.Context, userID string) ([]DeviceRecord, error)
	GetDevice(ctx context.Context, userID, deviceID string) (DeviceRecord, error)
	CreateDevice(ctx context.Context, record DeviceRecord) (DeviceRecord, error)
	// TouchDevice sets LastUsedAt. A non-empty label replaces the stored one.
	TouchDevice(ctx context.Context, userID, deviceID string, at time.Time, label string) (DeviceRecord, error)
	DeactivateDevice(ctx context.Context, userID, deviceID string) error
	RenameDevice(ctx context.Context, userID, deviceID, label string) (DeviceRecord, error)
	// FindActiveByFingerprintHash returns active records with the given hash owned by accounts other than excludeUserID
	FindActiveByFingerprintHash(ctx context.Context, hash, excludeUserID string) ([]DeviceRecord, error)
}
