package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-device-trust/pkg/trust"
)

const deviceDataFile = "devices.json"

// FileDeviceRepository implements Repository on top of the in-memory repository,
// writing the whole data set to a JSON file after every change.
//
// Transactions are isolated in memory only. A write made for one account
// snapshots every account, so the file may briefly hold another account's
// uncommitted changes until that transaction commits or its rollback is
// written back. A crash in that window persists them. Use the PostgreSQL
// repository where that matters.
type FileDeviceRepository struct {
	*InMemDeviceRepository
	dataDir string
	saveMu  sync.Mutex
}

// deviceData represents the structure of data stored in the JSON file
type deviceData struct {
	Devices     []DeviceRecord            `json:"devices"`
	TrustStates []trust.AccountTrustState `json:"trust_states"`
}

// NewFileDeviceRepository creates a new file-based device repository
func NewFileDeviceRepository(dataDir string) (*FileDeviceRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileDeviceRepository{
		InMemDeviceRepository: NewInMemDeviceRepository(),
		dataDir:               dataDir,
	}
	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	return repo, nil
}

// RunInUserTx works like the in-memory version; a rollback is written back to disk
func (r *FileDeviceRepository) RunInUserTx(ctx context.Context, userID string, fn func(repo Repository) error) error {
	return r.runInUserTx(ctx, userID, r, fn, r.save)
}

// CreateDevice creates a new device
func (r *FileDeviceRepository) CreateDevice(ctx context.Context, record DeviceRecord) (DeviceRecord, error) {
	created, err := r.InMemDeviceRepository.CreateDevice(ctx, record)
	if err != nil {
		return DeviceRecord{}, err
	}
	if err := r.save(); err != nil {
		return DeviceRecord{}, fmt.Errorf("failed to save: %w", err)
	}
	return created, nil
}

// TouchDevice updates LastUsedAt and optionally the label
func (r *FileDeviceRepository) TouchDevice(ctx context.Context, userID, deviceID string, at time.Time, label string) (DeviceRecord, error) {
	updated, err := r.InMemDeviceRepository.TouchDevice(ctx, userID, deviceID, at, label)
	if err != nil {
		return DeviceRecord{}, err
	}
	if err := r.save(); err != nil {
		return DeviceRecord{}, fmt.Errorf("failed to save: %w", err)
	}
	return updated, nil
}

// DeactivateDevice marks a device inactive
func (r *FileDeviceRepository) DeactivateDevice(ctx context.Context, userID, deviceID string) error {
	if err := r.InMemDeviceRepository.DeactivateDevice(ctx, userID, deviceID); err != nil {
		return err
	}
	if err := r.save(); err != nil {
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

// RenameDevice replaces the device label
func (r *FileDeviceRepository) RenameDevice(ctx context.Context, userID, deviceID, label string) (DeviceRecord, error) {
	updated, err := r.InMemDeviceRepository.RenameDevice(ctx, userID, deviceID, label)
	if err != nil {
		return DeviceRecord{}, err
	}
	if err := r.save(); err != nil {
		return DeviceRecord{}, fmt.Errorf("failed to save: %w", err)
	}
	return updated, nil
}

// SaveTrustState stores the account's trust state
func (r *FileDeviceRepository) SaveTrustState(ctx context.Context, state trust.AccountTrustState) error {
	if err := r.InMemDeviceRepository.SaveTrustState(ctx, state); err != nil {
		return err
	}
	if err := r.save(); err != nil {
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

// load reads device data from file
func (r *FileDeviceRepository) load() error {
	data, err := os.ReadFile(filepath.Join(r.dataDir, deviceDataFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var devData deviceData
	if err := json.Unmarshal(data, &devData); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range devData.Devices {
		r.devices[d.ID] = d
	}
	for _, s := range devData.TrustStates {
		r.states[s.UserID] = s
	}
	return nil
}

// save writes device data to file atomically
func (r *FileDeviceRepository) save() error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.RLock()
	data := deviceData{
		Devices:     make([]DeviceRecord, 0, len(r.devices)),
		TrustStates: make([]trust.AccountTrustState, 0, len(r.states)),
	}
	for _, d := range r.devices {
		data.Devices = append(data.Devices, d)
	}
	for _, s := range r.states {
		data.TrustStates = append(data.TrustStates, s)
	}
	r.mu.RUnlock()

	sort.Slice(data.Devices, func(i, j int) bool { return data.Devices[i].ID < data.Devices[j].ID })
	sort.Slice(data.TrustStates, func(i, j int) bool { return data.TrustStates[i].UserID < data.TrustStates[j].UserID })

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Write to temp file first
	tempFile := filepath.Join(r.dataDir, deviceDataFile+".tmp")
	if err := os.WriteFile(tempFile, jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempFile, filepath.Join(r.dataDir, deviceDataFile)); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
