package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tendant/simple-device-trust/pkg/trust"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// TxBeginner is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx
type TxBeginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresDeviceRepository implements Repository using PostgreSQL
type PostgresDeviceRepository struct {
	db DBTX
}

// NewPostgresDeviceRepository creates a new PostgreSQL device repository.
// RunInUserTx needs a db that can begin transactions.
func NewPostgresDeviceRepository(db DBTX) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db}
}

// RunInUserTx runs fn in a transaction holding a transaction-scoped advisory
// lock derived from userID. Concurrent calls for the same account queue on the
// lock; other accounts are unaffected.
func (r *PostgresDeviceRepository) RunInUserTx(ctx context.Context, userID string, fn func(repo Repository) error) error {
	beginner, ok := r.db.(TxBeginner)
	if !ok {
		return fmt.Errorf("database handle does not support transactions")
	}

	return pgx.BeginFunc(ctx, beginner, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, userID); err != nil {
			return fmt.Errorf("failed to lock user %s: %w", userID, err)
		}
		return fn(&PostgresDeviceRepository{db: tx})
	})
}

const deviceColumns = `id::text, user_id, fingerprint, fingerprint_hash, device_label, created_at, last_used_at, is_active`

func scanDevice(row pgx.Row) (DeviceRecord, error) {
	var d DeviceRecord
	err := row.Scan(&d.ID, &d.UserID, &d.Fingerprint, &d.FingerprintHash, &d.DeviceLabel, &d.CreatedAt, &d.LastUsedAt, &d.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return DeviceRecord{}, ErrDeviceNotFound
	}
	return d, err
}

func (r *PostgresDeviceRepository) queryDevices(ctx context.Context, query string, args ...interface{}) ([]DeviceRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := []DeviceRecord{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device rows: %w", err)
	}
	return devices, nil
}

// FindActiveDevices returns the active devices of an account
func (r *PostgresDeviceRepository) FindActiveDevices(ctx context.Context, userID string) ([]DeviceRecord, error) {
	query := `SELECT ` + deviceColumns + ` FROM device_records WHERE user_id = $1 AND is_active ORDER BY last_used_at DESC`
	devices, err := r.queryDevices(ctx, query, userID)
	if err != nil {
		slog.Error("Failed to find active devices", "userID", userID, "error", err)
		return nil, fmt.Errorf("failed to find active devices: %w", err)
	}
	slog.Debug("Found active devices", "userID", userID, "count", len(devices))
	return devices, nil
}

// GetDevice returns a device owned by userID, active or not
func (r *PostgresDeviceRepository) GetDevice(ctx context.Context, userID, deviceID string) (DeviceRecord, error) {
	id, err := uuid.Parse(deviceID)
	if err != nil {
		return DeviceRecord{}, ErrDeviceNotFound
	}
	query := `SELECT ` + deviceColumns + ` FROM device_records WHERE id = $1 AND user_id = $2`
	d, err := scanDevice(r.db.QueryRow(ctx, query, id, userID))
	if err != nil && !errors.Is(err, ErrDeviceNotFound) {
		return DeviceRecord{}, fmt.Errorf("failed to get device: %w", err)
	}
	return d, err
}

// CreateDevice inserts a new record, generating an ID when none is set
func (r *PostgresDeviceRepository) CreateDevice(ctx context.Context, record DeviceRecord) (DeviceRecord, error) {
	id := uuid.New()
	if record.ID != "" {
		parsed, err := uuid.Parse(record.ID)
		if err != nil {
			return DeviceRecord{}, fmt.Errorf("invalid device id %q: %w", record.ID, err)
		}
		id = parsed
	}

	query := `
		INSERT INTO device_records (id, user_id, fingerprint, fingerprint_hash, device_label, created_at, last_used_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + deviceColumns
	created, err := scanDevice(r.db.QueryRow(ctx, query,
		id, record.UserID, record.Fingerprint, record.FingerprintHash, record.DeviceLabel,
		record.CreatedAt, record.LastUsedAt, record.IsActive))
	if err != nil {
		slog.Error("Failed to create device", "userID", record.UserID, "error", err)
		return DeviceRecord{}, fmt.Errorf("failed to create device: %w", err)
	}
	slog.Debug("Device created", "userID", created.UserID, "deviceID", created.ID)
	return created, nil
}

// TouchDevice updates LastUsedAt and, when label is set, the device label
func (r *PostgresDeviceRepository) TouchDevice(ctx context.Context, userID, deviceID string, at time.Time, label string) (DeviceRecord, error) {
	query := `
		UPDATE device_records
		SET last_used_at = $3, device_label = COALESCE(NULLIF($4, ''), device_label)
		WHERE id = $1 AND user_id = $2 AND is_active
		RETURNING ` + deviceColumns
	return r.updateDevice(ctx, "touch", query, deviceID, userID, at, label)
}

// RenameDevice replaces the device label
func (r *PostgresDeviceRepository) RenameDevice(ctx context.Context, userID, deviceID, label string) (DeviceRecord, error) {
	query := `
		UPDATE device_records SET device_label = $3
		WHERE id = $1 AND user_id = $2 AND is_active
		RETURNING ` + deviceColumns
	return r.updateDevice(ctx, "rename", query, deviceID, userID, label)
}

func (r *PostgresDeviceRepository) updateDevice(ctx context.Context, op, query, deviceID, userID string, args ...interface{}) (DeviceRecord, error) {
	id, err := uuid.Parse(deviceID)
	if err != nil {
		return DeviceRecord{}, ErrDeviceNotFound
	}
	d, err := scanDevice(r.db.QueryRow(ctx, query, append([]interface{}{id, userID}, args...)...))
	if err != nil && !errors.Is(err, ErrDeviceNotFound) {
		return DeviceRecord{}, fmt.Errorf("failed to %s device: %w", op, err)
	}
	return d, err
}

// DeactivateDevice marks a device inactive
func (r *PostgresDeviceRepository) DeactivateDevice(ctx context.Context, userID, deviceID string) error {
	id, err := uuid.Parse(deviceID)
	if err != nil {
		return ErrDeviceNotFound
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE device_records SET is_active = false, deactivated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND is_active`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	slog.Debug("Device deactivated", "userID", userID, "deviceID", deviceID)
	return nil
}

// FindActiveByFingerprintHash returns active records with this hash owned by other accounts
func (r *PostgresDeviceRepository) FindActiveByFingerprintHash(ctx context.Context, hash, excludeUserID string) ([]DeviceRecord, error) {
	query := `SELECT ` + deviceColumns + ` FROM device_records WHERE fingerprint_hash = $1 AND user_id <> $2 AND is_active`
	devices, err := r.queryDevices(ctx, query, hash, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find devices by fingerprint hash: %w", err)
	}
	return devices, nil
}

// CountActiveDevices returns the number of active devices of an account
func (r *PostgresDeviceRepository) CountActiveDevices(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM device_records WHERE user_id = $1 AND is_active`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active devices: %w", err)
	}
	return count, nil
}

// GetTrustState returns the stored state, or an active state if none is stored
func (r *PostgresDeviceRepository) GetTrustState(ctx context.Context, userID string) (trust.AccountTrustState, error) {
	state := trust.AccountTrustState{UserID: userID}
	err := r.db.QueryRow(ctx, `
		SELECT is_blocked, COALESCE(blocked_reason, ''), blocked_at
		FROM account_trust_state WHERE user_id = $1`, userID).
		Scan(&state.IsBlocked, &state.BlockedReason, &state.BlockedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return trust.Active(userID), nil
	}
	if err != nil {
		return trust.AccountTrustState{}, fmt.Errorf("failed to get trust state: %w", err)
	}
	return state, nil
}

// SaveTrustState upserts the account's trust state
func (r *PostgresDeviceRepository) SaveTrustState(ctx context.Context, state trust.AccountTrustState) error {
	var reason *string
	if state.BlockedReason != "" {
		reason = &state.BlockedReason
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO account_trust_state (user_id, is_blocked, blocked_reason, blocked_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET is_blocked = EXCLUDED.is_blocked,
			blocked_reason = EXCLUDED.blocked_reason,
			blocked_at = EXCLUDED.blocked_at,
			updated_at = EXCLUDED.updated_at`,
		state.UserID, state.IsBlocked, reason, state.BlockedAt)
	if err != nil {
		slog.Error("Failed to save trust state", "userID", state.UserID, "error", err)
		return fmt.Errorf("failed to save trust state: %w", err)
	}
	return nil
}
