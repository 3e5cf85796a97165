package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-device-trust/pkg/trust"
)

// setupTestRepo creates a temporary directory and repository for testing
func setupTestRepo(t *testing.T) (*FileDeviceRepository, string) {
	tempDir := t.TempDir()
	repo, err := NewFileDeviceRepository(tempDir)
	require.NoError(t, err)
	return repo, tempDir
}

func TestFileDeviceRepository(t *testing.T) {
	repo, _ := setupTestRepo(t)
	repositoryContract(t, repo)
}

func TestFileDeviceRepository_NewRepository(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "nested", "devices")

	// Should create directory if it doesn't exist
	repo, err := NewFileDeviceRepository(tempDir)
	require.NoError(t, err)
	assert.NotNil(t, repo)
	assert.DirExists(t, tempDir)
}

func TestFileDeviceRepository_Persistence(t *testing.T) {
	repo, tempDir := setupTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateDevice(ctx, newTestRecord("alice"))
	require.NoError(t, err)
	require.NoError(t, repo.SaveTrustState(ctx, trust.AccountTrustState{
		UserID:        "alice",
		IsBlocked:     true,
		BlockedReason: trust.ReasonTooManyDevices,
	}))

	assert.FileExists(t, filepath.Join(tempDir, deviceDataFile))
	assert.NoFileExists(t, filepath.Join(tempDir, deviceDataFile+".tmp"))

	reloaded, err := NewFileDeviceRepository(tempDir)
	require.NoError(t, err)

	got, err := reloaded.GetDevice(ctx, "alice", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.DeviceLabel, got.DeviceLabel)
	assert.Equal(t, created.Fingerprint, got.Fingerprint)
	assert.True(t, created.LastUsedAt.Equal(got.LastUsedAt))

	state, err := reloaded.GetTrustState(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, state.IsBlocked)
}

func TestFileDeviceRepository_RollbackIsPersisted(t *testing.T) {
	repo, tempDir := setupTestRepo(t)
	ctx := context.Background()

	err := repo.RunInUserTx(ctx, "alice", func(tx Repository) error {
		if _, err := tx.CreateDevice(ctx, newTestRecord("alice")); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	reloaded, err := NewFileDeviceRepository(tempDir)
	require.NoError(t, err)
	count, err := reloaded.CountActiveDevices(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestFileDeviceRepository_CorruptFile(t *testing.T) {
	tempDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, deviceDataFile), []byte("{not json"), 0600))

	_, err := NewFileDeviceRepository(tempDir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load data")
}

func TestFileDeviceRepository_ConcurrentWriteSnapshotsOpenTransaction(t *testing.T) {
	repo, tempDir := setupTestRepo(t)
	ctx := context.Background()

	err := repo.RunInUserTx(ctx, "alice", func(tx Repository) error {
		if _, err := tx.CreateDevice(ctx, newTestRecord("alice")); err != nil {
			return err
		}

		// A write for another account persists alice's open transaction too
		_, err := repo.CreateDevice(ctx, newTestRecord("bob"))
		require.NoError(t, err)
		onDisk, err := NewFileDeviceRepository(tempDir)
		require.NoError(t, err)
		count, err := onDisk.CountActiveDevices(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		return errors.New("abort")
	})
	require.Error(t, err)

	// The rollback is written back without losing bob's committed device
	reloaded, err := NewFileDeviceRepository(tempDir)
	require.NoError(t, err)
	count, err := reloaded.CountActiveDevices(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	count, err = reloaded.CountActiveDevices(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
