package device

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"
)

func setupPostgresDeviceRepository(t *testing.T) (*PostgresDeviceRepository, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping PostgreSQL test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithInitScripts(filepath.Join("../../migrations", "devicetrust.sql")),
		postgres.WithDatabase("device_db"),
		postgres.WithUsername("device"),
		postgres.WithPassword("pwd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewPostgresDeviceRepository(pool), pool
}

func TestPostgresDeviceRepository(t *testing.T) {
	repo, pool := setupPostgresDeviceRepository(t)

	t.Run("contract", func(t *testing.T) {
		repositoryContract(t, repo)
	})

	t.Run("invalid device id", func(t *testing.T) {
		_, err := repo.GetDevice(context.Background(), "alice", "not-a-uuid")
		assert.ErrorIs(t, err, ErrDeviceNotFound)
		assert.ErrorIs(t, repo.DeactivateDevice(context.Background(), "alice", "not-a-uuid"), ErrDeviceNotFound)
	})

	t.Run("advisory lock serializes count-then-insert", func(t *testing.T) {
		ctx := context.Background()
		const limit = 2

		var g errgroup.Group
		for i := 0; i < 10; i++ {
			g.Go(func() error {
				return repo.RunInUserTx(ctx, "carol", func(tx Repository) error {
					count, err := tx.CountActiveDevices(ctx, "carol")
					if err != nil {
						return err
					}
					if count >= limit {
						return nil
					}
					_, err = tx.CreateDevice(ctx, newTestRecord("carol"))
					return err
				})
			})
		}
		require.NoError(t, g.Wait())

		count, err := repo.CountActiveDevices(ctx, "carol")
		require.NoError(t, err)
		assert.Equal(t, limit, count)
	})

	t.Run("factory", func(t *testing.T) {
		r, err := NewRepository("postgres", RepositoryConfig{DB: pool})
		require.NoError(t, err)
		assert.IsType(t, &PostgresDeviceRepository{}, r)
	})
}

func TestNewRepository(t *testing.T) {
	tests := []struct {
		name            string
		persistenceType string
		config          RepositoryConfig
		wantErr         bool
	}{
		{"memory", "memory", RepositoryConfig{}, false},
		{"file", "file", RepositoryConfig{DataDir: t.TempDir()}, false},
		{"file without dir", "file", RepositoryConfig{}, true},
		{"postgres without db", "postgres", RepositoryConfig{}, true},
		{"unknown", "mongo", RepositoryConfig{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, err := NewRepository(tt.persistenceType, tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, repo, fmt.Sprintf("repository for %s", tt.persistenceType))
		})
	}
}
