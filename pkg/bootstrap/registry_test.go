package bootstrap

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-device-trust/pkg/config"
	"github.com/tendant/simple-device-trust/pkg/fingerprint"
	"github.com/tendant/simple-device-trust/pkg/trust"
)

func testConfig(persistence string) Config {
	return Config{
		DeviceTrust: config.DeviceTrustConfig{
			MaxDevicesPerUser:     2,
			SimilarityThreshold:   0.65,
			ColorDepthVariance:    8,
			ManagementTokenTTL:    5 * time.Minute,
			ManagementTokenSecret: strings.Repeat("x", 32),
			ManagementURL:         "http://localhost:4000/device-management",
			RemovalCooldown:       time.Hour,
			Persistence:           persistence,
			StorageTimeout:        time.Second,
		},
	}
}

func TestBuild_Memory(t *testing.T) {
	c, err := Build(context.Background(), testConfig(config.PersistenceMemory))
	require.NoError(t, err)
	defer c.Close()

	fp := fingerprint.Fingerprint{
		Platform:  "Win32",
		Screen:    fingerprint.Screen{Width: 1920, Height: 1080, ColorDepth: 24},
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0",
		Timezone:  "UTC",
		Language:  "en-US",
	}
	result, err := c.Registry.RegisterOrTouch(context.Background(), "alice", fp, "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ActiveCount)
	assert.Equal(t, trust.StateActive, result.TrustState.State())

	assert.False(t, c.Result.EmailAlerts)
	assert.Empty(t, c.Result.Redis)
	assert.Equal(t, 2, c.Registry.MaxDevices())
}

func TestBuild_File(t *testing.T) {
	cfg := testConfig(config.PersistenceFile)
	cfg.DeviceTrust.DataDir = t.TempDir()

	c, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	token, err := c.Registry.IssueManagementToken("alice")
	require.NoError(t, err)
	verified, err := c.Registry.VerifyManagementToken(token.Value)
	require.NoError(t, err)
	assert.Equal(t, "alice", verified.UserID)
}

func TestBuild_EmailWithoutPostgresDisablesAlerts(t *testing.T) {
	cfg := testConfig(config.PersistenceMemory)
	cfg.Email = config.EmailConfig{Enabled: true, Host: "localhost", Port: 1025, From: "noreply@example.com"}

	c, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()
	assert.False(t, c.Result.EmailAlerts)
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := testConfig(config.PersistenceMemory)
	cfg.DeviceTrust.RemovalCooldown = 0
	cfg.DeviceTrust.ManagementTokenSecret = "short"

	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEVICE_REMOVAL_COOLDOWN")
	assert.Contains(t, err.Error(), "DEVICE_MANAGEMENT_TOKEN_SECRET")
}

func TestPrintBootstrapResult(t *testing.T) {
	var buf bytes.Buffer
	PrintBootstrapResult(&buf, &BootstrapResult{Persistence: "memory", MaxDevices: 2})
	out := buf.String()
	assert.Contains(t, out, "DEVICE TRUST READY")
	assert.Contains(t, out, "Max devices:  2")
	assert.Contains(t, out, "in memory")

	buf.Reset()
	db := config.DatabaseConfig{Host: "db", Port: 5432, Database: "device_trust", User: "svc", Password: "hunter2", Schema: "public"}
	PrintBootstrapResult(&buf, &BootstrapResult{Persistence: "postgres", Database: db.RedactedDatabaseURL()})
	out = buf.String()
	assert.Contains(t, out, "postgres://svc:xxxxx@db:5432/device_trust")
	assert.NotContains(t, out, "hunter2")

	buf.Reset()
	PrintBootstrapResult(&buf, nil)
	assert.Empty(t, buf.String())
}
