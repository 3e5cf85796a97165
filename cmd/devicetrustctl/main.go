package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-device-trust/pkg/bootstrap"
	"github.com/tendant/simple-device-trust/pkg/config"
	"github.com/tendant/simple-device-trust/pkg/notification"
)

type Config struct {
	DeviceTrust config.DeviceTrustConfig
	Database    config.DatabaseConfig
	Redis       config.RedisConfig
}

type buildFunc func(ctx context.Context) (*bootstrap.Components, string, error)

// mailerFunc creates the notification manager used by "alert test"
type mailerFunc func() (*notification.NotificationManager, error)

// cli carries the components shared by every subcommand
type cli struct {
	build         buildFunc
	mailer        mailerFunc
	components    *bootstrap.Components
	managementURL string
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelWarn,
	})))

	if err := newRootCmd(buildFromEnv, mailerFromEnv).Execute(); err != nil {
		os.Exit(1)
	}
}

// buildFromEnv assembles the registry the same way the server does.
// Block alerts are never sent from the CLI.
func buildFromEnv(ctx context.Context) (*bootstrap.Components, string, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg := Config{}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to read configuration: %w", err)
	}
	components, err := bootstrap.Build(ctx, bootstrap.Config{
		DeviceTrust: cfg.DeviceTrust,
		Database:    cfg.Database,
		Redis:       cfg.Redis,
	})
	if err != nil {
		return nil, "", err
	}
	return components, cfg.DeviceTrust.ManagementURL, nil
}

// mailerFromEnv sends through the SMTP server configured by EMAIL_*
func mailerFromEnv() (*notification.NotificationManager, error) {
	emailConfig := config.NewEmailConfigFromEnv()
	if err := emailConfig.Validate(); err != nil {
		return nil, err
	}
	return notification.NewNotificationManager(
		notification.WithSMTP(emailConfig.ToSMTPConfig()),
		notification.WithAccountBlockedTemplate(),
	)
}

func newRootCmd(build buildFunc, mailer mailerFunc) *cobra.Command {
	c := &cli{build: build, mailer: mailer}

	root := &cobra.Command{
		Use:   "devicetrustctl",
		Short: "Inspect and administer device trust for user accounts",
		Long: `devicetrustctl reads the same environment as the devicetrust server
(DEVICE_*, DEVICE_PG_*, DEVICE_REDIS_*) and operates on the same storage.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			components, managementURL, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			c.components = components
			c.managementURL = managementURL
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.components != nil {
				c.components.Close()
			}
		},
	}

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List or remove a user's devices",
	}
	devicesCmd.AddCommand(c.devicesListCmd(), c.devicesRemoveCmd())

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue or verify device management tokens",
	}
	tokenCmd.AddCommand(c.tokenIssueCmd(), c.tokenVerifyCmd())

	alertCmd := &cobra.Command{
		Use:   "alert",
		Short: "Check block alert delivery",
		// Alerts do not touch device storage
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
	alertCmd.AddCommand(c.alertTestCmd())

	root.AddCommand(c.statusCmd(), c.unblockCmd(), devicesCmd, tokenCmd, alertCmd)
	return root
}
