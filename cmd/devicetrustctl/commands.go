package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-device-trust/pkg/config"
	"github.com/tendant/simple-device-trust/pkg/mgmttoken"
	"github.com/tendant/simple-device-trust/pkg/notification"
	"github.com/tendant/simple-device-trust/pkg/trust"
)

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <userID>",
		Short: "Show an account's trust state and device count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			registry := c.components.Registry

			state, err := registry.TrustState(cmd.Context(), userID)
			if err != nil {
				return err
			}
			devices, err := registry.List(cmd.Context(), userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User:     %s\n", userID)
			fmt.Fprintf(out, "State:    %s\n", state.State())
			if state.State() == trust.StateBlocked {
				fmt.Fprintf(out, "Reason:   %s\n", state.BlockedReason)
				if state.BlockedAt != nil {
					fmt.Fprintf(out, "Since:    %s\n", state.BlockedAt.Format(time.RFC3339))
				}
			}
			fmt.Fprintf(out, "Devices:  %d of %d\n", len(devices), registry.MaxDevices())
			return nil
		},
	}
}

func (c *cli) unblockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <userID>",
		Short: "Clear a TOO_MANY_DEVICES block",
		Long: `Unblock returns the account to ACTIVE. It is refused while the account
still has more active devices than allowed; remove devices first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := c.components.Registry.Unblock(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to unblock %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", args[0], state.State())
			return nil
		},
	}
}

func (c *cli) devicesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <userID>",
		Short: "List a user's active devices, most recently used first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := c.components.Registry.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No devices found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLABEL\tBROWSER\tOS\tLAST USED")
			for _, d := range devices {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					d.ID, d.DeviceLabel, d.Browser, d.OS, d.LastUsedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func (c *cli) devicesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <userID> <deviceID>",
		Short: "Remove a device; the removal cooldown applies",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remaining, err := c.components.Registry.Remove(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s, %d device(s) remaining\n", args[1], remaining)
			return nil
		},
	}
}

func (c *cli) tokenIssueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "issue <userID>",
		Short: "Issue a device management token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := c.components.Registry.IssueManagementToken(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Token:    %s\n", token.Value)
			fmt.Fprintf(out, "Expires:  %s\n", token.ExpiresAt.Format(time.RFC3339))
			if c.managementURL != "" {
				link, err := notification.ManagementLink(c.managementURL, token.Value)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Link:     %s\n", link)
			}
			return nil
		},
	}
}

func (c *cli) tokenVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Verify a device management token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := c.components.Registry.VerifyManagementToken(args[0])
			if err != nil {
				// The reason is logged by the registry
				return fmt.Errorf("token is not valid")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Valid token for %s, expires %s\n",
				token.UserID, token.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
}

func (c *cli) alertTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <email>",
		Short: "Send a sample account blocked email",
		Long: `Sends the account blocked email to the given address using the EMAIL_*
settings. The management link in the sample carries a placeholder token.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := c.mailer()
			if err != nil {
				return fmt.Errorf("failed to configure email: %w", err)
			}

			dt := config.NewDeviceTrustConfigFromEnv()
			recipient := notification.RecipientResolverFunc(func(context.Context, string) (string, error) {
				return args[0], nil
			})
			alerter := notification.NewBlockAlerter(manager, recipient, dt.ManagementURL, dt.MaxDevicesPerUser)

			sample := mgmttoken.Token{
				Value:     "sample-token",
				UserID:    "sample-user",
				ExpiresAt: time.Now().Add(dt.ManagementTokenTTL),
			}
			if err := alerter.AccountBlocked(cmd.Context(), sample.UserID, sample); err != nil {
				return fmt.Errorf("failed to send email: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Email sent to %s\n", args[0])
			return nil
		},
	}
}
