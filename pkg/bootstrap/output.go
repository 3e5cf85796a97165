package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// BootstrapResult describes how the registry was assembled
type BootstrapResult struct {
	Persistence string
	Database    string // empty unless persistence is postgres
	Redis       string // empty when cooldowns are in memory
	EmailAlerts bool
	MaxDevices  int
	AutoUnblock bool
}

// PrintBootstrapResult displays the startup summary in a clean, formatted way
func PrintBootstrapResult(w io.Writer, result *BootstrapResult) {
	if result == nil {
		return
	}

	printSectionHeader(w, "DEVICE TRUST READY")

	fmt.Fprintln(w, "\n📋 Storage:")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "  Persistence: %s\n", result.Persistence)
	if result.Database != "" {
		fmt.Fprintf(w, "  Database:    %s\n", result.Database)
	}
	fmt.Fprintf(w, "  Cooldowns:   %s\n", orDefault(result.Redis, "in memory"))

	fmt.Fprintln(w, "\n🔒 Policy:")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "  Max devices:  %d\n", result.MaxDevices)
	fmt.Fprintf(w, "  Auto unblock: %t\n", result.AutoUnblock)
	fmt.Fprintf(w, "  Email alerts: %t\n", result.EmailAlerts)

	if result.Redis == "" {
		fmt.Fprintln(w, "\n⚠️  Removal cooldowns are not shared between instances. Set DEVICE_REDIS_ADDR when running more than one.")
	}

	printSectionFooter(w)
}

// LogBootstrapSummary logs a concise summary using slog (for structured logging)
func LogBootstrapSummary(result *BootstrapResult) {
	if result == nil {
		return
	}
	slog.Info("Device trust summary",
		"persistence", result.Persistence,
		"database", result.Database,
		"redis", result.Redis,
		"email_alerts", result.EmailAlerts,
		"max_devices", result.MaxDevices,
		"auto_unblock", result.AutoUnblock,
	)
}

func printSectionHeader(w io.Writer, title string) {
	border := strings.Repeat("=", 80)
	fmt.Fprintf(w, "\n%s\n", border)
	fmt.Fprintf(w, "🚀 %s\n", title)
	fmt.Fprintf(w, "%s\n", border)
}

func printSectionFooter(w io.Writer) {
	fmt.Fprintf(w, "%s\n\n", strings.Repeat("=", 80))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
