package notification

import (
	"embed"
	"fmt"
)

//go:embed templates/*
var templateFiles embed.FS

// NotificationManagerOption configures a NotificationManager
type NotificationManagerOption func(*NotificationManager) error

// WithSMTP registers an EmailNotifier for EmailSystem
func WithSMTP(config SMTPConfig) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		emailNotifier, err := NewEmailNotifier(config)
		if err != nil {
			return err
		}
		nm.RegisterNotifier(EmailSystem, emailNotifier)
		return nil
	}
}

// WithNotifier registers an arbitrary notifier, typically a MockNotifier in tests
func WithNotifier(system NotificationSystem, notifier Notifier) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		nm.RegisterNotifier(system, notifier)
		return nil
	}
}

// WithAccountBlockedTemplate registers the account blocked email from the embedded templates
func WithAccountBlockedTemplate() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		text, err := templateFiles.ReadFile("templates/email/account_blocked.txt")
		if err != nil {
			return fmt.Errorf("account blocked template: %w", err)
		}
		html, err := templateFiles.ReadFile("templates/email/account_blocked.html")
		if err != nil {
			return fmt.Errorf("account blocked template: %w", err)
		}
		return nm.RegisterNotification(AccountBlockedNotice, EmailSystem, NoticeTemplate{
			Subject: "Your account has been blocked",
			Text:    string(text),
			Html:    string(html),
		})
	}
}
