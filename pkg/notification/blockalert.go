package notification

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/tendant/simple-device-trust/pkg/mgmttoken"
)

// RecipientResolver looks up where to send a user's notices
type RecipientResolver interface {
	EmailForUser(ctx context.Context, userID string) (string, error)
}

// RecipientResolverFunc adapts a function to RecipientResolver
type RecipientResolverFunc func(ctx context.Context, userID string) (string, error)

func (f RecipientResolverFunc) EmailForUser(ctx context.Context, userID string) (string, error) {
	return f(ctx, userID)
}

// BlockAlerter emails a user whose account was just blocked, with a link that
// lets them review and remove devices without signing in.
type BlockAlerter struct {
	manager       *NotificationManager
	resolver      RecipientResolver
	managementURL string
	maxDevices    int
}

func NewBlockAlerter(manager *NotificationManager, resolver RecipientResolver, managementURL string, maxDevices int) *BlockAlerter {
	return &BlockAlerter{
		manager:       manager,
		resolver:      resolver,
		managementURL: managementURL,
		maxDevices:    maxDevices,
	}
}

// AccountBlocked sends the alert
func (a *BlockAlerter) AccountBlocked(ctx context.Context, userID string, token mgmttoken.Token) error {
	email, err := a.resolver.EmailForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve recipient: %w", err)
	}
	if email == "" {
		slog.Warn("No email address for blocked account, skipping alert", "userID", userID)
		return nil
	}

	link, err := ManagementLink(a.managementURL, token.Value)
	if err != nil {
		return err
	}

	return a.manager.Send(AccountBlockedNotice, EmailSystem, NotificationData{
		To: email,
		Data: map[string]string{
			"management_link": link,
			"expires_at":      token.ExpiresAt.Format(time.RFC1123),
			"max_devices":     strconv.Itoa(a.maxDevices),
		},
	})
}

// ManagementLink appends the token to base as the "token" query parameter
func ManagementLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid management url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
