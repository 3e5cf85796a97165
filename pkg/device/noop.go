package device

import (
	"context"
	"log/slog"

	"github.com/tendant/simple-device-trust/pkg/mgmttoken"
)

// NoopAlerter is used when no notification channel is configured.
// It only logs that an alert would have been sent.
type NoopAlerter struct{}

// AccountBlocked implements BlockAlerter
func (NoopAlerter) AccountBlocked(ctx context.Context, userID string, token mgmttoken.Token) error {
	slog.Info("Block alert skipped, no alerter configured", "userID", userID, "tokenExpiresAt", token.ExpiresAt)
	return nil
}
