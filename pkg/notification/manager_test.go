package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-device-trust/pkg/mgmttoken"
)

func TestNewNotificationManager(t *testing.T) {
	nm, err := NewNotificationManager()
	require.NoError(t, err)
	if nm.notifiers == nil {
		t.Error("notifiers map not initialized")
	}
	if nm.notificationRegistry == nil {
		t.Error("notificationRegistry map not initialized")
	}
}

func TestRegisterNotifier(t *testing.T) {
	nm, err := NewNotificationManager()
	require.NoError(t, err)

	mockNotifier := &MockNotifier{}
	nm.RegisterNotifier(EmailSystem, mockNotifier)
	if n, exists := nm.notifiers[EmailSystem]; !exists {
		t.Error("Notifier not registered")
	} else if n != mockNotifier {
		t.Error("Wrong notifier registered")
	}

	newMockNotifier := &MockNotifier{}
	nm.RegisterNotifier(EmailSystem, newMockNotifier)
	if n := nm.notifiers[EmailSystem]; n != newMockNotifier {
		t.Error("Notifier not overwritten")
	}
}

func TestRegisterNotification(t *testing.T) {
	tests := []struct {
		name        string
		noticeType  NoticeType
		system      NotificationSystem
		template    NoticeTemplate
		shouldError bool
	}{
		{"text and html", ExampleNotice, EmailSystem, NoticeTemplate{Subject: "Example", Text: "text", Html: "<p>html</p>"}, false},
		{"text only", ExampleNotice, EmailSystem, NoticeTemplate{Subject: "Example", Text: "text"}, false},
		{"html only", ExampleNotice, EmailSystem, NoticeTemplate{Subject: "Example", Html: "<p>html</p>"}, false},
		{"empty notice type", "", EmailSystem, NoticeTemplate{Text: "text"}, true},
		{"empty system", ExampleNotice, "", NoticeTemplate{Text: "text"}, true},
		{"no body", ExampleNotice, EmailSystem, NoticeTemplate{Subject: "Example"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nm, err := NewNotificationManager()
			require.NoError(t, err)
			err = nm.RegisterNotification(tt.noticeType, tt.system, tt.template)
			if tt.shouldError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.template, nm.notificationRegistry[tt.noticeType][tt.system])
		})
	}
}

func TestSend(t *testing.T) {
	mock := &MockNotifier{}
	nm, err := NewNotificationManager(WithNotifier(EmailSystem, mock))
	require.NoError(t, err)

	err = nm.Send(ExampleNotice, EmailSystem, NotificationData{To: "a@example.com"})
	assert.Error(t, err, "no template registered")

	require.NoError(t, nm.RegisterNotification(ExampleNotice, EmailSystem, NoticeTemplate{Text: "hi"}))
	require.NoError(t, nm.Send(ExampleNotice, EmailSystem, NotificationData{To: "a@example.com"}))
	assert.Len(t, mock.Sent(), 1)

	err = nm.Send(ExampleNotice, "sms", NotificationData{To: "a@example.com"})
	assert.Error(t, err)
}

func TestAccountBlockedTemplate(t *testing.T) {
	nm, err := NewNotificationManager(WithAccountBlockedTemplate())
	require.NoError(t, err)

	tmpl := nm.notificationRegistry[AccountBlockedNotice][EmailSystem]
	text, html, err := render(tmpl, map[string]string{
		"management_link": "https://example.com/manage?token=abc",
		"expires_at":      "soon",
		"max_devices":     "2",
	})
	require.NoError(t, err)
	assert.Contains(t, text, "https://example.com/manage?token=abc")
	assert.Contains(t, text, "(2)")
	assert.Contains(t, html, "https://example.com/manage?token=abc")
}

func TestBlockAlerter(t *testing.T) {
	ctx := context.Background()
	mock := &MockNotifier{}
	nm, err := NewNotificationManager(WithNotifier(EmailSystem, mock), WithAccountBlockedTemplate())
	require.NoError(t, err)

	resolver := RecipientResolverFunc(func(_ context.Context, userID string) (string, error) {
		switch userID {
		case "alice":
			return "alice@example.com", nil
		case "ghost":
			return "", nil
		}
		return "", errors.New("lookup failed")
	})
	alerter := NewBlockAlerter(nm, resolver, "https://example.com/device-management", 2)

	token := mgmttoken.Token{Value: "alice.1705572000000.ab+cd", UserID: "alice", ExpiresAt: time.Date(2024, 1, 18, 10, 0, 0, 0, time.UTC)}
	require.NoError(t, alerter.AccountBlocked(ctx, "alice", token))

	sent := mock.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@example.com", sent[0].To)

	link, err := url.Parse(sent[0].Data["management_link"])
	require.NoError(t, err)
	assert.Equal(t, token.Value, link.Query().Get("token"))
	assert.True(t, strings.HasPrefix(link.String(), "https://example.com/device-management?"))

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	assert.NoError(t, alerter.AccountBlocked(ctx, "ghost", token))
	assert.Len(t, mock.Sent(), 1)

	var skipped map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &skipped))
	assert.Equal(t, "ghost", skipped["userID"])
	assert.NotContains(t, skipped, "user_id")

	assert.Error(t, alerter.AccountBlocked(ctx, "bob", token))
}
