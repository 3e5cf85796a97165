package notification

// NotificationSystem is a delivery channel (e.g., email)
type NotificationSystem string

// NoticeType identifies what a notification is about
type NoticeType string

const (
	EmailSystem NotificationSystem = "email"

	AccountBlockedNotice NoticeType = "account_blocked"
	ExampleNotice        NoticeType = "example"
)

// NoticeTemplate holds the subject and body templates of one notice
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

type NotificationData struct {
	To   string            // Recipient identifier (e.g., email address)
	Data map[string]string // Template values
}

type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
