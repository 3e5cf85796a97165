package notification

import (
	"bytes"
	"crypto/tls"
	"fmt"
	htmltemplate "html/template"
	"io"
	"log/slog"
	texttemplate "text/template"
	"time"

	"github.com/wneessen/go-mail"
)

const smtpTimeout = 30 * time.Second

type SMTPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string
}

// EmailNotifier delivers notices over SMTP with go-mail
type EmailNotifier struct {
	SMTPConfig SMTPConfig
	client     *mail.Client
}

func NewEmailNotifier(config SMTPConfig) (*EmailNotifier, error) {
	client, err := mail.NewClient(config.Host, mailOptions(config)...)
	if err != nil {
		slog.Error("Failed to create mail client", "host", config.Host, "port", config.Port, "err", err)
		return nil, err
	}
	slog.Info("Mail client ready", "host", config.Host, "port", config.Port, "tls", config.TLS)
	return &EmailNotifier{SMTPConfig: config, client: client}, nil
}

func mailOptions(config SMTPConfig) []mail.Option {
	opts := []mail.Option{
		mail.WithPort(config.Port),
		mail.WithTimeout(smtpTimeout),
	}
	// Local relays such as mailpit accept unauthenticated mail
	if config.Username != "" && config.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(config.Username),
			mail.WithPassword(config.Password),
		)
	}
	if config.TLS {
		return append(opts,
			mail.WithTLSConfig(&tls.Config{ServerName: config.Host, MinVersion: tls.VersionTLS12}),
			mail.WithTLSPolicy(mail.TLSMandatory),
		)
	}
	return append(opts, mail.WithTLSPolicy(mail.NoTLS))
}

func (e *EmailNotifier) Send(noticeType NoticeType, notification NotificationData, noticeTemplate NoticeTemplate) error {
	if notification.To == "" {
		return fmt.Errorf("email notification requires 'To' address")
	}

	msg, err := e.message(notification.To, noticeTemplate, notification.Data)
	if err != nil {
		slog.Error("Failed to build email", "notice", noticeType, "err", err)
		return err
	}

	if err := e.client.DialAndSend(msg); err != nil {
		slog.Error("Failed to send email", "notice", noticeType, "err", err)
		return err
	}
	slog.Info("Email sent", "notice", noticeType, "host", e.SMTPConfig.Host)
	return nil
}

// message renders t into a multipart message; HTML is an alternative when both bodies exist
func (e *EmailNotifier) message(to string, t NoticeTemplate, data map[string]string) (*mail.Msg, error) {
	textBody, htmlBody, err := render(t, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(e.SMTPConfig.From); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	msg.Subject(t.Subject)

	switch {
	case textBody != "" && htmlBody != "":
		msg.SetBodyString(mail.TypeTextPlain, textBody)
		msg.AddAlternativeString(mail.TypeTextHTML, htmlBody)
	case textBody != "":
		msg.SetBodyString(mail.TypeTextPlain, textBody)
	default:
		msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	}
	return msg, nil
}

type executor interface {
	Execute(w io.Writer, data any) error
}

func execute(tmpl executor, data map[string]string) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// render executes the text and HTML templates against data
func render(t NoticeTemplate, data map[string]string) (textBody, htmlBody string, err error) {
	if t.Text != "" {
		tmpl, err := texttemplate.New("text").Parse(t.Text)
		if err != nil {
			return "", "", err
		}
		if textBody, err = execute(tmpl, data); err != nil {
			return "", "", err
		}
	}
	if t.Html != "" {
		tmpl, err := htmltemplate.New("html").Parse(t.Html)
		if err != nil {
			return "", "", err
		}
		if htmlBody, err = execute(tmpl, data); err != nil {
			return "", "", err
		}
	}
	return textBody, htmlBody, nil
}
