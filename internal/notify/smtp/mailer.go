package smtp

import (
	"context"
	"fmt"
	"net/smtp"

	"idverify/internal/platform/config"
)

// Mailer delivers one-time codes over SMTP.
type Mailer struct {
	host     string
	port     string
	from     string
	username string
	password string
}

func NewMailer(cfg config.Config) *Mailer {
	return &Mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     cfg.SMTPFrom,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
	}
}

// Deliver sends the code to the email channel. net/smtp has no context
// support; cancellation is handled by the caller abandoning the result.
func (m *Mailer) Deliver(_ context.Context, channel, code string) error {
	subject := "Confirm your email address"
	body := fmt.Sprintf("Use this code to confirm your email address: %s\r\n\r\nThe code expires shortly. If you did not request it, ignore this message.", code)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.from, channel, subject, body)
	addr := fmt.Sprintf("%s:%s", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	return smtp.SendMail(addr, auth, m.from, []string{channel}, []byte(msg))
}
