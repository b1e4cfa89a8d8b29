// Package smtp delivers alert messages over authenticated SMTP.
package smtp

import (
	"context"
	"fmt"

	mail "github.com/wneessen/go-mail"
)

// Mailer implements alert.Sender against a plain SMTP submission endpoint
// with STARTTLS and login auth.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	sender   string
}

// NewMailer creates a Mailer for the given account.
func NewMailer(host string, port int, username, password, sender string) *Mailer {
	return &Mailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		sender:   sender,
	}
}

// Send composes and delivers one plain-text message.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.sender); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	client, err := mail.NewClient(m.host,
		mail.WithPort(m.port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(m.username),
		mail.WithPassword(m.password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}
	return nil
}
