// Package notification sends operator alert emails for distribution
// incidents that need a human: failed CRM pushes leave a lead assigned
// locally but unrouted in the CRM until someone (or the retry queue)
// reconciles it.
package notification

import (
	"context"
	"fmt"
	"net"
	"time"

	"salesops_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// Mailer delivers plain-text operator alerts over SMTP.
type Mailer struct {
	host       string
	port       int
	username   string
	password   string
	from       string
	recipients []string
}

// NewMailer creates a Mailer, or nil when email alerts are disabled.
func NewMailer(cfg config.EmailConfig) *Mailer {
	if !cfg.GetEmailEnabled() || cfg.GetSMTPHost() == "" || len(cfg.GetAlertRecipients()) == 0 {
		return nil
	}

	return &Mailer{
		host:       cfg.GetSMTPHost(),
		port:       cfg.GetSMTPPort(),
		username:   cfg.GetSMTPUsername(),
		password:   cfg.GetSMTPPassword(),
		from:       cfg.GetEmailFromAddress(),
		recipients: cfg.GetAlertRecipients(),
	}
}

// Send delivers the alert to all configured recipients.
func (m *Mailer) Send(ctx context.Context, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(m.recipients...); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := gomail.NewClient(m.host,
		gomail.WithPort(m.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.username),
		gomail.WithPassword(m.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}
