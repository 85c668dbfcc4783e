package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog/log"
)

// Notifier delivers a rendered alert to a recipient. Implementations are
// fallible; callers own the retry policy.
type Notifier interface {
	Send(ctx context.Context, subject, body, recipient string) error
}

// SMTPNotifier delivers alerts over plain SMTP.
type SMTPNotifier struct {
	Addr string // host:port
	From string
}

// NewSMTPNotifier creates a notifier pointed at the given SMTP server.
func NewSMTPNotifier(addr, from string) *SMTPNotifier {
	return &SMTPNotifier{Addr: addr, From: from}
}

// Send delivers one message. The context is honored up to the point the
// stdlib SMTP client takes over; the server's own timeouts bound the rest.
func (n *SMTPNotifier) Send(ctx context.Context, subject, body, recipient string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", n.From, recipient, subject, body)
	if err := smtp.SendMail(n.Addr, nil, n.From, []string{recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", recipient, err)
	}
	return nil
}

// NoopNotifier logs the alert instead of delivering it. Used when no SMTP
// server is configured so the rest of the pipeline stays exercisable.
type NoopNotifier struct{}

func (NoopNotifier) Send(_ context.Context, subject, _, recipient string) error {
	log.Info().Str("recipient", recipient).Str("subject", subject).Msg("Notifier disabled, alert logged only")
	return nil
}
