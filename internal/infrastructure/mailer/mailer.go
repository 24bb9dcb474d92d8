// Package mailer delivers subscriber notifications.
package mailer

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"newsletter.backend/internal/config"
	"newsletter.backend/internal/domain/entities"
	"newsletter.backend/internal/usecases"
	"newsletter.backend/pkg/logger"
)

// maxPendingSends bounds the SMTP sessions still running after their caller
// gave up. gomail sets no deadline once connected, so a stalled server holds
// a slot until it closes the connection.
const maxPendingSends = 16

// SMTPMailer sends notifications as HTML email over SMTP.
type SMTPMailer struct {
	renderer *Renderer
	from     string
	fromName string
	send     func(msgs ...*gomail.Message) error
	pending  chan struct{}
}

// NewSMTPMailer creates an SMTP mailer from cfg.
func NewSMTPMailer(cfg config.MailConfig) (*SMTPMailer, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &SMTPMailer{
		renderer: renderer,
		from:     cfg.From,
		fromName: cfg.FromName,
		send:     dialer.DialAndSend,
		pending:  make(chan struct{}, maxPendingSends),
	}, nil
}

// Notify renders and sends n. It returns once the message is handed to the
// SMTP server or ctx is done, whichever comes first. When maxPendingSends
// sessions are still running, it waits for a free slot until ctx is done.
func (m *SMTPMailer) Notify(ctx context.Context, n entities.Notification) error {
	if strings.EqualFold(strings.TrimSpace(n.Email), strings.TrimSpace(m.from)) {
		return fmt.Errorf("refusing to send %s notification to the sender address", n.Kind)
	}

	subject, body, err := m.renderer.Render(n)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.fromName)
	msg.SetHeader("To", n.Email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	select {
	case m.pending <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("send %s email: %w", n.Kind, ctx.Err())
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-m.pending }()
		done <- m.send(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send %s email: %w", n.Kind, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send %s email: %w", n.Kind, ctx.Err())
	}
}

// LogMailer writes notifications to the log instead of sending them.
type LogMailer struct {
	renderer *Renderer
}

// NewLogMailer creates a LogMailer.
func NewLogMailer() (*LogMailer, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	return &LogMailer{renderer: renderer}, nil
}

// Notify logs the rendered subject and the links of n with their tokens
// redacted.
func (m *LogMailer) Notify(ctx context.Context, n entities.Notification) error {
	subject, _, err := m.renderer.Render(n)
	if err != nil {
		return err
	}
	logger.Info(ctx, "Notification",
		zap.String("kind", string(n.Kind)),
		zap.String("to", n.Email),
		zap.String("subject", subject),
		zap.Any("links", redactLinks(n.Links)),
	)
	return nil
}

// New returns the mailer selected by cfg.Driver.
func New(cfg config.MailConfig) (usecases.Notifier, error) {
	switch cfg.Driver {
	case "smtp":
		return NewSMTPMailer(cfg)
	case "log", "":
		return NewLogMailer()
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}

func redactLinks(links map[string]string) map[string]string {
	out := make(map[string]string, len(links))
	for name, link := range links {
		out[name] = redactToken(link)
	}
	return out
}

func redactToken(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return "[unparseable]"
	}
	q := u.Query()
	if !q.Has("token") {
		return link
	}
	q.Set("token", "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}
