// Package email sends booking notices over SMTP.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"log/slog"

	gomail "gopkg.in/gomail.v2"

	"carrental/internal/app/policies"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[string]string{
	policies.TemplateBookingConfirmed: "Your booking is confirmed",
	policies.TemplateBookingPending:   "Complete your booking payment",
	policies.TemplateBookingCancelled: "Your booking was cancelled",
	policies.TemplateBookingExtended:  "Your booking was extended",
	policies.TemplateBookingStarted:   "Your rental has started",
	policies.TemplateBookingCompleted: "Your rental is complete",
	policies.TemplatePaymentSucceeded: "Payment received",
	policies.TemplatePaymentFailed:    "Payment failed",
	policies.TemplateReminderStart:    "Your rental starts soon",
	policies.TemplateReminderEnd:      "Your rental ends soon",
}

// Sender delivers composed messages; *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Notifier struct {
	from   string
	sender Sender
	tmpl   *template.Template
	logger *slog.Logger
}

// NewNotifier dials cfg.Host with TLS verification on every send.
func NewNotifier(cfg Config, logger *slog.Logger) (*Notifier, error) {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	return NewNotifierWithSender(cfg.From, dialer, logger)
}

func NewNotifierWithSender(from string, sender Sender, logger *slog.Logger) (*Notifier, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("email: parse templates: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{from: from, sender: sender, tmpl: tmpl, logger: logger}, nil
}

// Render builds the subject and HTML body for name.
func (n *Notifier) Render(name string, data any) (string, string, error) {
	subject, ok := subjects[name]
	if !ok {
		return "", "", fmt.Errorf("email: unknown template %q", name)
	}
	t, err := n.tmpl.Clone()
	if err != nil {
		return "", "", err
	}
	content := t.Lookup(name)
	if content == nil {
		return "", "", fmt.Errorf("email: template %q not defined", name)
	}
	if _, err := t.AddParseTree("content", content.Tree); err != nil {
		return "", "", err
	}
	var body bytes.Buffer
	if err := t.ExecuteTemplate(&body, "layout", data); err != nil {
		return "", "", fmt.Errorf("email: render %s: %w", name, err)
	}
	return subject, body.String(), nil
}

func (n *Notifier) Send(ctx context.Context, to, name string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body, err := n.Render(name, data)
	if err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)
	if err := n.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("email: send %s to %s: %w", name, to, err)
	}
	n.logger.Debug("email sent", "template", name, "to", to)
	return nil
}

var _ policies.Notifier = (*Notifier)(nil)
