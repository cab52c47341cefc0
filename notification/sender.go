package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"receipt-tracker/config"
	"receipt-tracker/models"
	"receipt-tracker/templates"
	"receipt-tracker/utils"

	"github.com/jordan-wright/email"
)

// Mailer delivers a prepared message.
type Mailer interface {
	Send(ctx context.Context, e *email.Email) error
}

type smtpMailer struct {
	addr string
	auth smtp.Auth
}

func (m *smtpMailer) Send(ctx context.Context, e *email.Email) error {
	done := make(chan error, 1)
	go func() { done <- e.Send(m.addr, m.auth) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sender emails a notice when a tracked message is opened.
type Sender struct {
	from     string
	to       []string
	baseURL  string
	mailer   Mailer
	template *template.Template
}

func NewSender(cfg *config.Config) (*Sender, error) {
	auth := smtp.PlainAuth("", cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Host)
	mailer := &smtpMailer{
		addr: fmt.Sprintf("%s:%d", cfg.SMTP.Host, cfg.SMTP.Port),
		auth: auth,
	}
	return NewSenderWithMailer(cfg.SMTP.From, []string{cfg.Notify.To}, cfg.App.BaseURL, mailer)
}

func NewSenderWithMailer(from string, to []string, baseURL string, mailer Mailer) (*Sender, error) {
	tmpl, err := templates.Parse("notification.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &Sender{
		from:     from,
		to:       to,
		baseURL:  baseURL,
		mailer:   mailer,
		template: tmpl,
	}, nil
}

func (s *Sender) NotifyOpen(ctx context.Context, view *models.ViewEvent) error {
	device := utils.ParseUserAgent(view.UserAgent)

	data := map[string]interface{}{
		"Recipient": view.Email,
		"OpenedAt":  utils.DisplayTime(view.ViewedAt),
		"SentAt":    utils.DisplayTimePtr(view.SendTime),
		"IPAddress": view.ClientIP,
		"Device":    device.DeviceType,
		"Browser":   device.Browser,
		"OS":        device.OS,
		"LogsURL":   s.baseURL + "/logs?format=html",
	}

	var body bytes.Buffer
	if err := s.template.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	e := email.NewEmail()
	e.From = s.from
	e.To = s.to
	e.Subject = fmt.Sprintf("📧 Email Opened: %s", view.Email)
	e.HTML = body.Bytes()

	if err := s.mailer.Send(ctx, e); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
