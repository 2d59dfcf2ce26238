package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/config"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/metrics"
)

type smtpDispatcher struct {
	client *gomail.Client
	from   string
}

func newSMTPDispatcher(cfg config.Mail) (*smtpDispatcher, error) {
	if cfg.SMTPHost == "" {
		return nil, errors.New("smtp transport requires MAIL_SMTP_HOST")
	}
	opts := []gomail.Option{
		gomail.WithPort(cfg.SMTPPort),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.SMTPUsername),
			gomail.WithPassword(cfg.SMTPPassword),
		)
	}
	client, err := gomail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build smtp client: %w", err)
	}
	return &smtpDispatcher{client: client, from: cfg.From}, nil
}

func (d *smtpDispatcher) Send(ctx context.Context, to, subject, html, text string) (string, error) {
	msg := gomail.NewMsg()
	if err := msg.From(d.from); err != nil {
		return "", err
	}
	if err := msg.To(to); err != nil {
		return "", err
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, html)
	if text != "" {
		msg.AddAlternativeString(gomail.TypeTextPlain, text)
	}

	if err := d.client.DialAndSendWithContext(ctx, msg); err != nil {
		metrics.MailDispatches.WithLabelValues("smtp", "error").Inc()
		return "", fmt.Errorf("smtp delivery failed: %w", err)
	}
	metrics.MailDispatches.WithLabelValues("smtp", "ok").Inc()
	return uuid.NewString(), nil
}
