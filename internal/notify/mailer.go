package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/devilmonastery/fedmet/internal/config"
)

// Mailer sends reports over SMTP. smtp.SendMail negotiates STARTTLS
// when the server offers it and authenticates when credentials are
// configured.
type Mailer struct {
	cfg config.MailConfig
	log *slog.Logger
}

// NewMailer builds a notifier from the mail config. An empty host
// yields the Noop notifier so callers never special-case "mail off".
func NewMailer(cfg config.MailConfig, log *slog.Logger) Notifier {
	if cfg.Host == "" {
		return Noop{}
	}
	return &Mailer{cfg: cfg, log: log}
}

func (m *Mailer) Notify(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(m.cfg.To) == 0 {
		return fmt.Errorf("mail.to is empty")
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + strings.Join(m.cfg.To, ","),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(addr, auth, m.cfg.From, m.cfg.To, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send mail via %s: %w", addr, err)
	}

	m.log.Debug("notification sent",
		slog.String("subject", subject),
		slog.Int("recipients", len(m.cfg.To)))
	return nil
}
