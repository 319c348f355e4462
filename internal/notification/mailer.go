package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ferryline/ferryline-api/internal/config"
)

// Mailer delivers a single message to a single recipient. Implementations
// must respect ctx and return once its deadline passes.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// SMTPMailer sends mail through a plain SMTP server. Every session is
// bounded by a connection deadline so a hung server cannot stall callers.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	timeout  time.Duration
}

func NewSMTPMailer(cfg config.EmailConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, fmt.Errorf("smtp_host is required")
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("email from address is required")
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	return &SMTPMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		timeout:  cfg.SendTimeout,
	}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, html string) error {
	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMessage-ID: <%s@%s>\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n",
		m.from, to, subject, uuid.NewString(), m.host)

	message := []byte(headers + html)
	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	// The deadline covers the whole session: dial, greeting, and every
	// subsequent command. The tighter of ctx and the configured timeout
	// wins.
	deadline := time.Now().Add(m.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrap(err, "smtp dial")
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return errors.Wrap(err, "smtp deadline")
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "smtp greeting")
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return errors.Wrap(err, "smtp starttls")
		}
	}
	if strings.TrimSpace(m.username) != "" {
		auth := smtp.PlainAuth("", m.username, m.password, m.host)
		if err := client.Auth(auth); err != nil {
			return errors.Wrap(err, "smtp auth")
		}
	}

	if err := client.Mail(m.from); err != nil {
		return errors.Wrap(err, "smtp mail from")
	}
	if err := client.Rcpt(to); err != nil {
		return errors.Wrap(err, "smtp rcpt to")
	}
	w, err := client.Data()
	if err != nil {
		return errors.Wrap(err, "smtp data")
	}
	if _, err := w.Write(message); err != nil {
		w.Close()
		return errors.Wrap(err, "smtp write body")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "smtp close body")
	}
	return client.Quit()
}
