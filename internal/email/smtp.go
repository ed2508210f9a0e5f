package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/videostream/backend/internal/config"
	"github.com/videostream/backend/internal/logging"
)

const smtpTimeout = 30 * time.Second

// SMTPMailer delivers transactional mail over SMTP with STARTTLS.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPMailer constructs a mailer for the configured relay.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
	}
}

// SendOTP mails a one-time verification code.
func (m *SMTPMailer) SendOTP(ctx context.Context, to, code string, ttl time.Duration) error {
	return m.send(ctx, to, otpSubject, otpBody(code, ttl))
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, body string) error {
	msg := buildMessage(m.from, to, subject, body)
	addr := net.JoinHostPort(m.host, fmt.Sprint(m.port))

	ctx, cancel := context.WithTimeout(ctx, smtpTimeout)
	defer cancel()

	dialer := net.Dialer{Timeout: smtpTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect smtp server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	} else if m.username != "" && m.port != 25 && m.port != 1025 {
		return fmt.Errorf("starttls not available on port %d", m.port)
	}

	if m.username != "" && m.password != "" {
		if err := client.Auth(smtp.PlainAuth("", m.username, m.password, m.host)); err != nil {
			return fmt.Errorf("smtp authentication: %w", err)
		}
	}

	if err := client.Mail(m.from); err != nil {
		return fmt.Errorf("smtp MAIL: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		wc.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	if err := client.Quit(); err != nil {
		logging.FromContext(ctx).Warn("smtp QUIT failed", "error", err)
	}
	return nil
}

const otpSubject = "Your VideoStream verification code"

func otpBody(code string, ttl time.Duration) string {
	minutes := int(ttl.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf(`Hello!

Your VideoStream verification code is:

    %s

This code will expire in %d minutes.

If you didn't request this email, you can safely ignore it.`, code, minutes)
}

func buildMessage(from, to, subject, body string) string {
	headers := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="utf-8"`,
	}
	return strings.Join(headers, "\r\n") + "\r\n\r\n" + body
}

// LogMailer writes codes to the log instead of sending them. It is used when no SMTP host is configured.
type LogMailer struct{}

// SendOTP logs the code.
func (LogMailer) SendOTP(ctx context.Context, to, code string, ttl time.Duration) error {
	logging.FromContext(ctx).Info("otp issued", "to", to, "code", code, "expires_in", ttl.String())
	return nil
}
