package alerting

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// EmailSink delivers alerts to a reviewer mailbox via SMTP.
type EmailSink struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string
	logger   *zap.Logger
}

// NewEmailSink creates an EmailSink.
func NewEmailSink(host string, port int, username, password, from, to string, logger *zap.Logger) *EmailSink {
	return &EmailSink{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		logger:   logger,
	}
}

// Deliver implements Sink. Failures are logged, never propagated; alert
// delivery must not block or fail the custody path.
func (s *EmailSink) Deliver(_ context.Context, a Alert) {
	subject := fmt.Sprintf("[custodia %s] %s on evidence %s", a.Severity, a.Kind, a.EvidenceID)

	lines := []string{
		"Event:    " + a.Kind,
		"Severity: " + string(a.Severity),
		"Evidence: " + a.EvidenceID.String(),
		"Raised:   " + a.RaisedAt.Format("2006-01-02 15:04:05 UTC"),
		"",
		a.Detail,
	}
	for k, v := range a.Fields {
		lines = append(lines, k+": "+v)
	}

	if err := s.send(subject, strings.Join(lines, "\r\n")); err != nil {
		s.logger.Error("alert email delivery failed",
			zap.String("kind", a.Kind),
			zap.Error(err),
		)
	}
}

func (s *EmailSink) send(subject, body string) error {
	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + s.to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	// Port 465 uses implicit TLS; 587 uses STARTTLS (smtp.SendMail handles this).
	if s.port == 465 {
		return s.sendImplicitTLS(addr, auth, []byte(msg))
	}
	return smtp.SendMail(addr, auth, s.from, []string{s.to}, []byte(msg))
}

func (s *EmailSink) sendImplicitTLS(addr string, auth smtp.Auth, msg []byte) error {
	host, _, _ := net.SplitHostPort(addr)
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("smtp tls dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := client.Rcpt(s.to); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := fmt.Fprint(wc, string(msg)); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	return wc.Close()
}
