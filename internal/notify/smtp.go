package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

type SMTPSink struct {
	host       string
	port       int
	user       string
	pass       string
	from       string
	recipients RecipientResolver
	send       func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSink returns nil when the SMTP settings are incomplete.
func NewSMTPSink(cfg SMTPConfig, recipients RecipientResolver) *SMTPSink {
	if strings.TrimSpace(cfg.Host) == "" || cfg.Port <= 0 || strings.TrimSpace(cfg.From) == "" || recipients == nil {
		return nil
	}
	return &SMTPSink{
		host:       strings.TrimSpace(cfg.Host),
		port:       cfg.Port,
		user:       strings.TrimSpace(cfg.User),
		pass:       cfg.Pass,
		from:       strings.TrimSpace(cfg.From),
		recipients: recipients,
		send:       smtp.SendMail,
	}
}

func (s *SMTPSink) NotifyGraded(ctx context.Context, ev GradedEvent) error {
	to, err := s.recipients.StudentEmail(ctx, ev.StudentID)
	if err != nil {
		return fmt.Errorf("resolve student email: %w", err)
	}

	msg := "From: " + s.from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + gradedSubject(ev) + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n\r\n" +
		strings.ReplaceAll(gradedBody(ev), "\n", "\r\n")

	var auth smtp.Auth
	if s.user != "" {
		auth = smtp.PlainAuth("", s.user, s.pass, s.host)
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	if err := s.send(addr, auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send graded notification: %w", err)
	}
	return nil
}
