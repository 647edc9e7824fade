package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPSender mails codes as plain text.
type SMTPSender struct {
	from   string
	ttl    time.Duration
	client *mail.Client
	logger *slog.Logger
}

// NewSMTPSender builds the mail client. ttl is the code lifetime quoted
// in the message body.
func NewSMTPSender(cfg SMTPConfig, ttl time.Duration, logger *slog.Logger) (*SMTPSender, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(timeout),
	}
	// Only add authentication if username and password are provided
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if cfg.TLS {
		opts = append(opts,
			mail.WithTLSConfig(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}),
			mail.WithTLSPolicy(mail.TLSMandatory),
		)
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create mail client: %w", err)
	}
	return &SMTPSender{
		from:   cfg.From,
		ttl:    ttl,
		client: client,
		logger: logger.With("component", "notify-smtp", "host", cfg.Host, "port", cfg.Port),
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, address, code string) error {
	msg, err := s.message(address, code)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		s.logger.Error("failed to send email", "to", address, "err", err)
		return fmt.Errorf("send otp email: %w", err)
	}
	s.logger.Info("email sent", "to", address)
	return nil
}

func (s *SMTPSender) message(address, code string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(address); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	msg.Subject(otpSubject)
	msg.SetBodyString(mail.TypeTextPlain, otpBody(code, s.ttl))
	return msg, nil
}
