// Package notify delivers OTP codes: directly over SMTP, through the
// RabbitMQ queue, or to the log in development.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const otpSubject = "Your OTP Code"

func otpBody(code string, ttl time.Duration) string {
	return fmt.Sprintf("Your OTP is: %s\n\nIt will expire in %d minutes.", code, int(ttl.Minutes()))
}

// LogSender writes codes to the log instead of sending them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "notify-log")}
}

func (s *LogSender) Send(ctx context.Context, address, code string) error {
	s.logger.InfoContext(ctx, "otp issued", "to", address, "code", code)
	return nil
}
