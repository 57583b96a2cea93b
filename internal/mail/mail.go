// Package mail defines the outbound mail boundary. The engine only needs it
// for email confirmation codes, so the default implementation just logs.
package mail

import (
	"context"
	"log/slog"
)

// Sender delivers a plain-text message to one recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender writes outbound mail to the log instead of delivering it, the
// default when no mail transport is configured.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "outbound mail",
		"to", to,
		"subject", subject,
		"body", body,
	)
	return nil
}
