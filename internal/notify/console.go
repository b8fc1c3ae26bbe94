package notify

import (
	"context"

	"go.uber.org/zap"
)

// ConsoleMailer writes messages to the log instead of delivering them.
type ConsoleMailer struct {
	lg *zap.Logger
}

var _ Notifier = (*ConsoleMailer)(nil)

// NewConsoleMailer creates a ConsoleMailer logging through lg.
func NewConsoleMailer(lg *zap.Logger) *ConsoleMailer {
	return &ConsoleMailer{lg: lg}
}

// Send logs msg at info level.
func (m *ConsoleMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.lg.Info("Mail",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
