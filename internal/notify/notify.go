// Package notify delivers customer notifications (order confirmations and
// payment reminders).
package notify

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNoRecipient is returned when a message has no destination address.
var ErrNoRecipient = errors.New("message has no recipient")

// Message is a plain-text notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier sends messages. Implementations must honor ctx deadlines.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

// Send calls f(ctx, msg).
func (f NotifierFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
