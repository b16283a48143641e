// Package notify surfaces terminal task outcomes to humans. Delivery is
// best effort: a notification failure is logged and swallowed, never a
// reason to fail the task.
package notify

import "context"

// Notifier delivers a message to an out-of-band channel.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Nop is the notifier used when no channel is configured.
type Nop struct{}

// Send discards the message.
func (Nop) Send(ctx context.Context, text string) error {
	return nil
}
