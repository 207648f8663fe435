// Package notify delivers fire-and-forget messages to users. Delivery
// failures are the caller's to log and swallow; they must never abort the
// operation that triggered them.
package notify

import "context"

// Notifier sends a message to a user's chat. Implementations must be safe
// for concurrent use.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Nop discards every message. Used when no notification transport is
// configured.
type Nop struct{}

func (Nop) Send(context.Context, int64, string) error { return nil }
