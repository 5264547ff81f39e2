package auth

import "context"

// Notifier delivers account messages. Delivery errors are reported to the
// caller's logs only; they never fail an authentication operation.
type Notifier interface {
	SendWelcome(ctx context.Context, email string) error
	SendResetToken(ctx context.Context, email, resetToken string) error
}

// nopNotifier discards every message
type nopNotifier struct{}

func (nopNotifier) SendWelcome(context.Context, string) error            { return nil }
func (nopNotifier) SendResetToken(context.Context, string, string) error { return nil }
