package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes account messages to the log instead of mailing them.
// Reset tokens are logged in the clear, so it is meant for development only.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{logger: log}
}

// SendWelcome logs the registration confirmation
func (n *LogNotifier) SendWelcome(ctx context.Context, email string) error {
	msg, err := WelcomeMessage(email)
	if err != nil {
		return err
	}
	n.write(ctx, msg)
	return nil
}

// SendResetToken logs the password reset message
func (n *LogNotifier) SendResetToken(ctx context.Context, email, resetToken string) error {
	msg, err := ResetTokenMessage(email, resetToken)
	if err != nil {
		return err
	}
	n.write(ctx, msg)
	return nil
}

func (n *LogNotifier) write(ctx context.Context, msg Message) {
	n.logger.InfoContext(ctx, "Outgoing mail",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)
}
