package automation

import (
	"context"

	"github.com/liamcoop/automations/internal/logger"
)

// Notifier is the messaging collaborator used by notify actions.
type Notifier interface {
	Send(ctx context.Context, recipient, message string) error
}

// LogNotifier writes notifications to the structured log instead of an
// external channel. Used as the default wiring and in local development.
type LogNotifier struct{}

// Send logs the notification and always succeeds.
func (LogNotifier) Send(_ context.Context, recipient, message string) error {
	logger.Info("notification dispatched", "recipient", recipient, "message", message)
	return nil
}
