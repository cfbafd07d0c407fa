// Package notify is the fire-and-forget notification contract. Failures are
// logged and never block a delivery state transition.
package notify

import (
	"context"

	"go.uber.org/zap"
)

const (
	UrgencyInfo   = "info"
	UrgencyAction = "action"
	UrgencyAlert  = "alert"
)

type Notifier interface {
	Notify(ctx context.Context, userID, message, urgency string)
}

// LogNotifier is the default sink when no channel integration is wired.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n *LogNotifier) Notify(_ context.Context, userID, message, urgency string) {
	if n == nil || n.Logger == nil {
		return
	}
	n.Logger.Info("notify",
		zap.String("user_id", userID),
		zap.String("urgency", urgency),
		zap.String("message", message),
	)
}
