package worker

import (
	"context"

	"rental-service/internal/util"

	"go.uber.org/zap"
)

// Notifier delivers customer notifications. The delivery channel is an
// external collaborator; the default implementation only logs.
type Notifier interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// LogNotifier writes notifications to the service log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: util.GetLogger()}
}

// SendSMS logs the message instead of delivering it.
func (n *LogNotifier) SendSMS(ctx context.Context, phone, message string) error {
	n.logger.Info("SMS notification",
		zap.String("phone", phone),
		zap.String("message", message))
	return nil
}
