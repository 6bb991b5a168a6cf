package msgrelay

import (
	"context"

	"github.com/coregx/msgrelay/model"
)

// NotificationService defines an optional observer interface for delivery
// and connection events. This replaces ambient delegate fan-out: observers
// are injected at construction and receive structured notifications.
//
// Implementations might page an operator, export metrics, or feed an
// analytics sink. Notification errors are logged and never affect delivery.
type NotificationService interface {
	// NotifyDeliveryFailure is called after every failed delivery attempt.
	// Informational - the message will still be retried until exhaustion.
	NotifyDeliveryFailure(ctx context.Context, q *model.QueuedMessage, err error) error

	// NotifyDeadLettered is called when a message exhausts its retries and
	// moves to the dead-letter store.
	NotifyDeadLettered(ctx context.Context, d model.DeadLetter) error

	// NotifyEndpointFailed is called when an endpoint transitions to failed.
	NotifyEndpointFailed(ctx context.Context, endpointID string, err error) error

	// NotifyEndpointRecovered is called when a failed endpoint reconnects.
	NotifyEndpointRecovered(ctx context.Context, endpointID string) error

	// NotifyReconnectExhausted is called when an endpoint gives up
	// reconnecting after exceeding its attempt cap. This is the fatal
	// connection failure an operator has to act on.
	NotifyReconnectExhausted(ctx context.Context, endpointID string, attempts int) error
}

// NoOpNotificationService is a no-op implementation of NotificationService.
// Use this when notifications are not needed.
type NoOpNotificationService struct{}

// NotifyDeliveryFailure does nothing.
func (n *NoOpNotificationService) NotifyDeliveryFailure(_ context.Context, _ *model.QueuedMessage, _ error) error {
	return nil
}

// NotifyDeadLettered does nothing.
func (n *NoOpNotificationService) NotifyDeadLettered(_ context.Context, _ model.DeadLetter) error {
	return nil
}

// NotifyEndpointFailed does nothing.
func (n *NoOpNotificationService) NotifyEndpointFailed(_ context.Context, _ string, _ error) error {
	return nil
}

// NotifyEndpointRecovered does nothing.
func (n *NoOpNotificationService) NotifyEndpointRecovered(_ context.Context, _ string) error {
	return nil
}

// NotifyReconnectExhausted does nothing.
func (n *NoOpNotificationService) NotifyReconnectExhausted(_ context.Context, _ string, _ int) error {
	return nil
}

// LoggingNotificationService is a simple implementation that logs notifications.
type LoggingNotificationService struct {
	logger Logger
}

// NewLoggingNotificationService creates a new LoggingNotificationService.
func NewLoggingNotificationService(logger Logger) *LoggingNotificationService {
	return &LoggingNotificationService{logger: logger}
}

// NotifyDeliveryFailure logs the failed attempt.
func (n *LoggingNotificationService) NotifyDeliveryFailure(_ context.Context, q *model.QueuedMessage, err error) error {
	n.logger.Warnf("⚠️ Delivery failed: message_id=%s, priority=%s, retry=%d/%d, error=%v",
		q.ID, q.Priority, q.RetryCount, q.MaxRetries, err)
	return nil
}

// NotifyDeadLettered logs the dead-letter move.
func (n *LoggingNotificationService) NotifyDeadLettered(_ context.Context, d model.DeadLetter) error {
	n.logger.Warnf("⚠️ Message dead-lettered: message_id=%s, priority=%s, attempts=%d, reason=%s",
		d.ID, d.Priority, d.RetryCount, d.FailureReason)
	return nil
}

// NotifyEndpointFailed logs the endpoint failure.
func (n *LoggingNotificationService) NotifyEndpointFailed(_ context.Context, endpointID string, err error) error {
	n.logger.Warnf("🔴 Endpoint failed: endpoint=%s, error=%v", endpointID, err)
	return nil
}

// NotifyEndpointRecovered logs the endpoint recovery.
func (n *LoggingNotificationService) NotifyEndpointRecovered(_ context.Context, endpointID string) error {
	n.logger.Infof("✅ Endpoint recovered: endpoint=%s", endpointID)
	return nil
}

// NotifyReconnectExhausted logs the reconnection give-up.
func (n *LoggingNotificationService) NotifyReconnectExhausted(_ context.Context, endpointID string, attempts int) error {
	n.logger.Errorf("🔴 Reconnection exhausted: endpoint=%s, attempts=%d", endpointID, attempts)
	return nil
}
