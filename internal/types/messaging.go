package types

// NotificationMessage is the SQS payload sent from the execution monitor to
// the notification worker. It carries everything needed to resolve the
// recipient, render and deliver one notification.
type NotificationMessage struct {
	NotificationID string            `json:"notification_id"`
	UserID         string            `json:"user_id"`
	ProjectID      string            `json:"project_id"`
	Event          NotificationEvent `json:"event"`

	// RetryCount is incremented by the worker before re-publishing with a delay.
	RetryCount int `json:"retry_count"`

	TraceID string `json:"trace_id"`

	// WebhookDelivered is set on requeue once the webhook has succeeded.
	WebhookDelivered bool `json:"webhook_delivered,omitempty"`
}
