package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"testpulse/internal/types"
)

// SQSMaxDelay is the largest DelaySeconds SQS accepts.
const SQSMaxDelay = 900 * time.Second

// SQSSender abstracts the SQS SendMessage operation for testability.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// NotificationPublisher enqueues NotificationMessages for the notification
// worker, either on first dispatch (Enqueue) or for a delayed retry (Requeue).
type NotificationPublisher struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
}

func NewNotificationPublisher(client SQSSender, queueURL string, logger types.Logger) *NotificationPublisher {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &NotificationPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Enqueue sends msg unchanged with no delay.
func (p *NotificationPublisher) Enqueue(ctx context.Context, msg types.NotificationMessage) error {
	return p.send(ctx, msg, 0)
}

// Requeue increments RetryCount before serializing, then sends with delay
// clamped to [0, SQSMaxDelay]. msg is passed by value and not mutated.
func (p *NotificationPublisher) Requeue(ctx context.Context, msg types.NotificationMessage, delay time.Duration) error {
	msg.RetryCount++
	return p.send(ctx, msg, delay)
}

func (p *NotificationPublisher) send(ctx context.Context, msg types.NotificationMessage, delay time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notification publisher: failed to marshal message: %w", err)
	}

	delay = min(max(delay, 0), SQSMaxDelay)
	delaySec := int32(delay / time.Second)

	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(p.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySec,
	}
	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("notification publisher: failed to send message to %s: %w", p.queueURL, err)
	}

	p.logger.Info("notification message published",
		"notification_id", msg.NotificationID,
		"event_type", string(msg.Event.EventType),
		"retry_count", msg.RetryCount,
		"delay_seconds", delaySec,
		"trace_id", msg.TraceID,
	)
	return nil
}
