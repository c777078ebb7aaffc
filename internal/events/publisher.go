// Package events emits fire-and-forget records of pipeline activity to
// Amazon EventBridge. Publishing never fails the caller: every error is
// logged and reported as an empty event ID.
package events

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"testpulse/internal/config"
	"testpulse/internal/types"
)

// Detail types used on the bus.
const (
	DetailTypeTestExecution       = "Test Execution Completed"
	DetailTypeNotificationOutcome = "Notification Delivery Outcome"
)

// EventBridgeAPI is the subset of the EventBridge client the publisher uses.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

type Publisher struct {
	client  EventBridgeAPI
	busName string
	source  string
	clock   types.Clock
	logger  types.Logger
}

func NewPublisher(client EventBridgeAPI, cfg config.EventsConfig, clock types.Clock, logger types.Logger) *Publisher {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Publisher{
		client:  client,
		busName: cfg.BusName,
		source:  cfg.Source,
		clock:   clock,
		logger:  logger,
	}
}

// CompletionEventType derives the event type of a finished execution: an
// errored status or result is a critical alert, a failed result is a test
// failure, anything else is a completion.
func CompletionEventType(exec *types.Execution) types.EventType {
	switch {
	case exec.Status == types.ExecutionError || exec.Result == types.ResultError:
		return types.EventCriticalAlert
	case exec.Result == types.ResultFail:
		return types.EventTestFailure
	default:
		return types.EventTestCompletion
	}
}

// PublishTestCompletionEvent records a finished execution and returns the
// EventBridge event ID, or "" if publishing failed.
func (p *Publisher) PublishTestCompletionEvent(ctx context.Context, exec *types.Execution) string {
	detail := map[string]any{
		"eventType":   CompletionEventType(exec),
		"executionId": exec.ExecutionID,
		"testCaseId":  exec.TestCaseID,
		"projectId":   exec.ProjectID,
		"status":      exec.Status,
		"result":      exec.Result,
		"timestamp":   p.clock.Now(),
	}
	if exec.TestSuiteID != "" {
		detail["testSuiteId"] = exec.TestSuiteID
	}
	if exec.SuiteExecutionID != "" {
		detail["suiteExecutionId"] = exec.SuiteExecutionID
	}
	if exec.ErrorMessage != "" {
		detail["errorMessage"] = exec.ErrorMessage
	}
	if exec.TriggeredBy != "" {
		detail["triggeredBy"] = exec.TriggeredBy
	}
	return p.PublishEvent(ctx, DetailTypeTestExecution, detail)
}

// PublishNotificationOutcome records the result of delivering one notification.
func (p *Publisher) PublishNotificationOutcome(ctx context.Context, msg types.NotificationMessage, result types.DeliveryResult) string {
	detail := map[string]any{
		"notificationId": msg.NotificationID,
		"eventId":        msg.Event.EventID,
		"eventType":      msg.Event.EventType,
		"userId":         msg.UserID,
		"projectId":      msg.ProjectID,
		"channel":        result.Channel,
		"success":        result.Success,
		"attempts":       result.Attempts,
		"durationMs":     result.Duration.Milliseconds(),
		"timestamp":      p.clock.Now(),
	}
	if result.MessageID != "" {
		detail["messageId"] = result.MessageID
	}
	if result.ErrorMessage != "" {
		detail["errorMessage"] = result.ErrorMessage
	}
	return p.PublishEvent(ctx, DetailTypeNotificationOutcome, detail)
}

// PublishEvent sends one entry to the bus. A rejected entry or any error is
// logged and yields "".
func (p *Publisher) PublishEvent(ctx context.Context, detailType string, detail any) string {
	body, err := json.Marshal(detail)
	if err != nil {
		p.logger.Error("failed to marshal event detail", "detail_type", detailType, "error", err.Error())
		return ""
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []ebtypes.PutEventsRequestEntry{{
			EventBusName: aws.String(p.busName),
			Source:       aws.String(p.source),
			DetailType:   aws.String(detailType),
			Detail:       aws.String(string(body)),
		}},
	})
	if err != nil {
		p.logger.Error("failed to publish event", "detail_type", detailType, "error", err.Error())
		return ""
	}
	if out.FailedEntryCount > 0 {
		args := []any{"detail_type", detailType, "failed_entry_count", out.FailedEntryCount}
		if len(out.Entries) > 0 {
			args = append(args,
				"error_code", aws.ToString(out.Entries[0].ErrorCode),
				"error_message", aws.ToString(out.Entries[0].ErrorMessage),
			)
		}
		p.logger.Error("event rejected by bus", args...)
		return ""
	}
	if len(out.Entries) == 0 {
		return ""
	}

	eventID := aws.ToString(out.Entries[0].EventId)
	p.logger.Info("event published", "detail_type", detailType, "event_id", eventID)
	return eventID
}
