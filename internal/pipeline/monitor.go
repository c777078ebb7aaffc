// Package pipeline wires detection, rendering and delivery together. The
// Monitor runs in the execution-monitor Lambda and turns finished executions
// into queued notifications; the Deliverer runs in the notification worker
// and turns each queued notification into a delivery.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"testpulse/internal/detector"
	"testpulse/internal/events"
	"testpulse/internal/notifications/core"
	"testpulse/internal/types"
)

// AlertDetector runs failure detection for one execution.
type AlertDetector interface {
	Detect(ctx context.Context, exec types.Execution) ([]types.CriticalAlert, error)
}

// CompletionPublisher records finished executions on the event bus.
type CompletionPublisher interface {
	PublishTestCompletionEvent(ctx context.Context, exec *types.Execution) string
}

// MessageQueue hands notifications to the worker.
type MessageQueue interface {
	Enqueue(ctx context.Context, msg types.NotificationMessage) error
}

var (
	_ AlertDetector       = (*detector.Detector)(nil)
	_ CompletionPublisher = (*events.Publisher)(nil)
	_ MessageQueue        = (*core.NotificationPublisher)(nil)
)

// MonitorConfig holds the Monitor's collaborators.
type MonitorConfig struct {
	Detector AlertDetector
	Events   CompletionPublisher
	Queue    MessageQueue
	Metrics  core.NotificationMetrics
	Clock    types.Clock
	Logger   types.Logger

	// NotifyOnCompletion also queues a notification for passing runs.
	NotifyOnCompletion bool
}

type Monitor struct {
	detector           AlertDetector
	events             CompletionPublisher
	queue              MessageQueue
	metrics            core.NotificationMetrics
	clock              types.Clock
	logger             types.Logger
	notifyOnCompletion bool
}

func NewMonitor(cfg MonitorConfig) *Monitor {
	m := &Monitor{
		detector:           cfg.Detector,
		events:             cfg.Events,
		queue:              cfg.Queue,
		metrics:            cfg.Metrics,
		clock:              cfg.Clock,
		logger:             cfg.Logger,
		notifyOnCompletion: cfg.NotifyOnCompletion,
	}
	if m.metrics == nil {
		m.metrics = core.NopMetrics{}
	}
	if m.clock == nil {
		m.clock = types.RealClock{}
	}
	if m.logger == nil {
		m.logger = types.NopLogger{}
	}
	return m
}

// HandleExecution processes one execution record. Unfinished executions are
// ignored. Event publishing never fails the call; detection and enqueue
// errors are returned so the stream batch is retried.
func (m *Monitor) HandleExecution(ctx context.Context, exec types.Execution) error {
	if !exec.Status.Finished() {
		return nil
	}
	logger := m.logger.With("execution_id", exec.ExecutionID, "test_case_id", exec.TestCaseID)

	m.events.PublishTestCompletionEvent(ctx, &exec)

	var outgoing []types.NotificationEvent
	if evt, ok := m.completionEvent(exec); ok {
		outgoing = append(outgoing, evt)
	}

	alerts, err := m.detector.Detect(ctx, exec)
	if err != nil {
		return fmt.Errorf("detect failures for %s: %w", exec.ExecutionID, err)
	}
	for _, alert := range alerts {
		m.metrics.RecordAlert(ctx, alert.AlertType)
		logger.Warn("critical alert detected",
			"alert_type", string(alert.AlertType),
			"reason", alert.Reason,
		)
		outgoing = append(outgoing, detector.GenerateCriticalAlert(alert, exec.ProjectID, exec.TriggeredBy))
	}

	if len(outgoing) == 0 {
		return nil
	}
	if exec.UserID == "" {
		logger.Warn("execution has no owner, dropping notifications", "count", len(outgoing))
		return nil
	}

	traceID := types.GetRequestID(ctx)
	for _, evt := range outgoing {
		msg := types.NotificationMessage{
			NotificationID: uuid.NewString(),
			UserID:         exec.UserID,
			ProjectID:      exec.ProjectID,
			Event:          evt,
			TraceID:        traceID,
		}
		if err := m.queue.Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("enqueue %s notification: %w", evt.EventType, err)
		}
	}
	return nil
}

// completionEvent builds the per-execution notification. Passing runs only
// notify when configured to.
func (m *Monitor) completionEvent(exec types.Execution) (types.NotificationEvent, bool) {
	eventType := events.CompletionEventType(&exec)
	if eventType == types.EventTestCompletion && !m.notifyOnCompletion {
		return types.NotificationEvent{}, false
	}

	now := m.clock.Now()
	payload := map[string]any{
		"executionId": exec.ExecutionID,
		"testCaseId":  exec.TestCaseID,
		"projectId":   exec.ProjectID,
		"status":      string(exec.Status),
		"result":      string(exec.Result),
		"triggeredBy": exec.TriggeredBy,
	}
	if exec.TestSuiteID != "" {
		payload["testSuiteId"] = exec.TestSuiteID
	}
	if exec.ErrorMessage != "" {
		payload["errorMessage"] = exec.ErrorMessage
	}
	if exec.EndTime != nil {
		payload["endTime"] = exec.EndTime.Format(time.RFC3339)
	}
	if eventType == types.EventCriticalAlert {
		payload["alertType"] = "execution_error"
		payload["severity"] = types.SeverityCritical
		payload["reason"] = fmt.Sprintf("Test case %s errored", exec.TestCaseID)
	}

	return types.NotificationEvent{
		EventType: eventType,
		EventID:   ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Timestamp: now,
		Payload:   payload,
	}, true
}
