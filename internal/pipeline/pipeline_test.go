package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"testpulse/internal/notifications/core"
	"testpulse/internal/retry"
	"testpulse/internal/types"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return now }

type fakeDetector struct {
	alerts []types.CriticalAlert
	err    error
	calls  int
}

func (f *fakeDetector) Detect(context.Context, types.Execution) ([]types.CriticalAlert, error) {
	f.calls++
	return f.alerts, f.err
}

type fakeEvents struct {
	mu          sync.Mutex
	completions []string
	outcomes    []types.DeliveryResult
}

func (f *fakeEvents) PublishTestCompletionEvent(_ context.Context, exec *types.Execution) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, exec.ExecutionID)
	return "evt"
}

func (f *fakeEvents) PublishNotificationOutcome(_ context.Context, _ types.NotificationMessage, r types.DeliveryResult) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, r)
	return "evt"
}

type fakeQueue struct {
	enqueued []types.NotificationMessage
	requeued []time.Duration
	resent   []types.NotificationMessage
	err      error
}

func (f *fakeQueue) Enqueue(_ context.Context, msg types.NotificationMessage) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, msg)
	return nil
}

func (f *fakeQueue) Requeue(_ context.Context, msg types.NotificationMessage, delay time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.requeued = append(f.requeued, delay)
	f.resent = append(f.resent, msg)
	return nil
}

type alertMetrics struct {
	core.NopMetrics
	alerts []types.AlertType
}

func (m *alertMetrics) RecordAlert(_ context.Context, t types.AlertType) {
	m.alerts = append(m.alerts, t)
}

type fakeRecipients struct {
	recipient *types.Recipient
	err       error
}

func (f *fakeRecipients) GetRecipient(context.Context, string) (*types.Recipient, error) {
	return f.recipient, f.err
}

type fakeSender struct {
	mu       sync.Mutex
	requests []*types.NotificationRequest
	result   types.DeliveryResult
}

func (f *fakeSender) Send(_ context.Context, req *types.NotificationRequest) types.DeliveryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.result
}

type fakeWebhook struct {
	enabled  bool
	fail     bool
	mu       sync.Mutex
	payloads []map[string]any
}

func (f *fakeWebhook) IsEnabled() bool { return f.enabled }

func (f *fakeWebhook) Deliver(_ context.Context, _ *retry.Executor, _ retry.Config, payload map[string]any) types.DeliveryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	if f.fail {
		return types.DeliveryResult{Channel: types.ChannelWebhook, ErrorMessage: "webhook returned 502"}
	}
	return types.DeliveryResult{Success: true, Channel: types.ChannelWebhook}
}

type fakeHistory struct {
	records []types.NotificationHistory
	err     error
}

func (f *fakeHistory) Record(_ context.Context, h types.NotificationHistory) error {
	f.records = append(f.records, h)
	return f.err
}

var errStorage = errors.New("dynamodb unavailable")
