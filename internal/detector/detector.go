// Package detector inspects finished test executions for failure patterns
// worth escalating: a suite run whose failure rate crosses the threshold, and
// a test case that keeps failing run after run.
package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"testpulse/internal/store"
	"testpulse/internal/types"
)

// Defaults applied when Thresholds are left zero.
const (
	DefaultFailureRateThreshold = 50.0
	DefaultConsecutiveFailures  = 3
)

// ExecutionSource is the read side of the executions table.
type ExecutionSource interface {
	QuerySuitePage(ctx context.Context, suiteExecutionID string, cursor store.Cursor) ([]types.Execution, store.Cursor, error)
	RecentByTestCase(ctx context.Context, testCaseID string, limit int) ([]types.Execution, error)
}

var _ ExecutionSource = (*store.ExecutionRepository)(nil)

// Thresholds controls when an alert fires.
type Thresholds struct {
	// FailureRate is a percentage; a suite alerts only when strictly above it.
	FailureRate float64
	// ConsecutiveFailures is how many of the newest runs must all fail.
	ConsecutiveFailures int
}

// Detector runs the failure checks against an ExecutionSource.
type Detector struct {
	source     ExecutionSource
	thresholds Thresholds
	clock      types.Clock
	logger     types.Logger
}

// New builds a Detector. Zero thresholds fall back to the package defaults.
func New(source ExecutionSource, thresholds Thresholds, clock types.Clock, logger types.Logger) *Detector {
	if thresholds.FailureRate <= 0 {
		thresholds.FailureRate = DefaultFailureRateThreshold
	}
	if thresholds.ConsecutiveFailures <= 0 {
		thresholds.ConsecutiveFailures = DefaultConsecutiveFailures
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Detector{source: source, thresholds: thresholds, clock: clock, logger: logger}
}

// DetectSuiteFailureRate walks every page of a suite run and returns an alert
// when the share of failed executions exceeds the threshold. A suite run with
// no executions yields nil.
func (d *Detector) DetectSuiteFailureRate(ctx context.Context, suiteExecutionID string) (*types.CriticalAlert, error) {
	all, err := d.suiteRun(ctx, suiteExecutionID)
	if err != nil {
		return nil, err
	}
	return d.evaluateSuite(suiteExecutionID, all), nil
}

// suiteRun loads every execution of a suite run, following the cursor until
// the last page.
func (d *Detector) suiteRun(ctx context.Context, suiteExecutionID string) ([]types.Execution, error) {
	var (
		all    []types.Execution
		cursor store.Cursor
	)
	for {
		page, next, err := d.source.QuerySuitePage(ctx, suiteExecutionID, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == nil {
			return all, nil
		}
		cursor = next
	}
}

func (d *Detector) evaluateSuite(suiteExecutionID string, all []types.Execution) *types.CriticalAlert {
	if len(all) == 0 {
		return nil
	}

	var (
		failed   int
		affected []string
		seen     = make(map[string]struct{})
	)
	for _, e := range all {
		if !e.Result.IsFailure() {
			continue
		}
		failed++
		if _, ok := seen[e.TestCaseID]; ok {
			continue
		}
		seen[e.TestCaseID] = struct{}{}
		affected = append(affected, e.TestCaseID)
	}

	rate := float64(failed) / float64(len(all)) * 100
	if rate <= d.thresholds.FailureRate {
		return nil
	}

	last := all[len(all)-1]
	lastFailure := last.CreatedAt
	if last.EndTime != nil {
		lastFailure = *last.EndTime
	}

	d.logger.Warn("suite failure rate above threshold",
		"suite_execution_id", suiteExecutionID,
		"failure_rate", rate,
		"failed", failed,
		"total", len(all),
	)

	return &types.CriticalAlert{
		AlertType:        types.AlertSuiteFailureThreshold,
		TestSuiteID:      last.TestSuiteID,
		SuiteExecutionID: suiteExecutionID,
		Severity:         types.SeverityCritical,
		Reason: fmt.Sprintf("Suite failure rate %.1f%% exceeds threshold of %.0f%%",
			rate, d.thresholds.FailureRate),
		Details: types.AlertDetails{
			FailureRate:   &rate,
			AffectedTests: affected,
			LastFailure:   &lastFailure,
		},
		Timestamp: d.clock.Now(),
	}
}

// DetectConsecutiveFailures returns an alert when the newest limit runs of a
// test case all failed. A limit of zero or less means the configured count.
// Fewer runs than limit is treated as insufficient data and yields nil.
func (d *Detector) DetectConsecutiveFailures(ctx context.Context, testCaseID string, limit int) (*types.CriticalAlert, error) {
	if limit <= 0 {
		limit = d.thresholds.ConsecutiveFailures
	}

	recent, err := d.source.RecentByTestCase(ctx, testCaseID, limit)
	if err != nil {
		return nil, err
	}
	if len(recent) < limit {
		return nil, nil
	}
	recent = recent[:limit]

	for _, e := range recent {
		if !e.Result.IsFailure() {
			return nil, nil
		}
	}

	newest := recent[0]
	streak := limit
	lastFailure := newest.CreatedAt
	if newest.EndTime != nil {
		lastFailure = *newest.EndTime
	}

	d.logger.Warn("consecutive test failures",
		"test_case_id", testCaseID,
		"count", streak,
	)

	return &types.CriticalAlert{
		AlertType:   types.AlertConsecutiveFailures,
		TestCaseID:  testCaseID,
		TestSuiteID: newest.TestSuiteID,
		Severity:    types.SeverityCritical,
		Reason:      fmt.Sprintf("Test case failed %d consecutive times", streak),
		Details: types.AlertDetails{
			ConsecutiveFailures: &streak,
			LastFailure:         &lastFailure,
			ErrorMessage:        newest.ErrorMessage,
		},
		Timestamp: d.clock.Now(),
	}, nil
}

// Detect runs every check that applies to one finished execution. The
// consecutive check needs a failing test case. The suite check runs only for
// the execution that closes its suite run, so a run is judged once, on its
// final result.
func (d *Detector) Detect(ctx context.Context, exec types.Execution) ([]types.CriticalAlert, error) {
	var alerts []types.CriticalAlert

	if exec.TestCaseID != "" && exec.Result.IsFailure() {
		alert, err := d.DetectConsecutiveFailures(ctx, exec.TestCaseID, 0)
		if err != nil {
			return nil, fmt.Errorf("consecutive failure check for %s: %w", exec.TestCaseID, err)
		}
		if alert != nil {
			alerts = append(alerts, *alert)
		}
	}

	if exec.SuiteExecutionID != "" {
		run, err := d.suiteRun(ctx, exec.SuiteExecutionID)
		if err != nil {
			return nil, fmt.Errorf("suite failure check for %s: %w", exec.SuiteExecutionID, err)
		}
		run = withExecution(run, exec)
		if closesSuiteRun(exec, run) {
			if alert := d.evaluateSuite(exec.SuiteExecutionID, run); alert != nil {
				alerts = append(alerts, *alert)
			}
		}
	}

	return alerts, nil
}

// withExecution overlays exec on the queried rows. The stream image is newer
// than what the suite index may still return for it.
func withExecution(run []types.Execution, exec types.Execution) []types.Execution {
	found := false
	for i := range run {
		if run[i].ExecutionID == exec.ExecutionID {
			run[i] = exec
			found = true
		}
	}
	if !found {
		run = append(run, exec)
	}
	return run
}

// closesSuiteRun reports whether exec is the last execution of a complete
// suite run. A run is complete when every row is finished and, if the runner
// stamped suiteSize, that many rows exist. The closing execution is the one
// that finished last, ties broken by execution ID, so exactly one execution
// per run qualifies.
func closesSuiteRun(exec types.Execution, run []types.Execution) bool {
	expected := 0
	for _, e := range run {
		if !e.Status.Finished() {
			return false
		}
		expected = max(expected, e.SuiteSize)
	}
	if len(run) < expected {
		return false
	}

	at := finishedAt(exec)
	for _, e := range run {
		other := finishedAt(e)
		if other.After(at) || (other.Equal(at) && e.ExecutionID > exec.ExecutionID) {
			return false
		}
	}
	return true
}

func finishedAt(e types.Execution) time.Time {
	if e.EndTime != nil {
		return *e.EndTime
	}
	return e.CreatedAt
}

// GenerateCriticalAlert wraps an alert into a critical_alert event. It does
// no I/O; the event ID is a ULID stamped with the alert time.
func GenerateCriticalAlert(alert types.CriticalAlert, projectID, triggeredBy string) types.NotificationEvent {
	ts := alert.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	payload := map[string]any{
		"alertType":   string(alert.AlertType),
		"severity":    alert.Severity,
		"reason":      alert.Reason,
		"projectId":   projectID,
		"triggeredBy": triggeredBy,
		"details":     alert.Details,
	}
	if alert.TestCaseID != "" {
		payload["testCaseId"] = alert.TestCaseID
	}
	if alert.TestSuiteID != "" {
		payload["testSuiteId"] = alert.TestSuiteID
	}
	if alert.SuiteExecutionID != "" {
		payload["suiteExecutionId"] = alert.SuiteExecutionID
	}

	// Flattened so templates can reference {{failureRate}} directly.
	det := alert.Details
	if det.FailureRate != nil {
		payload["failureRate"] = *det.FailureRate
	}
	if det.ConsecutiveFailures != nil {
		payload["consecutiveFailures"] = *det.ConsecutiveFailures
	}
	if len(det.AffectedTests) > 0 {
		payload["affectedTests"] = det.AffectedTests
	}
	if det.LastFailure != nil {
		payload["lastFailure"] = det.LastFailure.Format(time.RFC3339)
	}
	if det.ErrorMessage != "" {
		payload["errorMessage"] = det.ErrorMessage
	}

	return types.NotificationEvent{
		EventType: types.EventCriticalAlert,
		EventID:   ulid.MustNew(ulid.Timestamp(ts), ulid.DefaultEntropy()).String(),
		Timestamp: ts,
		Payload:   payload,
	}
}
