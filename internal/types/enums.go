package types

// EventType classifies a NotificationEvent.
type EventType string

const (
	EventTestCompletion EventType = "test_completion"
	EventTestFailure    EventType = "test_failure"
	EventCriticalAlert  EventType = "critical_alert"
)

// Valid reports whether the event type is one of the known values.
func (e EventType) Valid() bool {
	switch e {
	case EventTestCompletion, EventTestFailure, EventCriticalAlert:
		return true
	}
	return false
}

// AlertType identifies the detection rule that produced a CriticalAlert.
type AlertType string

const (
	AlertSuiteFailureThreshold AlertType = "suite_failure_threshold"
	AlertConsecutiveFailures   AlertType = "consecutive_failures"
)

// SeverityCritical is the only severity a CriticalAlert carries.
const SeverityCritical = "critical"

// ChannelType identifies a delivery channel.
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelSMS     ChannelType = "sms"
	ChannelSlack   ChannelType = "slack"
	ChannelWebhook ChannelType = "webhook"
	ChannelInApp   ChannelType = "in_app"
)

// TemplateFormat is the body format of a NotificationTemplate.
type TemplateFormat string

const (
	FormatHTML        TemplateFormat = "html"
	FormatText        TemplateFormat = "text"
	FormatSlackBlocks TemplateFormat = "slack_blocks"
)

// channelFormats lists the formats each template channel accepts.
// In-app delivery is not template-driven and has no entry.
var channelFormats = map[ChannelType][]TemplateFormat{
	ChannelEmail:   {FormatHTML, FormatText},
	ChannelSMS:     {FormatText},
	ChannelSlack:   {FormatSlackBlocks},
	ChannelWebhook: {FormatText},
}

// IsTemplateChannel reports whether templates may target the channel.
func IsTemplateChannel(c ChannelType) bool {
	_, ok := channelFormats[c]
	return ok
}

// FormatCompatible reports whether a template in format f can be delivered on channel c.
func FormatCompatible(c ChannelType, f TemplateFormat) bool {
	for _, allowed := range channelFormats[c] {
		if allowed == f {
			return true
		}
	}
	return false
}

// ExecutionStatus is the lifecycle state of a test execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionError     ExecutionStatus = "error"
)

// Finished reports whether the execution reached a terminal state.
func (s ExecutionStatus) Finished() bool {
	return s == ExecutionCompleted || s == ExecutionError
}

// ExecutionResult is the verdict of a finished test execution.
type ExecutionResult string

const (
	ResultPass  ExecutionResult = "pass"
	ResultFail  ExecutionResult = "fail"
	ResultError ExecutionResult = "error"
	ResultSkip  ExecutionResult = "skip"
)

// IsFailure reports whether the result counts toward failure detection.
func (r ExecutionResult) IsFailure() bool {
	return r == ResultFail || r == ResultError
}
