package types

import "time"

// Execution is one run of a test case, as stored in the executions table.
// SuiteSize, when the runner sets it, is the number of executions in the
// suite run.
type Execution struct {
	ExecutionID      string          `json:"executionId" dynamodbav:"executionId"`
	TestCaseID       string          `json:"testCaseId" dynamodbav:"testCaseId"`
	TestSuiteID      string          `json:"testSuiteId,omitempty" dynamodbav:"testSuiteId,omitempty"`
	SuiteExecutionID string          `json:"suiteExecutionId,omitempty" dynamodbav:"suiteExecutionId,omitempty"`
	SuiteSize        int             `json:"suiteSize,omitempty" dynamodbav:"suiteSize,omitempty"`
	ProjectID        string          `json:"projectId" dynamodbav:"projectId"`
	UserID           string          `json:"userId,omitempty" dynamodbav:"userId,omitempty"`
	Status           ExecutionStatus `json:"status" dynamodbav:"status"`
	Result           ExecutionResult `json:"result,omitempty" dynamodbav:"result,omitempty"`
	ErrorMessage     string          `json:"errorMessage,omitempty" dynamodbav:"errorMessage,omitempty"`
	TriggeredBy      string          `json:"triggeredBy,omitempty" dynamodbav:"triggeredBy,omitempty"`
	StartTime        *time.Time      `json:"startTime,omitempty" dynamodbav:"startTime,omitempty"`
	EndTime          *time.Time      `json:"endTime,omitempty" dynamodbav:"endTime,omitempty"`
	CreatedAt        time.Time       `json:"createdAt" dynamodbav:"createdAt"`
}

// AlertDetails carries the evidence behind a CriticalAlert. Which fields are
// set depends on the alert type.
type AlertDetails struct {
	FailureRate         *float64   `json:"failureRate,omitempty"`
	ConsecutiveFailures *int       `json:"consecutiveFailures,omitempty"`
	AffectedTests       []string   `json:"affectedTests,omitempty"`
	LastFailure         *time.Time `json:"lastFailure,omitempty"`
	ErrorMessage        string     `json:"errorMessage,omitempty"`
}

// CriticalAlert is a detected failure pattern. It is never stored on its own;
// GenerateCriticalAlert wraps it into a NotificationEvent.
type CriticalAlert struct {
	AlertType        AlertType    `json:"alertType"`
	TestCaseID       string       `json:"testCaseId,omitempty"`
	TestSuiteID      string       `json:"testSuiteId,omitempty"`
	SuiteExecutionID string       `json:"suiteExecutionId,omitempty"`
	Severity         string       `json:"severity"`
	Reason           string       `json:"reason"`
	Details          AlertDetails `json:"details"`
	Timestamp        time.Time    `json:"timestamp"`
}

// NotificationEvent is the immutable envelope handed to rendering, dispatch
// and the event bus.
type NotificationEvent struct {
	EventType EventType      `json:"eventType"`
	EventID   string         `json:"eventId"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// NotificationTemplate is an authored message body for one (event type, channel) pair.
type NotificationTemplate struct {
	TemplateID string         `json:"templateId" dynamodbav:"templateId"`
	EventType  EventType      `json:"eventType" dynamodbav:"eventType" validate:"required,oneof=test_completion test_failure critical_alert"`
	Channel    ChannelType    `json:"channel" dynamodbav:"channel" validate:"required,oneof=email sms slack webhook"`
	Format     TemplateFormat `json:"format" dynamodbav:"format" validate:"required,oneof=html text slack_blocks"`
	Subject    string         `json:"subject,omitempty" dynamodbav:"subject,omitempty"`
	Body       string         `json:"body" dynamodbav:"body" validate:"required"`
	CreatedAt  time.Time      `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt" dynamodbav:"updatedAt"`
}

// TemplateUpdate holds the mutable fields of a template. Nil fields are left unchanged.
type TemplateUpdate struct {
	Channel *ChannelType    `json:"channel,omitempty" validate:"omitempty,oneof=email sms slack webhook"`
	Format  *TemplateFormat `json:"format,omitempty" validate:"omitempty,oneof=html text slack_blocks"`
	Subject *string         `json:"subject,omitempty"`
	Body    *string         `json:"body,omitempty"`
}

// TouchesContent reports whether the update changes anything validation depends on.
func (u TemplateUpdate) TouchesContent() bool {
	return u.Body != nil || u.Channel != nil || u.Format != nil
}

// Recipient is the resolved contact information for a notification target.
type Recipient struct {
	UserID      string `json:"userId" dynamodbav:"userId"`
	Email       string `json:"email,omitempty" dynamodbav:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty" dynamodbav:"phoneNumber,omitempty"`
}

// NotificationRequest is the input to channel dispatch. The channel is chosen
// from which contact fields are set.
type NotificationRequest struct {
	NotificationID string         `json:"notificationId"`
	UserID         string         `json:"userId"`
	Email          string         `json:"email,omitempty"`
	PhoneNumber    string         `json:"phoneNumber,omitempty"`
	EventType      EventType      `json:"eventType"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	HTMLBody       string         `json:"htmlBody,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

// DeliveryResult is the outcome of one channel send.
type DeliveryResult struct {
	Success      bool          `json:"success"`
	Channel      ChannelType   `json:"channel,omitempty"`
	MessageID    string        `json:"messageId,omitempty"`
	StatusCode   int           `json:"statusCode,omitempty"`
	ResponseBody string        `json:"responseBody,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	Duration     time.Duration `json:"duration"`
	Attempts     int           `json:"attempts,omitempty"`

	// Retryable is set on failures a later attempt might fix.
	Retryable bool `json:"retryable,omitempty"`
}

// HistoryRetention is how long notification history records live before TTL expiry.
const HistoryRetention = 90 * 24 * time.Hour

// NotificationHistory is the append-only audit record written after dispatch.
type NotificationHistory struct {
	NotificationID string      `json:"notificationId" dynamodbav:"notificationId"`
	UserID         string      `json:"userId" dynamodbav:"userId"`
	EventType      EventType   `json:"eventType" dynamodbav:"eventType"`
	Channel        ChannelType `json:"channel" dynamodbav:"channel"`
	Success        bool        `json:"success" dynamodbav:"success"`
	MessageID      string      `json:"messageId,omitempty" dynamodbav:"messageId,omitempty"`
	ErrorMessage   string      `json:"errorMessage,omitempty" dynamodbav:"errorMessage,omitempty"`
	Body           []byte      `json:"-" dynamodbav:"body,omitempty"`
	SentAt         time.Time   `json:"sentAt" dynamodbav:"sentAt"`
	TTL            int64       `json:"ttl" dynamodbav:"ttl"`
}

// HistoryExpiry returns the TTL epoch seconds for a record sent at sentAt.
func HistoryExpiry(sentAt time.Time) int64 {
	return sentAt.Add(HistoryRetention).Unix()
}
