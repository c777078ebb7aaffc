// Package config defines the configuration structure for the TestPulse
// notification pipeline. Configuration is loaded once when a process starts
// (Lambda cold start or server boot) and threaded through constructors; it is
// never mutated afterwards.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
package config

import (
	"time"

	"testpulse/internal/types"
)

// SecretString is an alias for types.SecretString so callers of this package
// do not need to import types for credential fields.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"testpulse"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	AWS           AWSConfig
	Tables        TableConfig
	Events        EventsConfig
	Email         EmailConfig
	Webhook       WebhookConfig
	Retry         RetryConfig
	Alerts        AlertConfig
	Redaction     RedactionConfig
	Observability ObservabilityConfig

	// Build is injected via ldflags, not the environment.
	Build BuildInfo
}

// ServerConfig holds the template API listener settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

// AWSConfig holds regional settings and queue identifiers.
type AWSConfig struct {
	Region            string `envconfig:"AWS_REGION" default:"us-east-1"`
	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"omitempty,url"`

	// LocalStack support. Empty in deployed environments.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// TableConfig names the DynamoDB tables and the secondary indexes the core queries.
type TableConfig struct {
	Executions            string `envconfig:"EXECUTIONS_TABLE" default:"TestExecutions"`
	SuiteExecutionIndex   string `envconfig:"SUITE_EXECUTION_INDEX" default:"SuiteExecutionIndex"`
	TestCaseTimeIndex     string `envconfig:"TEST_CASE_TIME_INDEX" default:"TestCaseTimeIndex"`
	Templates             string `envconfig:"TEMPLATES_TABLE" default:"NotificationTemplates"`
	EventTypeChannelIndex string `envconfig:"EVENT_TYPE_CHANNEL_INDEX" default:"EventTypeChannelIndex"`
	History               string `envconfig:"HISTORY_TABLE" default:"NotificationHistory"`
	Users                 string `envconfig:"USERS_TABLE" default:"Users"`
}

// EventsConfig holds the EventBridge destination.
type EventsConfig struct {
	BusName string `envconfig:"EVENT_BUS_NAME" default:"default"`
	Source  string `envconfig:"EVENT_SOURCE" default:"testpulse.executions"`
}

// EmailConfig holds the SES sender identity.
type EmailConfig struct {
	FromAddress string `envconfig:"EMAIL_FROM_ADDRESS" default:"alerts@testpulse.dev" validate:"email"`
	FromName    string `envconfig:"EMAIL_FROM_NAME" default:"TestPulse Alerts"`
	Enabled     bool   `envconfig:"FEATURE_ENABLE_EMAIL" default:"true"`
}

// WebhookConfig holds settings for the outbound automation webhook.
type WebhookConfig struct {
	Enabled     bool         `envconfig:"WEBHOOK_ENABLED" default:"false"`
	URL         string       `envconfig:"WEBHOOK_URL"`
	APIKey      SecretString `envconfig:"WEBHOOK_API_KEY"`
	BearerToken SecretString `envconfig:"WEBHOOK_BEARER_TOKEN"`

	// AuthSecretID names a Secrets Manager secret holding {"apiKey","bearerToken"}.
	// Used when neither credential is set directly.
	AuthSecretID string `envconfig:"WEBHOOK_AUTH_SECRET_ID"`

	Timeout      time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s" validate:"gt=0"`
	Source       string        `envconfig:"WEBHOOK_SOURCE" default:"testpulse"`
	Version      string        `envconfig:"WEBHOOK_PAYLOAD_VERSION" default:"1.0"`
	UserAgent    string        `envconfig:"WEBHOOK_USER_AGENT" default:"TestPulse-Webhook/1.0"`
	MaxRedirects int           `envconfig:"WEBHOOK_MAX_REDIRECTS" default:"3" validate:"min=0"`
}

// RetryConfig holds the backoff tunables applied to every external send.
type RetryConfig struct {
	MaxRetries        int           `envconfig:"RETRY_MAX_RETRIES" default:"3" validate:"min=0,max=10"`
	InitialDelay      time.Duration `envconfig:"RETRY_INITIAL_DELAY" default:"1s"`
	MaxDelay          time.Duration `envconfig:"RETRY_MAX_DELAY" default:"30s"`
	BackoffMultiplier float64       `envconfig:"RETRY_BACKOFF_MULTIPLIER" default:"2" validate:"gte=1"`
	RetryableErrors   []string      `envconfig:"RETRY_RETRYABLE_ERRORS" default:"timeout,ECONNRESET,ETIMEDOUT,network,throttl,connection reset"`

	// A delivery that still fails after in-process retries is re-enqueued
	// with a growing SQS delay up to MaxRequeues times.
	MaxRequeues  int           `envconfig:"RETRY_MAX_REQUEUES" default:"2" validate:"min=0"`
	RequeueDelay time.Duration `envconfig:"RETRY_REQUEUE_DELAY" default:"60s"`
}

// AlertConfig holds the failure detection thresholds.
type AlertConfig struct {
	FailureRateThreshold float64 `envconfig:"ALERT_FAILURE_RATE_THRESHOLD" default:"50" validate:"gte=0,lte=100"`
	ConsecutiveFailures  int     `envconfig:"ALERT_CONSECUTIVE_FAILURES" default:"3" validate:"min=1"`
	NotifyOnCompletion   bool    `envconfig:"NOTIFY_ON_COMPLETION" default:"true"`
}

// RedactionConfig carries redaction rules as JSON data:
// [{"pattern": "...", "replacement": "..."}]. Empty means built-in defaults.
type RedactionConfig struct {
	LogRulesJSON     string       `envconfig:"REDACTION_LOG_RULES_JSON" validate:"omitempty,json"`
	MessageRulesJSON string       `envconfig:"REDACTION_MESSAGE_RULES_JSON" validate:"omitempty,json"`
	FingerprintKey   SecretString `envconfig:"FINGERPRINT_KEY"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"TestPulse"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
