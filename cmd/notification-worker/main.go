// Package main is the entrypoint for the Notification Worker Lambda function.
//
// The worker consumes the notification SQS queue. Each message names a user
// and an event; the worker resolves the user's contact, renders the template
// for the routed channel, delivers it (email via SES, SMS via SNS, in-app
// otherwise), calls the automation webhook in parallel when enabled, writes
// the history record and publishes the outcome to EventBridge.
//
// Messages that fail for infrastructure reasons are reported as batch item
// failures so SQS redelivers them; delivery failures that are worth another
// try are re-enqueued with a delay by the pipeline itself.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"testpulse/internal/config"
	tpevents "testpulse/internal/events"
	"testpulse/internal/external"
	"testpulse/internal/notifications/core"
	"testpulse/internal/notifications/dispatch"
	"testpulse/internal/notifications/email"
	"testpulse/internal/notifications/inapp"
	"testpulse/internal/notifications/sms"
	"testpulse/internal/notifications/webhook"
	"testpulse/internal/pipeline"
	"testpulse/internal/retry"
	"testpulse/internal/sanitize"
	"testpulse/internal/store"
	"testpulse/internal/templates"
	"testpulse/internal/types"
)

// slogAdapter wraps *slog.Logger to implement types.Logger. slog's With
// returns *slog.Logger, so the adapter is needed for the interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

// Processor delivers one notification message.
type Processor interface {
	Process(ctx context.Context, msg types.NotificationMessage) (types.DeliveryResult, error)
}

var _ Processor = (*pipeline.Deliverer)(nil)

// Handler holds the dependencies of the worker.
type Handler struct {
	processor Processor
	metrics   core.NotificationMetrics
	clock     types.Clock
	logger    types.Logger
}

// Handle processes an SQS batch. Each record is independent; failed records
// are returned in BatchItemFailures so only they are retried.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var msg types.NotificationMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		// Redelivery cannot fix a malformed body; ACK it.
		h.logger.Error("failed to unmarshal notification message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}

	if sent, ok := record.Attributes["SentTimestamp"]; ok {
		if sentAt, err := parseMillisTimestamp(sent); err == nil {
			h.metrics.RecordQueueLag(ctx, h.clock.Now().Sub(sentAt))
		}
	}

	if msg.TraceID != "" {
		ctx = types.WithRequestID(ctx, msg.TraceID)
	}

	result, err := h.processor.Process(ctx, msg)
	if err != nil {
		return fmt.Errorf("process notification %s: %w", msg.NotificationID, err)
	}

	h.logger.Info("notification processed",
		"notification_id", msg.NotificationID,
		"channel", string(result.Channel),
		"success", result.Success,
		"attempts", result.Attempts,
	)
	return nil
}

// parseMillisTimestamp parses the SQS SentTimestamp attribute.
func parseMillisTimestamp(ms string) (time.Time, error) {
	var millis int64
	if _, err := fmt.Sscanf(ms, "%d", &millis); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig(config.DefaultProvider())
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logRedactor, err := sanitize.NewRedactorFromJSON(cfg.Redaction.LogRulesJSON, sanitize.DefaultLogRules)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: log redaction rules: %v\n", err)
		os.Exit(1)
	}
	logger := sanitize.NewLogger(os.Stdout, cfg.LogLevel, logRedactor)
	typedLogger := &slogAdapter{logger: logger}
	logger.Info("Notification Worker initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	handler, err := buildHandler(ctx, cfg, typedLogger)
	if err != nil {
		logger.Error("Failed to initialize notification worker", "error", err)
		os.Exit(1)
	}

	// Local mode reads one SQS event from stdin instead of starting the runtime:
	//   echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | go run ./cmd/notification-worker
	if cfg.Environment == "local" {
		if err := runLocal(ctx, handler, os.Stdin, logger); err != nil {
			logger.Error("Local run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(handler.Handle)
}

func buildHandler(ctx context.Context, cfg *config.Config, logger types.Logger) (*Handler, error) {
	awsCfg, err := config.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}

	clock := types.RealClock{}
	ddb := dynamodb.NewFromConfig(awsCfg)
	metrics := core.NewCloudWatchNotificationMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)

	messageRedactor, err := sanitize.NewRedactorFromJSON(cfg.Redaction.MessageRulesJSON, sanitize.DefaultMessageRules)
	if err != nil {
		return nil, fmt.Errorf("message redaction rules: %w", err)
	}

	var emailChannel core.Channel
	if cfg.Email.Enabled {
		renderer, err := email.NewRenderer()
		if err != nil {
			return nil, err
		}
		emailChannel = email.NewEmailChannel(email.EmailChannelConfig{
			Provider: external.NewSESClient(awsCfg, external.SESClientConfig{Logger: logger}),
			Renderer: renderer,
			Sender:   external.SenderIdentity{Address: cfg.Email.FromAddress, Name: cfg.Email.FromName},
			Logger:   logger,
		})
	}

	retryCfg := retry.Config{
		MaxRetries:        cfg.Retry.MaxRetries,
		InitialDelay:      cfg.Retry.InitialDelay,
		MaxDelay:          cfg.Retry.MaxDelay,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		RetryableErrors:   cfg.Retry.RetryableErrors,
	}
	executor := retry.NewExecutor(logger)

	dispatcher := dispatch.New(dispatch.Channels{
		Email: emailChannel,
		SMS:   sms.NewSMSChannel(external.NewSNSClient(awsCfg, external.SNSClientConfig{Logger: logger}), logger),
		InApp: inapp.NewInAppChannel(logger),
	}, dispatch.Config{
		Retry:    retryCfg,
		Executor: executor,
		Redactor: messageRedactor,
		Metrics:  metrics,
		Clock:    clock,
		Logger:   logger,
	})

	hook, err := webhook.New(cfg.Webhook, external.NewSecretsManagerClient(awsCfg), logger)
	if err != nil {
		return nil, err
	}

	var fingerprints *sanitize.Fingerprinter
	if key := cfg.Redaction.FingerprintKey.Unmask(); key != "" {
		fingerprints = sanitize.NewFingerprinter(key)
	}

	deliverer := pipeline.NewDeliverer(pipeline.DelivererConfig{
		Recipients:   store.NewRecipientRepository(ddb, cfg.Tables.Users),
		Templates:    templates.NewService(store.NewTemplateRepository(ddb, cfg.Tables.Templates, cfg.Tables.EventTypeChannelIndex), clock, logger),
		Dispatcher:   dispatcher,
		Webhook:      hook,
		History:      store.NewHistoryRepository(ddb, cfg.Tables.History),
		Outcomes:     tpevents.NewPublisher(eventbridge.NewFromConfig(awsCfg), cfg.Events, clock, logger),
		Requeuer:     core.NewNotificationPublisher(sqs.NewFromConfig(awsCfg), cfg.AWS.NotificationQueue, logger),
		Executor:     executor,
		Retry:        retryCfg,
		MaxRequeues:  cfg.Retry.MaxRequeues,
		RequeueDelay: cfg.Retry.RequeueDelay,
		Fingerprints: fingerprints,
		Clock:        clock,
		Logger:       logger,
	})

	return &Handler{
		processor: deliverer,
		metrics:   metrics,
		clock:     clock,
		logger:    logger,
	}, nil
}

func runLocal(ctx context.Context, handler *Handler, in io.Reader, logger *slog.Logger) error {
	payload, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		return fmt.Errorf("parse stdin as SQS event: %w", err)
	}
	response, err := handler.Handle(ctx, sqsEvent)
	if err != nil {
		return err
	}
	logger.Info("Handler execution completed",
		"records_processed", len(sqsEvent.Records),
		"failures", len(response.BatchItemFailures),
	)
	return nil
}
