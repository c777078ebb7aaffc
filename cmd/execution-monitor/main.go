// Package main is the entrypoint for the Execution Monitor Lambda function.
//
// The monitor is subscribed to the executions table's DynamoDB stream. For
// every inserted or modified execution that has finished it publishes the
// completion event, runs failure detection and queues the resulting
// notifications for the notification worker.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"testpulse/internal/config"
	"testpulse/internal/detector"
	tpevents "testpulse/internal/events"
	"testpulse/internal/notifications/core"
	"testpulse/internal/pipeline"
	"testpulse/internal/sanitize"
	"testpulse/internal/store"
	"testpulse/internal/types"
)

// slogAdapter wraps *slog.Logger to implement types.Logger.
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

// ExecutionHandler processes one finished execution.
type ExecutionHandler interface {
	HandleExecution(ctx context.Context, exec types.Execution) error
}

var _ ExecutionHandler = (*pipeline.Monitor)(nil)

// Handler holds the dependencies of the monitor.
type Handler struct {
	monitor ExecutionHandler
	logger  types.Logger
}

// Handle processes a stream batch. REMOVE records are skipped, as are
// MODIFY records whose old image was already finished. A record whose image
// cannot be decoded is logged and skipped; a record whose processing fails
// is reported so the stream retries from it.
func (h *Handler) Handle(ctx context.Context, streamEvent events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	response := events.DynamoDBEventResponse{}

	for _, record := range streamEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process stream record",
				"event_id", record.EventID,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.DynamoDBBatchItemFailure{ItemIdentifier: record.Change.SequenceNumber},
			)
		}
	}

	return response, nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	switch events.DynamoDBOperationType(record.EventName) {
	case events.DynamoDBOperationTypeInsert:
	case events.DynamoDBOperationTypeModify:
		// Later writes to a finished execution (logs, analysis, artifacts)
		// must not notify again.
		if imageFinished(record.Change.OldImage) {
			return nil
		}
	default:
		return nil
	}

	exec, err := decodeExecution(record.Change.NewImage)
	if err != nil {
		h.logger.Error("failed to decode execution image",
			"event_id", record.EventID,
			"error", err.Error(),
		)
		return nil
	}

	ctx = types.WithRequestID(ctx, record.EventID)
	return h.monitor.HandleExecution(ctx, exec)
}

// imageFinished reports whether a stream image holds a terminal status. A
// missing image (NEW_IMAGE stream view) counts as not finished.
func imageFinished(image map[string]events.DynamoDBAttributeValue) bool {
	status, ok := image["status"]
	if !ok || status.DataType() != events.DataTypeString {
		return false
	}
	return types.ExecutionStatus(status.String()).Finished()
}

// decodeExecution converts a stream image into an Execution.
func decodeExecution(image map[string]events.DynamoDBAttributeValue) (types.Execution, error) {
	var exec types.Execution
	if len(image) == 0 {
		return exec, fmt.Errorf("empty image")
	}

	item := make(map[string]ddbtypes.AttributeValue, len(image))
	for k, v := range image {
		av, err := toAttributeValue(v)
		if err != nil {
			return exec, fmt.Errorf("attribute %s: %w", k, err)
		}
		item[k] = av
	}
	if err := attributevalue.UnmarshalMap(item, &exec); err != nil {
		return exec, fmt.Errorf("unmarshal execution: %w", err)
	}
	if exec.ExecutionID == "" {
		return exec, fmt.Errorf("image has no executionId")
	}
	return exec, nil
}

// toAttributeValue maps the Lambda events representation onto the SDK one.
func toAttributeValue(v events.DynamoDBAttributeValue) (ddbtypes.AttributeValue, error) {
	switch v.DataType() {
	case events.DataTypeString:
		return &ddbtypes.AttributeValueMemberS{Value: v.String()}, nil
	case events.DataTypeNumber:
		return &ddbtypes.AttributeValueMemberN{Value: v.Number()}, nil
	case events.DataTypeBoolean:
		return &ddbtypes.AttributeValueMemberBOOL{Value: v.Boolean()}, nil
	case events.DataTypeNull:
		return &ddbtypes.AttributeValueMemberNULL{Value: true}, nil
	case events.DataTypeBinary:
		return &ddbtypes.AttributeValueMemberB{Value: v.Binary()}, nil
	case events.DataTypeStringSet:
		return &ddbtypes.AttributeValueMemberSS{Value: v.StringSet()}, nil
	case events.DataTypeNumberSet:
		return &ddbtypes.AttributeValueMemberNS{Value: v.NumberSet()}, nil
	case events.DataTypeBinarySet:
		return &ddbtypes.AttributeValueMemberBS{Value: v.BinarySet()}, nil
	case events.DataTypeList:
		list := v.List()
		out := make([]ddbtypes.AttributeValue, 0, len(list))
		for _, el := range list {
			av, err := toAttributeValue(el)
			if err != nil {
				return nil, err
			}
			out = append(out, av)
		}
		return &ddbtypes.AttributeValueMemberL{Value: out}, nil
	case events.DataTypeMap:
		m := v.Map()
		out := make(map[string]ddbtypes.AttributeValue, len(m))
		for k, el := range m {
			av, err := toAttributeValue(el)
			if err != nil {
				return nil, err
			}
			out[k] = av
		}
		return &ddbtypes.AttributeValueMemberM{Value: out}, nil
	default:
		return nil, fmt.Errorf("unsupported attribute type %d", v.DataType())
	}
}

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig(config.DefaultProvider())
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}

	redactor, err := sanitize.NewRedactorFromJSON(cfg.Redaction.LogRulesJSON, sanitize.DefaultLogRules)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: log redaction rules: %v\n", err)
		os.Exit(1)
	}
	logger := sanitize.NewLogger(os.Stdout, cfg.LogLevel, redactor)
	typedLogger := &slogAdapter{logger: logger}
	logger.Info("Execution Monitor initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	handler, err := buildHandler(ctx, cfg, typedLogger)
	if err != nil {
		logger.Error("Failed to initialize execution monitor", "error", err)
		os.Exit(1)
	}

	// Local mode reads one stream event from stdin.
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
	if cfg.AWS.NotificationQueue == "" {
		return nil, fmt.Errorf("SQS_NOTIFICATIONS is required")
	}

	clock := types.RealClock{}
	executions := store.NewExecutionRepository(
		dynamodb.NewFromConfig(awsCfg),
		cfg.Tables.Executions,
		cfg.Tables.SuiteExecutionIndex,
		cfg.Tables.TestCaseTimeIndex,
	)

	monitor := pipeline.NewMonitor(pipeline.MonitorConfig{
		Detector: detector.New(executions, detector.Thresholds{
			FailureRate:         cfg.Alerts.FailureRateThreshold,
			ConsecutiveFailures: cfg.Alerts.ConsecutiveFailures,
		}, clock, logger),
		Events:             tpevents.NewPublisher(eventbridge.NewFromConfig(awsCfg), cfg.Events, clock, logger),
		Queue:              core.NewNotificationPublisher(sqs.NewFromConfig(awsCfg), cfg.AWS.NotificationQueue, logger),
		Metrics:            core.NewCloudWatchNotificationMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger),
		Clock:              clock,
		Logger:             logger,
		NotifyOnCompletion: cfg.Alerts.NotifyOnCompletion,
	})

	return &Handler{monitor: monitor, logger: logger}, nil
}

func runLocal(ctx context.Context, handler *Handler, in io.Reader, logger *slog.Logger) error {
	payload, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	var streamEvent events.DynamoDBEvent
	if err := json.Unmarshal(payload, &streamEvent); err != nil {
		return fmt.Errorf("parse stdin as DynamoDB stream event: %w", err)
	}
	response, err := handler.Handle(ctx, streamEvent)
	if err != nil {
		return err
	}
	logger.Info("Handler execution completed",
		"records_processed", len(streamEvent.Records),
		"failures", len(response.BatchItemFailures),
	)
	return nil
}
