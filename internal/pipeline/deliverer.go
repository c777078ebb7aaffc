package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"golang.org/x/sync/errgroup"

	"testpulse/internal/events"
	"testpulse/internal/notifications/core"
	"testpulse/internal/notifications/dispatch"
	"testpulse/internal/notifications/webhook"
	"testpulse/internal/retry"
	"testpulse/internal/sanitize"
	"testpulse/internal/store"
	"testpulse/internal/templates"
	"testpulse/internal/types"
)

// RecipientLookup resolves a user's contact details.
type RecipientLookup interface {
	GetRecipient(ctx context.Context, userID string) (*types.Recipient, error)
}

// TemplateResolver returns the template for a pair, never nil.
type TemplateResolver interface {
	Resolve(ctx context.Context, eventType types.EventType, channel types.ChannelType) *types.NotificationTemplate
}

// Sender delivers a request on the routed channel.
type Sender interface {
	Send(ctx context.Context, req *types.NotificationRequest) types.DeliveryResult
}

// WebhookSender is the optional automation webhook.
type WebhookSender interface {
	IsEnabled() bool
	Deliver(ctx context.Context, ex *retry.Executor, cfg retry.Config, payload map[string]any) types.DeliveryResult
}

// HistoryWriter persists the audit record of a delivery.
type HistoryWriter interface {
	Record(ctx context.Context, h types.NotificationHistory) error
}

// OutcomePublisher records delivery outcomes on the event bus.
type OutcomePublisher interface {
	PublishNotificationOutcome(ctx context.Context, msg types.NotificationMessage, result types.DeliveryResult) string
}

// Requeuer schedules a delayed redelivery.
type Requeuer interface {
	Requeue(ctx context.Context, msg types.NotificationMessage, delay time.Duration) error
}

var (
	_ RecipientLookup  = (*store.RecipientRepository)(nil)
	_ TemplateResolver = (*templates.Service)(nil)
	_ Sender           = (*dispatch.Dispatcher)(nil)
	_ WebhookSender    = (*webhook.Integration)(nil)
	_ HistoryWriter    = (*store.HistoryRepository)(nil)
	_ OutcomePublisher = (*events.Publisher)(nil)
	_ Requeuer         = (*core.NotificationPublisher)(nil)
)

// DelivererConfig holds the Deliverer's collaborators. Webhook, History,
// Outcomes and Requeuer are optional.
type DelivererConfig struct {
	Recipients RecipientLookup
	Templates  TemplateResolver
	Renderer   *templates.Renderer
	Dispatcher Sender
	Webhook    WebhookSender
	History    HistoryWriter
	Outcomes   OutcomePublisher
	Requeuer   Requeuer

	Executor     *retry.Executor
	Retry        retry.Config
	MaxRequeues  int
	RequeueDelay time.Duration

	// Fingerprints, when set, tags log lines with a keyed hash of the contact.
	Fingerprints *sanitize.Fingerprinter
	Clock        types.Clock
	Logger       types.Logger
}

type Deliverer struct {
	cfg DelivererConfig
}

func NewDeliverer(cfg DelivererConfig) *Deliverer {
	if cfg.Logger == nil {
		cfg.Logger = types.NopLogger{}
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Renderer == nil {
		cfg.Renderer = templates.NewRenderer(cfg.Logger)
	}
	if cfg.Executor == nil {
		cfg.Executor = retry.NewExecutor(cfg.Logger)
	}
	return &Deliverer{cfg: cfg}
}

// ErrRequeuesExhausted is returned for a retryable failure that has used up
// its requeues. The worker reports the message as failed so the queue's
// redrive policy moves it to the DLQ.
var ErrRequeuesExhausted = errors.New("requeue budget exhausted")

// Process delivers one queued notification. The returned error means the
// message should be redelivered by SQS; delivery failures themselves are
// reported in the result, recorded, and requeued when retryable. A webhook
// that already succeeded is not posted again on a requeued message.
func (d *Deliverer) Process(ctx context.Context, msg types.NotificationMessage) (types.DeliveryResult, error) {
	logger := d.cfg.Logger.With(
		"notification_id", msg.NotificationID,
		"event_type", string(msg.Event.EventType),
		"retry_count", msg.RetryCount,
		"trace_id", msg.TraceID,
	)

	recipient, err := d.recipient(ctx, msg.UserID)
	if err != nil {
		return types.DeliveryResult{}, fmt.Errorf("resolve recipient %s: %w", msg.UserID, err)
	}

	if d.cfg.Fingerprints != nil {
		contact := recipient.Email
		if contact == "" {
			contact = recipient.PhoneNumber
		}
		logger = logger.With("recipient_fp", d.cfg.Fingerprints.Fingerprint(contact))
	}

	req := d.buildRequest(ctx, msg, recipient)

	var result, hookResult types.DeliveryResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result = d.cfg.Dispatcher.Send(gctx, req)
		return nil
	})
	if d.cfg.Webhook != nil && d.cfg.Webhook.IsEnabled() && !msg.WebhookDelivered {
		g.Go(func() error {
			hookResult = d.cfg.Webhook.Deliver(gctx, d.cfg.Executor, d.cfg.Retry, webhookPayload(msg, req))
			return nil
		})
	}
	_ = g.Wait()

	if hookResult.Channel != "" && !hookResult.Success {
		logger.Warn("webhook delivery failed", "error", hookResult.ErrorMessage, "status", hookResult.StatusCode)
	}
	if hookResult.Success {
		msg.WebhookDelivered = true
	}

	d.recordHistory(ctx, msg, req, result, logger)
	if d.cfg.Outcomes != nil {
		d.cfg.Outcomes.PublishNotificationOutcome(ctx, msg, result)
	}

	if !result.Success && result.Retryable {
		if err := d.requeue(ctx, msg, logger); err != nil {
			return result, err
		}
	}
	return result, nil
}

// recipient falls back to an in-app only recipient when the user record is missing.
func (d *Deliverer) recipient(ctx context.Context, userID string) (*types.Recipient, error) {
	r, err := d.cfg.Recipients.GetRecipient(ctx, userID)
	if err == nil {
		return r, nil
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundRecipient {
		return &types.Recipient{UserID: userID}, nil
	}
	return nil, err
}

func (d *Deliverer) buildRequest(ctx context.Context, msg types.NotificationMessage, r *types.Recipient) *types.NotificationRequest {
	req := &types.NotificationRequest{
		NotificationID: msg.NotificationID,
		UserID:         msg.UserID,
		Email:          r.Email,
		PhoneNumber:    r.PhoneNumber,
		EventType:      msg.Event.EventType,
		Data:           msg.Event.Payload,
	}

	vars := make(map[string]any, len(msg.Event.Payload)+3)
	maps.Copy(vars, msg.Event.Payload)
	vars["eventType"] = string(msg.Event.EventType)
	vars["eventId"] = msg.Event.EventID
	vars["timestamp"] = msg.Event.Timestamp

	channel := dispatch.Route(req)
	tmpl := d.cfg.Templates.Resolve(ctx, msg.Event.EventType, channel)
	req.Title = d.cfg.Renderer.RenderSubject(tmpl, vars)

	body := d.cfg.Renderer.Render(tmpl, vars)
	if tmpl.Format == types.FormatHTML {
		req.HTMLBody = body
		text := templates.Default(msg.Event.EventType, types.ChannelSMS)
		req.Message = d.cfg.Renderer.Render(text, vars)
	} else {
		req.Message = body
	}
	return req
}

// recordHistory is best-effort: a storage failure is logged, never returned.
func (d *Deliverer) recordHistory(ctx context.Context, msg types.NotificationMessage, req *types.NotificationRequest, result types.DeliveryResult, logger types.Logger) {
	if d.cfg.History == nil {
		return
	}
	body := req.Message
	if req.HTMLBody != "" {
		body = req.HTMLBody
	}
	h := types.NotificationHistory{
		NotificationID: msg.NotificationID,
		UserID:         msg.UserID,
		EventType:      msg.Event.EventType,
		Channel:        result.Channel,
		Success:        result.Success,
		MessageID:      result.MessageID,
		ErrorMessage:   result.ErrorMessage,
		Body:           store.CompressBody(body),
		SentAt:         d.cfg.Clock.Now(),
	}
	if err := d.cfg.History.Record(ctx, h); err != nil {
		logger.Error("failed to record notification history", "error", err.Error())
	}
}

func (d *Deliverer) requeue(ctx context.Context, msg types.NotificationMessage, logger types.Logger) error {
	if d.cfg.Requeuer == nil || msg.RetryCount >= d.cfg.MaxRequeues {
		logger.Error("notification requeue budget spent", "retry_count", msg.RetryCount)
		return fmt.Errorf("notification %s after %d requeues: %w", msg.NotificationID, msg.RetryCount, ErrRequeuesExhausted)
	}
	delay := retry.Delay(retry.Config{
		InitialDelay:      d.cfg.RequeueDelay,
		MaxDelay:          core.SQSMaxDelay,
		BackoffMultiplier: 2,
	}, msg.RetryCount)
	if err := d.cfg.Requeuer.Requeue(ctx, msg, delay); err != nil {
		return fmt.Errorf("requeue notification: %w", err)
	}
	logger.Info("notification requeued", "delay_seconds", int(delay.Seconds()))
	return nil
}

func webhookPayload(msg types.NotificationMessage, req *types.NotificationRequest) map[string]any {
	return map[string]any{
		"notificationId": msg.NotificationID,
		"eventId":        msg.Event.EventID,
		"eventType":      string(msg.Event.EventType),
		"timestamp":      msg.Event.Timestamp,
		"userId":         msg.UserID,
		"projectId":      msg.ProjectID,
		"title":          req.Title,
		"message":        req.Message,
		"data":           msg.Event.Payload,
	}
}
