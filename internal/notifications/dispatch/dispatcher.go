// Package dispatch chooses a delivery channel for each notification request,
// validates the contact data, and sends through the retry layer.
package dispatch

import (
	"context"
	"fmt"

	"testpulse/internal/notifications/core"
	"testpulse/internal/retry"
	"testpulse/internal/sanitize"
	"testpulse/internal/types"
)

// Channels are the delivery backends. A nil channel is treated as disabled.
type Channels struct {
	Email core.Channel
	SMS   core.Channel
	InApp core.Channel
}

// Dispatcher routes a request to exactly one channel:
// email when an address is set, else SMS when a phone number is set,
// else in-app.
type Dispatcher struct {
	channels Channels
	executor *retry.Executor
	retryCfg retry.Config
	redactor *sanitize.Redactor
	metrics  core.NotificationMetrics
	clock    types.Clock
	logger   types.Logger
}

// Config holds the optional collaborators of a Dispatcher.
type Config struct {
	Retry    retry.Config
	Executor *retry.Executor
	Redactor *sanitize.Redactor
	Metrics  core.NotificationMetrics
	Clock    types.Clock
	Logger   types.Logger
}

func New(channels Channels, cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	executor := cfg.Executor
	if executor == nil {
		executor = retry.NewExecutor(logger)
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = core.NopMetrics{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Dispatcher{
		channels: channels,
		executor: executor,
		retryCfg: cfg.Retry,
		redactor: cfg.Redactor,
		metrics:  metrics,
		clock:    clock,
		logger:   logger,
	}
}

// Route returns the channel a request would be delivered on.
func Route(req *types.NotificationRequest) types.ChannelType {
	switch {
	case req.Email != "":
		return types.ChannelEmail
	case req.PhoneNumber != "":
		return types.ChannelSMS
	default:
		return types.ChannelInApp
	}
}

// Send delivers req and never returns an error: every failure is reported in
// the DeliveryResult. Invalid contact data fails without any send attempt.
func (d *Dispatcher) Send(ctx context.Context, req *types.NotificationRequest) types.DeliveryResult {
	start := d.clock.Now()
	channelType := Route(req)
	result := types.DeliveryResult{Channel: channelType}

	finish := func() types.DeliveryResult {
		result.Duration = d.clock.Now().Sub(start)
		outcome := core.MetricSuccess
		if !result.Success {
			outcome = core.MetricFailed
		}
		d.metrics.RecordDelivery(ctx, channelType, outcome)
		d.metrics.RecordLatency(ctx, channelType, result.Duration)
		return result
	}

	out, err := d.prepare(req, channelType)
	if err != nil {
		d.logger.Warn("invalid contact data, not sending",
			"notification_id", req.NotificationID,
			"channel", string(channelType),
			"error", err.Error(),
		)
		result.ErrorMessage = err.Error()
		return finish()
	}

	channel := d.channel(channelType)
	if channel == nil {
		result.ErrorMessage = fmt.Sprintf("%s channel is not configured", channelType)
		return finish()
	}

	res := retry.Execute(ctx, d.executor, func(ctx context.Context) (string, error) {
		return channel.Send(ctx, out)
	}, d.retryCfg)

	result.Attempts = res.Attempts
	if !res.Success {
		result.ErrorMessage = res.Err.Error()
		result.Retryable = !retry.IsPermanent(res.Err) && ctx.Err() == nil
		d.logger.Error("notification delivery failed",
			"notification_id", req.NotificationID,
			"channel", string(channelType),
			"attempts", res.Attempts,
			"error", res.Err.Error(),
		)
		return finish()
	}

	result.Success = true
	result.MessageID = res.Value
	d.logger.Info("notification delivered",
		"notification_id", req.NotificationID,
		"channel", string(channelType),
		"message_id", res.Value,
		"attempts", res.Attempts,
	)
	return finish()
}

// prepare validates the contact field for the channel and returns a copy of
// req with the normalized contact and redacted content.
func (d *Dispatcher) prepare(req *types.NotificationRequest, channelType types.ChannelType) (*types.NotificationRequest, error) {
	out := *req
	switch channelType {
	case types.ChannelEmail:
		addr, err := sanitize.ValidateEmail(req.Email)
		if err != nil {
			return nil, err
		}
		out.Email = addr
	case types.ChannelSMS:
		phone, err := sanitize.NormalizePhone(req.PhoneNumber)
		if err != nil {
			return nil, err
		}
		out.PhoneNumber = phone
	}

	if d.redactor != nil {
		out.Title = d.redactor.RedactString(out.Title)
		out.Message = d.redactor.RedactString(out.Message)
		out.HTMLBody = d.redactor.RedactString(out.HTMLBody)
		out.Data = d.redactor.RedactMap(out.Data)
	}
	return &out, nil
}

func (d *Dispatcher) channel(t types.ChannelType) core.Channel {
	switch t {
	case types.ChannelEmail:
		return d.channels.Email
	case types.ChannelSMS:
		return d.channels.SMS
	default:
		return d.channels.InApp
	}
}
