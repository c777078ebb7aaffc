// Package core provides the shared notification infrastructure used by the
// delivery channels and the worker: the channel contract, the SQS publisher
// and CloudWatch delivery metrics.
package core

import (
	"context"
	"time"

	"testpulse/internal/types"
)

// Channel delivers one rendered notification request. Implementations return
// the provider message ID on success. Errors are returned as-is so the caller
// can classify them for retry.
type Channel interface {
	Type() types.ChannelType
	Send(ctx context.Context, req *types.NotificationRequest) (messageID string, err error)
}

// MetricResult categorizes a delivery outcome for metrics reporting.
type MetricResult string

const (
	MetricSuccess MetricResult = "success"
	MetricFailed  MetricResult = "failed"
)

// Metric names and dimensions published under the configured namespace.
const (
	DefaultMetricNamespace = "TestPulse"

	MetricDeliveryAttempt = "DeliveryAttempt"
	MetricDeliveryLatency = "DeliveryLatency"
	MetricCriticalAlert   = "CriticalAlert"
	MetricQueueLag        = "NotificationQueueLag"

	DimChannel   = "Channel"
	DimResult    = "Result"
	DimAlertType = "AlertType"
)

// NotificationMetrics abstracts CloudWatch operations for the notification
// pipeline. Implementations never fail the caller.
type NotificationMetrics interface {
	RecordDelivery(ctx context.Context, channel types.ChannelType, result MetricResult)
	RecordLatency(ctx context.Context, channel types.ChannelType, duration time.Duration)
	RecordAlert(ctx context.Context, alertType types.AlertType)
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// NopMetrics discards all metrics.
type NopMetrics struct{}

func (NopMetrics) RecordDelivery(context.Context, types.ChannelType, MetricResult) {}
func (NopMetrics) RecordLatency(context.Context, types.ChannelType, time.Duration) {}
func (NopMetrics) RecordAlert(context.Context, types.AlertType)                    {}
func (NopMetrics) RecordQueueLag(context.Context, time.Duration)                   {}

var _ NotificationMetrics = NopMetrics{}
