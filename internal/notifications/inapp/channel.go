// Package inapp is the fallback channel for recipients with no email or phone.
// Delivery is a structured log line that the in-app feed ingests.
package inapp

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"testpulse/internal/notifications/core"
	"testpulse/internal/types"
)

// MessageIDPrefix marks synthetic in-app message IDs.
const MessageIDPrefix = "inapp-"

type InAppChannel struct {
	logger types.Logger
}

func NewInAppChannel(logger types.Logger) *InAppChannel {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &InAppChannel{logger: logger}
}

func (c *InAppChannel) Type() types.ChannelType {
	return types.ChannelInApp
}

// Send always succeeds.
func (c *InAppChannel) Send(_ context.Context, req *types.NotificationRequest) (string, error) {
	if req == nil {
		return "", fmt.Errorf("in-app channel: request is nil")
	}
	msgID := MessageIDPrefix + uuid.NewString()
	c.logger.Info("in-app notification recorded",
		"notification_id", req.NotificationID,
		"user_id", req.UserID,
		"event_type", string(req.EventType),
		"title", req.Title,
		"message_id", msgID,
	)
	return msgID, nil
}

var _ core.Channel = (*InAppChannel)(nil)
