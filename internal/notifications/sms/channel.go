// Package sms delivers notifications as text messages through AWS SNS.
package sms

import (
	"context"
	"errors"
	"fmt"

	"testpulse/internal/external"
	"testpulse/internal/notifications/core"
	"testpulse/internal/retry"
	"testpulse/internal/sanitize"
	"testpulse/internal/types"
)

// SMSChannel publishes directly to a phone number.
type SMSChannel struct {
	provider external.SMSProvider
	logger   types.Logger
}

func NewSMSChannel(provider external.SMSProvider, logger types.Logger) *SMSChannel {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &SMSChannel{provider: provider, logger: logger}
}

func (s *SMSChannel) Type() types.ChannelType {
	return types.ChannelSMS
}

// Send publishes "title: message", or the bare message when there is no
// title. Opted-out numbers and rejected phone formats are permanent failures.
func (s *SMSChannel) Send(ctx context.Context, req *types.NotificationRequest) (string, error) {
	if req == nil {
		return "", fmt.Errorf("sms channel: request is nil")
	}

	msgID, err := s.provider.Send(ctx, external.SMSInput{
		PhoneNumber: req.PhoneNumber,
		Message:     FormatMessage(req.Title, req.Message),
		ReferenceID: req.NotificationID,
	})
	if err != nil {
		if isPermanent(err) {
			s.logger.Warn("sms rejected by provider",
				"dest", sanitize.RedactPhone(req.PhoneNumber),
				"notification_id", req.NotificationID,
				"error", err.Error(),
			)
			return "", retry.Permanent(err)
		}
		return "", err
	}

	s.logger.Info("sms sent",
		"dest", sanitize.RedactPhone(req.PhoneNumber),
		"notification_id", req.NotificationID,
		"message_id", msgID,
	)
	return msgID, nil
}

// FormatMessage builds the SMS text.
func FormatMessage(title, message string) string {
	if title == "" {
		return message
	}
	return title + ": " + message
}

func isPermanent(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == types.ErrCodeSMSBlocked || appErr.Code == types.ErrCodeValidationInvalidPhone
}

var _ core.Channel = (*SMSChannel)(nil)
