package email

import (
	"context"
	"fmt"

	"testpulse/internal/external"
	"testpulse/internal/notifications/core"
	"testpulse/internal/sanitize"
	"testpulse/internal/types"
)

// EmailChannel sends rendered notifications through an EmailProvider (SES).
type EmailChannel struct {
	provider external.EmailProvider
	renderer *Renderer
	sender   external.SenderIdentity
	logger   types.Logger
}

// EmailChannelConfig holds the dependencies needed to create an EmailChannel.
type EmailChannelConfig struct {
	Provider external.EmailProvider
	Renderer *Renderer
	Sender   external.SenderIdentity
	Logger   types.Logger
}

func NewEmailChannel(cfg EmailChannelConfig) *EmailChannel {
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &EmailChannel{
		provider: cfg.Provider,
		renderer: cfg.Renderer,
		sender:   cfg.Sender,
		logger:   logger,
	}
}

func (e *EmailChannel) Type() types.ChannelType {
	return types.ChannelEmail
}

// Send composes and transmits one email. Blocklist rejections come back
// marked permanent; every other provider error is returned for retry.
func (e *EmailChannel) Send(ctx context.Context, req *types.NotificationRequest) (string, error) {
	if req == nil {
		return "", fmt.Errorf("email channel: request is nil")
	}
	rendered, err := e.renderer.Render(req)
	if err != nil {
		return "", err
	}

	msgID, err := e.provider.Send(ctx, external.EmailInput{
		From:        e.sender,
		To:          req.Email,
		Subject:     rendered.Subject,
		BodyHTML:    rendered.BodyHTML,
		BodyText:    rendered.BodyText,
		ReferenceID: req.NotificationID,
	})
	if err != nil {
		if IsBlocklistError(err) {
			e.logger.Warn("recipient blocked by provider",
				"dest", sanitize.RedactEmail(req.Email),
				"notification_id", req.NotificationID,
			)
		}
		return "", classify(err)
	}

	e.logger.Info("email sent",
		"dest", sanitize.RedactEmail(req.Email),
		"notification_id", req.NotificationID,
		"message_id", msgID,
	)
	return msgID, nil
}

var _ core.Channel = (*EmailChannel)(nil)
