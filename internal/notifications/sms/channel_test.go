package sms

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testpulse/internal/external"
	"testpulse/internal/retry"
	"testpulse/internal/types"
)

type mockSMSProvider struct {
	calls []external.SMSInput
	err   error
}

func (m *mockSMSProvider) Send(_ context.Context, input external.SMSInput) (string, error) {
	m.calls = append(m.calls, input)
	if m.err != nil {
		return "", m.err
	}
	return "sns-1", nil
}

func TestFormatMessage(t *testing.T) {
	assert.Equal(t, "Critical alert: suite failing", FormatMessage("Critical alert", "suite failing"))
	assert.Equal(t, "suite failing", FormatMessage("", "suite failing"))
}

func TestSMSChannel_Send(t *testing.T) {
	provider := &mockSMSProvider{}
	ch := NewSMSChannel(provider, nil)

	msgID, err := ch.Send(context.Background(), &types.NotificationRequest{
		NotificationID: "notif-1",
		PhoneNumber:    "+15551234567",
		Title:          "Test failed",
		Message:        "tc1 failed",
	})
	require.NoError(t, err)
	assert.Equal(t, "sns-1", msgID)
	assert.Equal(t, types.ChannelSMS, ch.Type())

	require.Len(t, provider.calls, 1)
	assert.Equal(t, external.SMSInput{
		PhoneNumber: "+15551234567",
		Message:     "Test failed: tc1 failed",
		ReferenceID: "notif-1",
	}, provider.calls[0])
}

func TestSMSChannel_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"opted out", types.NewAppError(types.ErrCodeSMSBlocked, "opted out", nil), true},
		{"bad number", types.NewAppError(types.ErrCodeValidationInvalidPhone, "invalid", nil), true},
		{"throttled", types.NewAppError(types.ErrCodeUpstreamRateLimited, "throttled", nil), false},
		{"network", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := NewSMSChannel(&mockSMSProvider{err: tt.err}, nil)
			_, err := ch.Send(context.Background(), &types.NotificationRequest{PhoneNumber: "+15551234567", Message: "m"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.permanent, retry.IsPermanent(err))
		})
	}
}
