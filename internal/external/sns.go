package external

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"testpulse/internal/types"
)

// SNSAPI defines the subset of the SNS client used by SNSClient.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSClientConfig holds the configuration for creating an SNSClient.
type SNSClientConfig struct {
	// SenderID is shown as the SMS sender where carriers support it.
	SenderID string
	Logger   types.Logger
}

// SNSClient implements SMSProvider by publishing directly to a phone number.
// Messages are sent as Transactional so they are not dropped for cost.
type SNSClient struct {
	api      SNSAPI
	senderID string
	logger   types.Logger
}

func NewSNSClient(awsCfg aws.Config, cfg SNSClientConfig) *SNSClient {
	api := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		o.RetryMaxAttempts = 1
	})
	return NewSNSClientWithAPI(api, cfg)
}

func NewSNSClientWithAPI(api SNSAPI, cfg SNSClientConfig) *SNSClient {
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &SNSClient{api: api, senderID: cfg.SenderID, logger: logger}
}

// Send publishes one SMS.
//
// Error mapping:
//   - OptedOutException → ErrCodeSMSBlocked
//   - InvalidParameter* → ErrCodeValidationInvalidPhone
//   - ThrottledException → ErrCodeUpstreamRateLimited
//   - Other → ErrCodeUpstreamSMSProvider
func (s *SNSClient) Send(ctx context.Context, input SMSInput) (string, error) {
	attrs := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.senderID),
		}
	}

	out, err := s.api.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(input.PhoneNumber),
		Message:           aws.String(input.Message),
		MessageAttributes: attrs,
	})
	if err != nil {
		return "", mapSNSError(err)
	}
	return aws.ToString(out.MessageId), nil
}

func mapSNSError(err error) error {
	var optedOut *snstypes.OptedOutException
	if errors.As(err, &optedOut) {
		return types.NewAppError(types.ErrCodeSMSBlocked,
			fmt.Sprintf("recipient opted out of SMS: %v", err), err)
	}

	var invalidParam *snstypes.InvalidParameterException
	var invalidValue *snstypes.InvalidParameterValueException
	if errors.As(err, &invalidParam) || errors.As(err, &invalidValue) {
		return types.NewAppError(types.ErrCodeValidationInvalidPhone,
			fmt.Sprintf("SNS rejected phone number: %v", err), err)
	}

	var throttled *snstypes.ThrottledException
	if errors.As(err, &throttled) {
		return types.NewAppError(types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("SNS rate limit exceeded: %v", err), err)
	}

	return types.NewAppError(types.ErrCodeUpstreamSMSProvider,
		fmt.Sprintf("SNS error: %v", err), err)
}

var _ SMSProvider = (*SNSClient)(nil)
