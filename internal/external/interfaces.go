package external

import (
	"context"
	"net/http"
)

// ---------------------------------------------------------------------------
// Email Integration (AWS SES)
// ---------------------------------------------------------------------------

// SenderIdentity is the From header of outgoing email.
type SenderIdentity struct {
	Address string
	Name    string
}

// EmailInput carries pre-rendered email content. At least one of BodyHTML
// and BodyText must be set.
type EmailInput struct {
	From        SenderIdentity
	To          string
	Subject     string
	BodyHTML    string
	BodyText    string
	ReferenceID string
}

// EmailProvider transmits email and returns the provider's message ID.
type EmailProvider interface {
	Send(ctx context.Context, input EmailInput) (providerMsgID string, err error)
}

// ---------------------------------------------------------------------------
// SMS Integration (AWS SNS)
// ---------------------------------------------------------------------------

// SMSInput is a single direct-to-phone SMS. PhoneNumber is E.164.
type SMSInput struct {
	PhoneNumber string
	Message     string
	ReferenceID string
}

// SMSProvider transmits SMS and returns the provider's message ID.
type SMSProvider interface {
	Send(ctx context.Context, input SMSInput) (providerMsgID string, err error)
}

// ---------------------------------------------------------------------------
// Secrets (AWS Secrets Manager)
// ---------------------------------------------------------------------------

// SecretFetcher reads a secret's string value by ID or ARN.
type SecretFetcher interface {
	GetSecretString(ctx context.Context, secretID string) (string, error)
}

// ---------------------------------------------------------------------------
// Outbound HTTP
// ---------------------------------------------------------------------------

// HTTPDoer is satisfied by *http.Client and BreakerClient.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
