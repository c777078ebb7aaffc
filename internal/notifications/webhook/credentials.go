package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"testpulse/internal/external"
)

// Credentials are the optional auth headers sent with each request. The
// Secrets Manager secret uses the same JSON shape.
type Credentials struct {
	APIKey      string `json:"apiKey"`
	BearerToken string `json:"bearerToken"`
}

// credentialCell fetches the secret on first use and keeps it for the process
// lifetime. Concurrent first calls may each fetch; the last store wins.
type credentialCell struct {
	fetcher  external.SecretFetcher
	secretID string
	value    atomic.Pointer[Credentials]
}

func (c *credentialCell) get(ctx context.Context) (Credentials, error) {
	if v := c.value.Load(); v != nil {
		return *v, nil
	}
	raw, err := c.fetcher.GetSecretString(ctx, c.secretID)
	if err != nil {
		return Credentials{}, fmt.Errorf("webhook credentials: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return Credentials{}, fmt.Errorf("webhook credentials: secret is not valid JSON: %w", err)
	}
	c.value.Store(&creds)
	return creds, nil
}
