// Package webhook posts notification payloads to a single configured
// automation endpoint (Zapier, n8n, an internal service) with optional
// API-key or bearer authentication.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	"testpulse/internal/config"
	"testpulse/internal/external"
	"testpulse/internal/retry"
	"testpulse/internal/security"
	"testpulse/internal/types"
)

const (
	// DefaultTimeout bounds a single webhook request.
	DefaultTimeout = 10 * time.Second

	// maxResponseBodyRead limits how much of a response body is kept for diagnostics.
	maxResponseBodyRead = 4096
)

// Integration sends payloads to the configured webhook. The zero timeout in
// config is replaced by DefaultTimeout.
type Integration struct {
	cfg    config.WebhookConfig
	client external.HTTPDoer
	creds  *credentialCell
	clock  types.Clock
	logger types.Logger
}

// New builds the production integration: an SSRF-guarded client behind a
// circuit breaker. secrets may be nil when no AuthSecretID is configured.
func New(cfg config.WebhookConfig, secrets external.SecretFetcher, logger types.Logger) (*Integration, error) {
	safe, err := security.NewSafeHTTPClient(cfg.MaxRedirects)
	if err != nil {
		return nil, fmt.Errorf("webhook integration: failed to create safe HTTP client: %w", err)
	}
	breaker := external.NewBreakerClient(safe, external.DefaultBreakerSettings("webhook"), cfg.UserAgent)
	return NewWithClient(cfg, breaker, secrets, logger), nil
}

// NewWithClient takes a caller-supplied HTTP client; tests pass an httptest client.
func NewWithClient(cfg config.WebhookConfig, client external.HTTPDoer, secrets external.SecretFetcher, logger types.Logger) *Integration {
	if logger == nil {
		logger = types.NopLogger{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	i := &Integration{
		cfg:    cfg,
		client: client,
		clock:  types.RealClock{},
		logger: logger,
	}
	if secrets != nil && cfg.AuthSecretID != "" {
		i.creds = &credentialCell{fetcher: secrets, secretID: cfg.AuthSecretID}
	}
	return i
}

// SetClock overrides the clock for testing.
func (i *Integration) SetClock(c types.Clock) {
	i.clock = c
}

// IsEnabled reports whether the enable flag is set and a URL is configured.
func (i *Integration) IsEnabled() bool {
	return i.cfg.Enabled && strings.TrimSpace(i.cfg.URL) != ""
}

// ValidateConfiguration checks that the URL parses with an http or https
// scheme and a host.
func (i *Integration) ValidateConfiguration() error {
	raw := strings.TrimSpace(i.cfg.URL)
	if raw == "" {
		return types.NewAppError(types.ErrCodeConfigWebhookMissing, "webhook URL is not configured", nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return types.NewAppError(types.ErrCodeConfigWebhookInvalid, "webhook URL does not parse", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return types.NewAppErrorWithDetails(types.ErrCodeConfigWebhookInvalid,
			"webhook URL must use http or https", nil,
			map[string]any{"scheme": u.Scheme})
	}
	if u.Host == "" {
		return types.NewAppError(types.ErrCodeConfigWebhookInvalid, "webhook URL has no host", nil)
	}
	return nil
}

// SendToWebhook makes one POST attempt and reports the outcome. It never
// returns an error; configuration problems, timeouts and non-2xx responses
// all come back as a failed DeliveryResult.
func (i *Integration) SendToWebhook(ctx context.Context, payload map[string]any) types.DeliveryResult {
	res, _ := i.send(ctx, payload)
	return res
}

// Deliver is SendToWebhook under the retry layer. Only network errors, 429
// and 5xx responses are retried.
func (i *Integration) Deliver(ctx context.Context, ex *retry.Executor, cfg retry.Config, payload map[string]any) types.DeliveryResult {
	start := i.clock.Now()
	var last types.DeliveryResult

	res := retry.Execute(ctx, ex, func(ctx context.Context) (types.DeliveryResult, error) {
		r, transient := i.send(ctx, payload)
		last = r
		if r.Success {
			return r, nil
		}
		err := errors.New(r.ErrorMessage)
		if !transient {
			err = retry.Permanent(err)
		}
		return r, err
	}, cfg)

	if res.Success {
		last = res.Value
	} else {
		last.Retryable = !retry.IsPermanent(res.Err)
	}
	last.Attempts = res.Attempts
	last.Duration = i.clock.Now().Sub(start)
	return last
}

// send performs one attempt. The bool reports whether a failure is worth retrying.
func (i *Integration) send(ctx context.Context, payload map[string]any) (types.DeliveryResult, bool) {
	start := i.clock.Now()
	result := types.DeliveryResult{Channel: types.ChannelWebhook}
	fail := func(msg string, transient bool) (types.DeliveryResult, bool) {
		result.ErrorMessage = msg
		result.Duration = i.clock.Now().Sub(start)
		return result, transient
	}

	if err := i.ValidateConfiguration(); err != nil {
		return fail(err.Error(), false)
	}

	body, err := json.Marshal(i.enrich(payload))
	if err != nil {
		return fail(fmt.Sprintf("failed to marshal webhook payload: %v", err), false)
	}

	creds, err := i.credentials(ctx)
	if err != nil {
		i.logger.Error("webhook credentials unavailable", "error", err.Error())
		return fail(err.Error(), false)
	}

	// A caller deadline shorter than the configured timeout is the real budget.
	budget := i.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		budget = min(budget, time.Until(deadline))
	}
	reqCtx, cancel := context.WithTimeout(ctx, i.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, strings.TrimSpace(i.cfg.URL), bytes.NewReader(body))
	if err != nil {
		return fail(fmt.Sprintf("failed to create webhook request: %v", err), false)
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case creds.APIKey != "":
		req.Header.Set("X-API-Key", creds.APIKey)
	case creds.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+creds.BearerToken)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			msg := fmt.Sprintf("webhook request timed out after %dms", budget.Milliseconds())
			i.logger.Warn("webhook timeout", "host", req.URL.Host, "timeout_ms", budget.Milliseconds())
			return fail(msg, false)
		}
		i.logger.Warn("webhook network error", "host", req.URL.Host, "error", err.Error())
		return fail(fmt.Sprintf("webhook request failed: %v", err), !isPermanentNetworkError(err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))
	result.StatusCode = resp.StatusCode
	result.ResponseBody = string(respBody)
	result.Duration = i.clock.Now().Sub(start)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Success = true
		i.logger.Info("webhook delivered",
			"host", req.URL.Host,
			"status", resp.StatusCode,
			"duration_ms", result.Duration.Milliseconds(),
		)
		return result, false
	}

	i.logger.Warn("webhook returned non-2xx status",
		"host", req.URL.Host,
		"status", resp.StatusCode,
		"body", truncate(result.ResponseBody, 256),
	)
	result.ErrorMessage = fmt.Sprintf("webhook returned status %d", resp.StatusCode)
	transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return result, transient
}

// enrich returns a copy of payload with source and version metadata.
func (i *Integration) enrich(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload)+2)
	maps.Copy(out, payload)
	out["source"] = i.cfg.Source
	out["version"] = i.cfg.Version
	return out
}

// credentials prefers directly configured values over the Secrets Manager secret.
func (i *Integration) credentials(ctx context.Context) (Credentials, error) {
	direct := Credentials{APIKey: i.cfg.APIKey.Unmask(), BearerToken: i.cfg.BearerToken.Unmask()}
	if direct.APIKey != "" || direct.BearerToken != "" || i.creds == nil {
		return direct, nil
	}
	return i.creds.get(ctx)
}

// isPermanentNetworkError reports SSRF rejections and an open circuit breaker.
func isPermanentNetworkError(err error) bool {
	if errors.Is(err, security.ErrSSRFBlocked) ||
		errors.Is(err, security.ErrSSRFTooManyRedirects) {
		return true
	}
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeUpstreamUnavailable
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
