// Package external provides the anti-corruption layer between testpulse
// domain logic and vendor APIs (SES, SNS, Secrets Manager, outbound HTTP).
// Provider errors are mapped to types.AppError at this boundary.
package external

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"testpulse/internal/types"
)

// errUpstreamStatus marks a response the breaker should count as a failure
// while still handing it back to the caller.
var errUpstreamStatus = errors.New("upstream returned failure status")

// BreakerSettings tunes the circuit breaker guarding an HTTP destination.
type BreakerSettings struct {
	Name string
	// Trip after more than this many consecutive failures.
	ConsecutiveFailures uint32
	// How long the breaker stays open before allowing a probe.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings mirrors the settings used for every upstream.
func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:                name,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// BreakerClient wraps an HTTP client with a circuit breaker, trace ID
// propagation and a fixed User-Agent. It does not retry: callers own the
// single retry layer. Every response, including 5xx, is returned to the
// caller so the body can be inspected; 429 and 5xx count against the breaker.
type BreakerClient struct {
	client    HTTPDoer
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	userAgent string
}

func NewBreakerClient(client HTTPDoer, settings BreakerSettings, userAgent string) *BreakerClient {
	threshold := settings.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &BreakerClient{client: client, breaker: cb, userAgent: userAgent}
}

// State exposes the breaker state for health reporting.
func (c *BreakerClient) State() gobreaker.State {
	return c.breaker.State()
}

// Do executes req through the breaker. When the breaker is open the request
// is not sent and an ErrCodeUpstreamUnavailable AppError is returned.
func (c *BreakerClient) Do(req *http.Request) (*http.Response, error) {
	if traceID := types.GetRequestID(req.Context()); traceID != "" {
		req.Header.Set("X-B3-TraceId", traceID)
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			return r, fmt.Errorf("%w: %d", errUpstreamStatus, r.StatusCode)
		}
		return r, nil
	})

	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, errUpstreamStatus):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable,
			"circuit breaker is open; upstream service unavailable", err)
	default:
		return nil, err
	}
}

var _ HTTPDoer = (*BreakerClient)(nil)
