// Package retry runs operations with exponential backoff. Every external send
// in the pipeline goes through exactly one retry layer from this package.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"testpulse/internal/types"
)

// Config is the per-call backoff policy.
type Config struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64

	// RetryableErrors is matched case-insensitively against the error message
	// and the type names in its chain. Only RetryWithBackoff consults it.
	RetryableErrors []string
}

// DefaultConfig mirrors the configuration defaults.
var DefaultConfig = Config{
	MaxRetries:        3,
	InitialDelay:      time.Second,
	MaxDelay:          30 * time.Second,
	BackoffMultiplier: 2,
	RetryableErrors:   []string{"timeout", "ECONNRESET", "ETIMEDOUT", "network", "throttl", "connection reset"},
}

// Result is the terminal outcome of Execute.
type Result[T any] struct {
	Success  bool
	Value    T
	Err      error
	Attempts int
}

// PermanentError marks a failure no retry can fix, such as a rejected
// recipient. Execute and RetryWithBackoff stop on it immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so retries stop. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Operation is a unit of work that may be attempted more than once.
type Operation[T any] func(ctx context.Context) (T, error)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Executor carries the logger and the wait primitive shared by all calls.
type Executor struct {
	logger types.Logger
	sleep  SleepFunc
}

func NewExecutor(logger types.Logger) *Executor {
	return NewExecutorWithSleep(logger, sleepContext)
}

// NewExecutorWithSleep replaces the timer wait; tests use it to record delays.
func NewExecutorWithSleep(logger types.Logger, sleep SleepFunc) *Executor {
	if logger == nil {
		logger = types.NopLogger{}
	}
	if sleep == nil {
		sleep = sleepContext
	}
	return &Executor{logger: logger, sleep: sleep}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Delay returns the wait after failed attempt n (0-indexed):
// min(InitialDelay * BackoffMultiplier^n, MaxDelay).
func Delay(cfg Config, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempt))
	if cfg.MaxDelay > 0 && (d > float64(cfg.MaxDelay) || math.IsInf(d, 0) || math.IsNaN(d)) {
		return cfg.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func totalAttempts(cfg Config) int {
	if cfg.MaxRetries < 0 {
		return 1
	}
	return cfg.MaxRetries + 1
}

// Execute runs op up to MaxRetries+1 times and reports the outcome as a
// Result. Only a PermanentError ends it early; use RetryWithBackoff for
// pattern-classified retries.
func Execute[T any](ctx context.Context, ex *Executor, op Operation[T], cfg Config) Result[T] {
	total := totalAttempts(cfg)
	var lastErr error

	for attempt := 0; attempt < total; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return Result[T]{Success: true, Value: value, Attempts: attempt + 1}
		}
		lastErr = err

		if IsPermanent(err) {
			ex.logger.Warn("Permanent failure, not retrying", "attempt", attempt+1, "error", err)
			return Result[T]{Err: err, Attempts: attempt + 1}
		}
		if attempt == total-1 {
			break
		}

		delay := Delay(cfg, attempt)
		ex.logger.Warn("Attempt failed, retrying",
			"attempt", attempt+1,
			"max_attempts", total,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		if sleepErr := ex.sleep(ctx, delay); sleepErr != nil {
			return Result[T]{Err: errors.Join(sleepErr, lastErr), Attempts: attempt + 1}
		}
	}

	ex.logger.Error("All attempts failed", "attempts", total, "error", lastErr)
	return Result[T]{Err: lastErr, Attempts: total}
}

// RetryWithBackoff retries only errors matching cfg.RetryableErrors and
// returns the last error once the budget is spent. A non-retryable error is
// returned immediately.
func RetryWithBackoff[T any](ctx context.Context, ex *Executor, op Operation[T], cfg Config) (T, error) {
	total := totalAttempts(cfg)
	var zero T
	var lastErr error

	for attempt := 0; attempt < total; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if !IsRetryable(err, cfg.RetryableErrors) {
			ex.logger.Warn("Non-retryable error, giving up", "attempt", attempt+1, "error", err)
			return zero, err
		}
		if attempt == total-1 {
			break
		}

		delay := Delay(cfg, attempt)
		ex.logger.Warn("Retryable error, backing off",
			"attempt", attempt+1,
			"max_attempts", total,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		if sleepErr := ex.sleep(ctx, delay); sleepErr != nil {
			return zero, errors.Join(sleepErr, lastErr)
		}
	}

	return zero, fmt.Errorf("giving up after %d attempts: %w", total, lastErr)
}

// IsRetryable matches err against patterns. An empty pattern list treats
// every error as retryable; context cancellation never is.
func IsRetryable(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || IsPermanent(err) {
		return false
	}
	if len(patterns) == 0 {
		return true
	}

	msg := strings.ToLower(err.Error())
	var names []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		names = append(names, strings.ToLower(fmt.Sprintf("%T", e)))
	}

	for _, p := range patterns {
		p = strings.ToLower(p)
		if p == "" {
			continue
		}
		if strings.Contains(msg, p) {
			return true
		}
		for _, n := range names {
			if strings.Contains(n, p) {
				return true
			}
		}
	}
	return false
}

// MakeRetryable wraps op so every call goes through RetryWithBackoff with cfg.
func MakeRetryable[T any](ex *Executor, op Operation[T], cfg Config) Operation[T] {
	return func(ctx context.Context) (T, error) {
		return RetryWithBackoff(ctx, ex, op, cfg)
	}
}

// MakeRetryableFunc is MakeRetryable for single-argument functions.
func MakeRetryableFunc[A, T any](ex *Executor, fn func(context.Context, A) (T, error), cfg Config) func(context.Context, A) (T, error) {
	return func(ctx context.Context, arg A) (T, error) {
		return RetryWithBackoff(ctx, ex, func(ctx context.Context) (T, error) {
			return fn(ctx, arg)
		}, cfg)
	}
}
