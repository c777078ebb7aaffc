package config

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSecretProvider struct {
	values     map[string]string
	err        error
	calledWith []string
}

func (p *testSecretProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	p.calledWith = append(p.calledWith, keys...)
	if p.err != nil {
		return nil, p.err
	}
	result := make(map[string]string)
	for _, k := range keys {
		if v, ok := p.values[k]; ok {
			result[k] = v
		}
	}
	return result, nil
}

func setLocalEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "local")
	t.Setenv("SQS_NOTIFICATIONS", "https://sqs.us-east-1.amazonaws.com/123/notifications")
}

func TestLoadConfigLocalDefaults(t *testing.T) {
	setLocalEnv(t)

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "testpulse", cfg.Service)
	assert.Equal(t, "8080", cfg.Server.Port)

	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 2.0, cfg.Retry.BackoffMultiplier)
	assert.Contains(t, cfg.Retry.RetryableErrors, "ECONNRESET")

	assert.Equal(t, 50.0, cfg.Alerts.FailureRateThreshold)
	assert.Equal(t, 3, cfg.Alerts.ConsecutiveFailures)

	assert.False(t, cfg.Webhook.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout)

	assert.Equal(t, "SuiteExecutionIndex", cfg.Tables.SuiteExecutionIndex)
	assert.Equal(t, "TestCaseTimeIndex", cfg.Tables.TestCaseTimeIndex)
	assert.Equal(t, "EventTypeChannelIndex", cfg.Tables.EventTypeChannelIndex)
	assert.Equal(t, "dev", cfg.Build.Version)
}

func TestLoadConfigWebhookSecretsRedacted(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("WEBHOOK_ENABLED", "true")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/testpulse")
	t.Setenv("WEBHOOK_API_KEY", "key-123")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.True(t, cfg.Webhook.Enabled)
	assert.Equal(t, "key-123", cfg.Webhook.APIKey.Unmask())
	assert.NotContains(t, cfg.Webhook.APIKey.String(), "key-123")
}

func TestLoadConfigValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad environment", "APP_ENV", "qa"},
		{"multiplier below one", "RETRY_BACKOFF_MULTIPLIER", "0.5"},
		{"threshold above 100", "ALERT_FAILURE_RATE_THRESHOLD", "150"},
		{"zero consecutive count", "ALERT_CONSECUTIVE_FAILURES", "0"},
		{"malformed redaction rules", "REDACTION_LOG_RULES_JSON", "[{"},
		{"queue not a url", "SQS_NOTIFICATIONS", "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setLocalEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := LoadConfig(nil)
			require.Error(t, err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, ErrValidation, cfgErr.Type)
		})
	}
}

func TestLoadConfigMaxDelayBelowInitial(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("RETRY_INITIAL_DELAY", "5s")
	t.Setenv("RETRY_MAX_DELAY", "1s")

	_, err := LoadConfig(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RETRY_MAX_DELAY")
}

func TestLoadConfigParsingFailure(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("RETRY_MAX_RETRIES", "three")

	_, err := LoadConfig(nil)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrParsing, cfgErr.Type)
}

func TestLoadConfigSSMResolution(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("WEBHOOK_BEARER_TOKEN_SSM_PARAM", "/prod/testpulse/webhook/token")

	provider := &testSecretProvider{values: map[string]string{
		"/prod/testpulse/webhook/token": "tok-from-ssm",
	}}

	cfg, err := LoadConfig(provider)
	require.NoError(t, err)
	assert.Equal(t, "tok-from-ssm", cfg.Webhook.BearerToken.Unmask())
	assert.Equal(t, []string{"/prod/testpulse/webhook/token"}, provider.calledWith)
}

func TestLoadConfigSSMDirectEnvWins(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("WEBHOOK_API_KEY", "direct")
	t.Setenv("WEBHOOK_API_KEY_SSM_PARAM", "/prod/testpulse/webhook/key")

	provider := &testSecretProvider{values: map[string]string{"/prod/testpulse/webhook/key": "from-ssm"}}

	cfg, err := LoadConfig(provider)
	require.NoError(t, err)
	assert.Equal(t, "direct", cfg.Webhook.APIKey.Unmask())
	assert.Empty(t, provider.calledWith)
}

func TestResolveSSMParams(t *testing.T) {
	t.Run("nil provider with pointers", func(t *testing.T) {
		deps := fakeDeps(map[string]string{"WEBHOOK_API_KEY_SSM_PARAM": "/dev/key"})
		err := resolveSSMParams(nil, deps)

		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, ErrSSMResolution, cfgErr.Type)
		assert.Contains(t, cfgErr.Message, "WEBHOOK_API_KEY")
	})

	t.Run("provider error is wrapped", func(t *testing.T) {
		deps := fakeDeps(map[string]string{"WEBHOOK_API_KEY_SSM_PARAM": "/dev/key"})
		boom := errors.New("throttled")
		err := resolveSSMParams(&testSecretProvider{err: boom}, deps)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("missing parameter reported", func(t *testing.T) {
		deps := fakeDeps(map[string]string{"WEBHOOK_API_KEY_SSM_PARAM": "/dev/key"})
		err := resolveSSMParams(&testSecretProvider{}, deps)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "WEBHOOK_API_KEY"))
	})

	t.Run("empty path skipped", func(t *testing.T) {
		deps := fakeDeps(map[string]string{"WEBHOOK_API_KEY_SSM_PARAM": ""})
		assert.NoError(t, resolveSSMParams(nil, deps))
	})

	t.Run("resolved values exported", func(t *testing.T) {
		env := map[string]string{"WEBHOOK_API_KEY_SSM_PARAM": "/dev/key"}
		deps := fakeDeps(env)
		err := resolveSSMParams(&testSecretProvider{values: map[string]string{"/dev/key": "abc"}}, deps)
		require.NoError(t, err)
		assert.Equal(t, "abc", env["WEBHOOK_API_KEY"])
	})

	t.Run("local env aliases", func(t *testing.T) {
		t.Setenv("TP_LOCAL_FINGERPRINT", "fp-local")
		env := map[string]string{"APP_ENV": "local", "FINGERPRINT_KEY_SSM_PARAM": "TP_LOCAL_FINGERPRINT"}
		err := resolveSSMParams(NewEnvVarProvider(), fakeDeps(env))
		require.NoError(t, err)
		assert.Equal(t, "fp-local", env["FINGERPRINT_KEY"])
	})
}

func fakeDeps(env map[string]string) loaderDeps {
	return loaderDeps{
		lookupEnv: func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		},
		setEnv: func(k, v string) error {
			env[k] = v
			return nil
		},
		environ: func() []string {
			out := make([]string, 0, len(env))
			for k, v := range env {
				out = append(out, k+"="+v)
			}
			return out
		},
	}
}

func TestConfigErrorFormatting(t *testing.T) {
	inner := errors.New("boom")
	withErr := &ConfigError{Type: ErrParsing, Message: "bad", Err: inner}
	assert.Equal(t, "[PARSING_FAILED] bad: boom", withErr.Error())
	assert.ErrorIs(t, withErr, inner)

	bare := &ConfigError{Type: ErrMissingEnv, Message: "APP_ENV not set"}
	assert.Equal(t, "[MISSING_ENV] APP_ENV not set", bare.Error())
}
