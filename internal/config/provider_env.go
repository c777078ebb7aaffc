package config

import (
	"context"
	"os"
)

// EnvVarProvider resolves parameter paths by treating each one as an
// environment variable name. Used for local runs without SSM.
type EnvVarProvider struct{}

func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}

// DefaultProvider picks the SecretProvider for the current process: the
// environment itself under APP_ENV=local, SSM in AWS_REGION otherwise.
func DefaultProvider() SecretProvider {
	if os.Getenv("APP_ENV") == "local" {
		return NewEnvVarProvider()
	}
	return NewSSMProvider(os.Getenv("AWS_REGION"))
}
