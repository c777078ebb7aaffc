package config

import "context"

// SecretProvider resolves SSM-style parameter paths to plaintext values.
// Missing keys are omitted from the result rather than reported as errors.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
