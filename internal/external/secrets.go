package external

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// ErrSecretNotFound is returned when the secret ID does not exist.
var ErrSecretNotFound = errors.New("secret not found")

// SecretsManagerAPI is the subset of the Secrets Manager client in use.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerClient implements SecretFetcher.
type SecretsManagerClient struct {
	api SecretsManagerAPI
}

func NewSecretsManagerClient(awsCfg aws.Config) *SecretsManagerClient {
	return &SecretsManagerClient{api: secretsmanager.NewFromConfig(awsCfg)}
}

func NewSecretsManagerClientWithAPI(api SecretsManagerAPI) *SecretsManagerClient {
	return &SecretsManagerClient{api: api}
}

// GetSecretString returns the AWSCURRENT string value of a secret. Binary
// secrets are not supported.
func (c *SecretsManagerClient) GetSecretString(ctx context.Context, secretID string) (string, error) {
	out, err := c.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		var nf *smtypes.ResourceNotFoundException
		if errors.As(err, &nf) {
			return "", fmt.Errorf("%s: %w", secretID, ErrSecretNotFound)
		}
		return "", fmt.Errorf("fetching secret %s: %w", secretID, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretID)
	}
	return *out.SecretString, nil
}

var _ SecretFetcher = (*SecretsManagerClient)(nil)
