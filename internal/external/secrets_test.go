package external

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSecretsAPI struct {
	out   *secretsmanager.GetSecretValueOutput
	err   error
	calls int
}

func (m *mockSecretsAPI) GetSecretValue(_ context.Context, _ *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	m.calls++
	return m.out, m.err
}

func TestSecretsManagerClient_GetSecretString(t *testing.T) {
	api := &mockSecretsAPI{out: &secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"apiKey":"k"}`)}}
	got, err := NewSecretsManagerClientWithAPI(api).GetSecretString(context.Background(), "webhook/auth")
	require.NoError(t, err)
	assert.Equal(t, `{"apiKey":"k"}`, got)
}

func TestSecretsManagerClient_NotFound(t *testing.T) {
	api := &mockSecretsAPI{err: &smtypes.ResourceNotFoundException{}}
	_, err := NewSecretsManagerClientWithAPI(api).GetSecretString(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestSecretsManagerClient_BinarySecret(t *testing.T) {
	api := &mockSecretsAPI{out: &secretsmanager.GetSecretValueOutput{SecretBinary: []byte{1}}}
	_, err := NewSecretsManagerClientWithAPI(api).GetSecretString(context.Background(), "bin")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrSecretNotFound))
}
