// Package secrets resolves datasource credential references.
// Declared datasources carry a secret name rather than inline passwords;
// the resolver turns that name into a username/password pair.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Credentials is the decoded secret payload.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Resolver resolves a credential reference to a username/password pair.
type Resolver interface {
	Resolve(ctx context.Context, secretName string) (Credentials, error)
}

// SecretsManagerAPI is the subset of the AWS Secrets Manager client we use.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSResolver resolves credentials from AWS Secrets Manager. Secrets are
// expected to be JSON documents with "username" and "password" fields.
type AWSResolver struct {
	client SecretsManagerAPI
}

// NewAWSResolver creates a resolver backed by the given client.
func NewAWSResolver(client SecretsManagerAPI) *AWSResolver {
	return &AWSResolver{client: client}
}

// Resolve fetches and decodes the named secret.
func (r *AWSResolver) Resolve(ctx context.Context, secretName string) (Credentials, error) {
	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretName,
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to fetch secret %q: %w", secretName, err)
	}
	if out.SecretString == nil {
		return Credentials{}, fmt.Errorf("secret %q has no string payload", secretName)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(*out.SecretString), &creds); err != nil {
		return Credentials{}, fmt.Errorf("failed to decode secret %q: %w", secretName, err)
	}
	return creds, nil
}
