package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsService fetches the GitHub token when GITHUB_TOKEN_SECRET names a
// Secrets Manager secret instead of the token being passed directly.
type SecretsService struct {
	client SecretsAPI
}

func NewSecretsService(client SecretsAPI) *SecretsService {
	return &SecretsService{client: client}
}

type githubTokenSecret struct {
	GitHubPAT string `json:"github_pat"`
}

// GetGitHubToken retrieves a GitHub PAT from a secret. The secret may be a
// JSON document with a github_pat field or a bare token string.
func (s *SecretsService) GetGitHubToken(ctx context.Context, secretPath string) (string, error) {
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretPath),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", secretPath, err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretPath)
	}

	var parsed githubTokenSecret
	if err := json.Unmarshal([]byte(*result.SecretString), &parsed); err == nil && parsed.GitHubPAT != "" {
		return parsed.GitHubPAT, nil
	}
	return *result.SecretString, nil
}
