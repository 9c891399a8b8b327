package config

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// Shared parameter names published under /geopipeline/{project}/. The leaf
// names mirror the environment variable contract so CI builds can resolve
// configuration without a checked-in env file.
var sharedParameterNames = []string{
	"BUCKET_NAME",
	"ERROR_FOLDER",
	"ANALYSIS_FOLDER",
	"GITHUB_REPO_NAME",
	"BEDROCK_MODEL_ID",
	"BEDROCK_REGION",
}

// ParameterStore supplies the shared configuration layer consulted below
// env/flag/file. The SSM implementation is used in CI; the env implementation
// is the DISABLE_SSM escape hatch for local development.
type ParameterStore interface {
	Load(ctx context.Context, project string) (map[string]string, error)
	Publish(ctx context.Context, project string, values map[string]string) error
}

// SSMAPI is the subset of the SSM client the store uses.
type SSMAPI interface {
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSMParameterStore reads and writes shared parameters in AWS Systems
// Manager Parameter Store.
type SSMParameterStore struct {
	client SSMAPI
}

func NewSSMParameterStore(client SSMAPI) *SSMParameterStore {
	return &SSMParameterStore{client: client}
}

func sharedParameterPath(project string) string {
	return fmt.Sprintf("/geopipeline/%s", project)
}

// Load retrieves every parameter under the project path. Keys are returned
// as the bare leaf names (BUCKET_NAME, ...).
func (s *SSMParameterStore) Load(ctx context.Context, project string) (map[string]string, error) {
	prefix := sharedParameterPath(project)

	values := make(map[string]string)
	var nextToken *string
	for {
		result, err := s.client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			Recursive:      aws.Bool(true),
			WithDecryption: aws.Bool(true),
			NextToken:      nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get parameters by path %s: %w", prefix, err)
		}
		for _, p := range result.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			values[path.Base(*p.Name)] = *p.Value
		}
		if result.NextToken == nil {
			break
		}
		nextToken = result.NextToken
	}

	return values, nil
}

// Publish writes the shared (non-secret) parameters for a project so later
// CI builds can resolve them without explicit environment configuration.
func (s *SSMParameterStore) Publish(ctx context.Context, project string, values map[string]string) error {
	prefix := sharedParameterPath(project)

	for _, name := range sharedParameterNames {
		value, ok := values[name]
		if !ok || value == "" {
			continue
		}
		_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
			Name:      aws.String(prefix + "/" + name),
			Value:     aws.String(value),
			Type:      ssmtypes.ParameterTypeString,
			Overwrite: aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("failed to put parameter %s: %w", name, err)
		}
	}
	return nil
}

// EnvParameterStore is the no-op implementation used when SSM is disabled.
// Load answers from the process environment; Publish does nothing.
type EnvParameterStore struct{}

func NewEnvParameterStore() *EnvParameterStore {
	return &EnvParameterStore{}
}

func (e *EnvParameterStore) Load(ctx context.Context, project string) (map[string]string, error) {
	values := make(map[string]string)
	for _, name := range sharedParameterNames {
		if v := os.Getenv(name); v != "" {
			values[name] = v
		}
	}
	return values, nil
}

func (e *EnvParameterStore) Publish(ctx context.Context, project string, values map[string]string) error {
	return nil
}
