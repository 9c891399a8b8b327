package config

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	pages []ssm.GetParametersByPathOutput
	calls int
	puts  []ssm.PutParameterInput
}

func (f *fakeSSM) GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	page := f.pages[f.calls]
	f.calls++
	return &page, nil
}

func (f *fakeSSM) PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.puts = append(f.puts, *params)
	return &ssm.PutParameterOutput{}, nil
}

func TestSSMParameterStoreLoad(t *testing.T) {
	client := &fakeSSM{
		pages: []ssm.GetParametersByPathOutput{
			{
				Parameters: []ssmtypes.Parameter{
					{Name: aws.String("/geopipeline/map-pipeline/BUCKET_NAME"), Value: aws.String("map-uploads-test")},
				},
				NextToken: aws.String("page-2"),
			},
			{
				Parameters: []ssmtypes.Parameter{
					{Name: aws.String("/geopipeline/map-pipeline/BEDROCK_REGION"), Value: aws.String("us-west-2")},
				},
			},
		},
	}
	store := NewSSMParameterStore(client)

	values, err := store.Load(context.Background(), "map-pipeline")
	require.NoError(t, err)

	assert.Equal(t, 2, client.calls)
	assert.Equal(t, map[string]string{
		"BUCKET_NAME":    "map-uploads-test",
		"BEDROCK_REGION": "us-west-2",
	}, values)
}

func TestSSMParameterStorePublish(t *testing.T) {
	client := &fakeSSM{}
	store := NewSSMParameterStore(client)

	err := store.Publish(context.Background(), "map-pipeline", map[string]string{
		"BUCKET_NAME":      "map-uploads-test",
		"BEDROCK_REGION":   "us-west-2",
		"GITHUB_TOKEN":     "ghp_never_published",
		"ANALYSIS_FOLDER":  "",
		"GITHUB_REPO_NAME": "mapfold/map-pipeline",
	})
	require.NoError(t, err)

	names := make(map[string]string)
	for _, put := range client.puts {
		names[aws.ToString(put.Name)] = aws.ToString(put.Value)
		assert.True(t, aws.ToBool(put.Overwrite))
	}

	assert.Equal(t, map[string]string{
		"/geopipeline/map-pipeline/BUCKET_NAME":      "map-uploads-test",
		"/geopipeline/map-pipeline/BEDROCK_REGION":   "us-west-2",
		"/geopipeline/map-pipeline/GITHUB_REPO_NAME": "mapfold/map-pipeline",
	}, names)
}

func TestEnvParameterStore(t *testing.T) {
	t.Setenv("BUCKET_NAME", "from-env")

	store := NewEnvParameterStore()
	values, err := store.Load(context.Background(), "any")
	require.NoError(t, err)
	assert.Equal(t, "from-env", values["BUCKET_NAME"])

	// Publish is a no-op.
	assert.NoError(t, store.Publish(context.Background(), "any", map[string]string{"BUCKET_NAME": "x"}))
}
