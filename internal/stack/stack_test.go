package stack

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCF struct {
	exists    bool
	status    cftypes.StackStatus
	outputs   []cftypes.Output
	updateErr error

	created []cloudformation.CreateStackInput
	updated []cloudformation.UpdateStackInput
	deleted []cloudformation.DeleteStackInput
}

func (f *fakeCF) DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	if !f.exists {
		return nil, &smithy.GenericAPIError{
			Code:    "ValidationError",
			Message: "Stack with id " + aws.ToString(params.StackName) + " does not exist",
		}
	}
	return &cloudformation.DescribeStacksOutput{
		Stacks: []cftypes.Stack{
			{
				StackName:   params.StackName,
				StackStatus: f.status,
				Outputs:     f.outputs,
			},
		},
	}, nil
}

func (f *fakeCF) CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	f.created = append(f.created, *params)
	f.exists = true
	f.status = cftypes.StackStatusCreateComplete
	return &cloudformation.CreateStackOutput{}, nil
}

func (f *fakeCF) UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updated = append(f.updated, *params)
	f.status = cftypes.StackStatusUpdateComplete
	return &cloudformation.UpdateStackOutput{}, nil
}

func (f *fakeCF) DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error) {
	f.deleted = append(f.deleted, *params)
	f.status = cftypes.StackStatusDeleteComplete
	return &cloudformation.DeleteStackOutput{}, nil
}

func stackOutputsFixture() []cftypes.Output {
	return []cftypes.Output{
		{OutputKey: aws.String("BucketName"), OutputValue: aws.String("map-uploads-test")},
		{OutputKey: aws.String("FunctionName"), OutputValue: aws.String("geopipeline-map-uploads-test-georeferencer")},
		{OutputKey: aws.String("UploadInstruction"), OutputValue: aws.String("Upload .tif map images to s3://map-uploads-test/raw_maps/ to start processing")},
	}
}

func testParameters() map[string]string {
	return map[string]string{
		"BucketName":     "map-uploads-test",
		"ErrorFolder":    "error",
		"AnalysisFolder": "analysis",
		"GithubToken":    "ghp_test",
		"GithubRepoName": "mapfold/map-pipeline",
		"BedrockModelId": "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		"BedrockRegion":  "us-west-2",
	}
}

func TestApplyCreatesStack(t *testing.T) {
	cf := &fakeCF{outputs: stackOutputsFixture()}
	s3fake := &fakeS3{}
	d := NewDeployer(cf, s3fake)

	outputs, err := d.Apply(context.Background(), "map-uploads-test", testParameters(), testAssets(), Prefixes("error", "analysis"))
	require.NoError(t, err)

	require.Len(t, cf.created, 1)
	assert.Empty(t, cf.updated)

	created := cf.created[0]
	assert.Equal(t, "geopipeline-map-uploads-test", aws.ToString(created.StackName))
	assert.Len(t, created.Parameters, 7)
	assert.ElementsMatch(t, []cftypes.Capability{
		cftypes.CapabilityCapabilityIam,
		cftypes.CapabilityCapabilityNamedIam,
	}, created.Capabilities)
	assert.Contains(t, aws.ToString(created.ClientRequestToken), "geopipeline-")

	// Folder markers are materialized after the stack settles.
	assert.Len(t, s3fake.puts, 3)

	assert.Equal(t, "map-uploads-test", outputs.BucketName)
	assert.Equal(t, "geopipeline-map-uploads-test-georeferencer", outputs.FunctionName)
	assert.NotEmpty(t, outputs.UploadInstruction)
}

func TestApplyUpdatesExistingStack(t *testing.T) {
	cf := &fakeCF{
		exists:  true,
		status:  cftypes.StackStatusCreateComplete,
		outputs: stackOutputsFixture(),
	}
	d := NewDeployer(cf, &fakeS3{})

	_, err := d.Apply(context.Background(), "map-uploads-test", testParameters(), testAssets(), Prefixes("error", "analysis"))
	require.NoError(t, err)

	assert.Empty(t, cf.created)
	require.Len(t, cf.updated, 1)
	assert.Equal(t, "geopipeline-map-uploads-test", aws.ToString(cf.updated[0].StackName))
}

func TestApplyTreatsNoUpdatesAsSuccess(t *testing.T) {
	cf := &fakeCF{
		exists:  true,
		status:  cftypes.StackStatusUpdateComplete,
		outputs: stackOutputsFixture(),
		updateErr: &smithy.GenericAPIError{
			Code:    "ValidationError",
			Message: "No updates are to be performed.",
		},
	}
	s3fake := &fakeS3{}
	d := NewDeployer(cf, s3fake)

	outputs, err := d.Apply(context.Background(), "map-uploads-test", testParameters(), testAssets(), Prefixes("error", "analysis"))
	require.NoError(t, err)
	assert.Equal(t, "map-uploads-test", outputs.BucketName)
	assert.Len(t, s3fake.puts, 3)
}

func TestDestroyEmptiesBucketFirst(t *testing.T) {
	cf := &fakeCF{exists: true, status: cftypes.StackStatusCreateComplete}
	s3fake := &fakeS3{
		listPages: []s3.ListObjectsV2Output{
			{
				Contents:    []s3types.Object{{Key: aws.String("raw_maps/map1.tif")}},
				IsTruncated: aws.Bool(false),
			},
		},
	}
	d := NewDeployer(cf, s3fake)

	err := d.Destroy(context.Background(), "map-uploads-test")
	require.NoError(t, err)

	assert.Len(t, s3fake.deletes, 1)
	require.Len(t, cf.deleted, 1)
	assert.Equal(t, "geopipeline-map-uploads-test", aws.ToString(cf.deleted[0].StackName))
}

func TestDestroyMissingStackIsNoOp(t *testing.T) {
	cf := &fakeCF{}
	s3fake := &fakeS3{}
	d := NewDeployer(cf, s3fake)

	err := d.Destroy(context.Background(), "map-uploads-test")
	require.NoError(t, err)
	assert.Empty(t, cf.deleted)
	assert.Equal(t, 0, s3fake.listCalls)
}
