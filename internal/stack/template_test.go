package stack

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/awslabs/goformation/v7/cloudformation/lambda"
	"github.com/awslabs/goformation/v7/cloudformation/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAssets() AssetLocations {
	return AssetLocations{
		Bucket:       "map-uploads-test-assets",
		FunctionKey:  "assets/abc123/function.zip",
		DepsLayerKey: "assets/def456/deps.zip",
		GeoLayerKey:  "assets/789abc/geo.zip",
	}
}

func TestStackName(t *testing.T) {
	assert.Equal(t, "geopipeline-map-uploads-test", StackName("map-uploads-test"))
}

func TestPrefixes(t *testing.T) {
	assert.Equal(t, []string{"raw_maps/", "error/", "analysis/"}, Prefixes("error", "analysis"))
	assert.Equal(t, []string{"raw_maps/", "failed/", "results/"}, Prefixes("failed", "results"))
}

func TestBuildTemplateParameters(t *testing.T) {
	tmpl := BuildTemplate(testAssets())

	want := []string{
		"BucketName",
		"ErrorFolder",
		"AnalysisFolder",
		"GithubToken",
		"GithubRepoName",
		"BedrockModelId",
		"BedrockRegion",
	}
	require.Len(t, tmpl.Parameters, len(want))
	for _, name := range want {
		_, ok := tmpl.Parameters[name]
		assert.True(t, ok, "missing parameter %s", name)
	}

	// The token must never echo in console or API output.
	assert.Equal(t, true, aws.ToBool(tmpl.Parameters["GithubToken"].NoEcho))
	assert.Nil(t, tmpl.Parameters["BucketName"].Default)
	assert.Equal(t, "error", tmpl.Parameters["ErrorFolder"].Default)
	assert.Equal(t, "analysis", tmpl.Parameters["AnalysisFolder"].Default)
	assert.Equal(t, "us-west-2", tmpl.Parameters["BedrockRegion"].Default)
}

func TestBuildTemplateFunction(t *testing.T) {
	tmpl := BuildTemplate(testAssets())

	fn, ok := tmpl.Resources[ridFunction].(*lambda.Function)
	require.True(t, ok)

	assert.Equal(t, 10240, aws.ToInt(fn.MemorySize))
	assert.Equal(t, 900, aws.ToInt(fn.Timeout))
	assert.Equal(t, 10240, fn.EphemeralStorage.Size)
	assert.Equal(t, "python3.12", aws.ToString(fn.Runtime))
	assert.Equal(t, "lambda_function.lambda_handler", aws.ToString(fn.Handler))
	assert.Len(t, fn.Layers, 2)
	assert.Equal(t, "map-uploads-test-assets", aws.ToString(fn.Code.S3Bucket))
	assert.Equal(t, "assets/abc123/function.zip", aws.ToString(fn.Code.S3Key))

	// Every manifest parameter is threaded into the environment.
	env := fn.Environment.Variables
	for _, name := range []string{
		"BUCKET_NAME", "ERROR_FOLDER", "ANALYSIS_FOLDER", "GITHUB_TOKEN",
		"GITHUB_REPO_NAME", "BEDROCK_MODEL_ID", "BEDROCK_REGION",
	} {
		assert.Contains(t, env, name)
	}

	assert.Contains(t, fn.AWSCloudFormationDependsOn, ridLogGroup)
}

func TestBuildTemplateNotification(t *testing.T) {
	tmpl := BuildTemplate(testAssets())

	bucket, ok := tmpl.Resources[ridBucket].(*s3.Bucket)
	require.True(t, ok)

	configs := bucket.NotificationConfiguration.LambdaConfigurations
	require.Len(t, configs, 1)
	assert.Equal(t, "s3:ObjectCreated:*", configs[0].Event)

	rules := configs[0].Filter.S3Key.Rules
	require.Len(t, rules, 2)
	byName := map[string]string{}
	for _, rule := range rules {
		byName[rule.Name] = rule.Value
	}
	assert.Equal(t, "raw_maps/", byName["prefix"])
	assert.Equal(t, ".tif", byName["suffix"])

	block := bucket.PublicAccessBlockConfiguration
	assert.True(t, aws.ToBool(block.BlockPublicAcls))
	assert.True(t, aws.ToBool(block.BlockPublicPolicy))
	assert.True(t, aws.ToBool(block.IgnorePublicAcls))
	assert.True(t, aws.ToBool(block.RestrictPublicBuckets))

	// Bucket creation must wait on the invoke permission, or stack creation
	// fails when S3 validates the notification target.
	assert.Contains(t, bucket.AWSCloudFormationDependsOn, ridInvokePermission)
	assert.Equal(t, "Delete", string(bucket.AWSCloudFormationDeletionPolicy))
}

func TestBuildTemplateOutputs(t *testing.T) {
	tmpl := BuildTemplate(testAssets())

	require.Len(t, tmpl.Outputs, 3)
	for _, name := range []string{"BucketName", "FunctionName", "UploadInstruction"} {
		_, ok := tmpl.Outputs[name]
		assert.True(t, ok, "missing output %s", name)
	}
}

func TestBuildTemplateSerializes(t *testing.T) {
	body, err := BuildTemplate(testAssets()).JSON()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"raw_maps/"`)
	assert.Contains(t, string(body), `"NoEcho"`)
}
