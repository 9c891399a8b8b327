// Package stack declares the serverless map pipeline as a CloudFormation
// template and drives its apply/destroy lifecycle. All transactional
// guarantees (rollback on failure) are delegated to CloudFormation itself.
package stack

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	cfn "github.com/awslabs/goformation/v7/cloudformation"
	"github.com/awslabs/goformation/v7/cloudformation/iam"
	"github.com/awslabs/goformation/v7/cloudformation/lambda"
	"github.com/awslabs/goformation/v7/cloudformation/logs"
	"github.com/awslabs/goformation/v7/cloudformation/policies"
	"github.com/awslabs/goformation/v7/cloudformation/s3"

	"github.com/mapfold/geopipeline/internal/config"
)

const (
	// RawMapsPrefix is the bucket prefix watched for newly uploaded rasters.
	RawMapsPrefix = "raw_maps/"
	// TifSuffix filters object-created events to raster map images.
	TifSuffix = ".tif"

	functionMemoryMB       = 10240
	functionTimeoutSeconds = 900
	ephemeralStorageMB     = 10240
	logRetentionDays       = 7
	pythonRuntime          = "python3.12"
)

// Logical resource ids.
const (
	ridBucket           = "MapBucket"
	ridFunction         = "GeoreferencerFunction"
	ridFunctionRole     = "GeoreferencerRole"
	ridLogGroup         = "GeoreferencerLogGroup"
	ridDepsLayer        = "DepsLayer"
	ridGeoLayer         = "GeoLayer"
	ridInvokePermission = "BucketInvokePermission"
)

// AssetLocations points at the staged function and layer bundles.
type AssetLocations struct {
	Bucket       string
	FunctionKey  string
	DepsLayerKey string
	GeoLayerKey  string
}

// StackName derives the CloudFormation stack name from the pipeline bucket.
func StackName(bucketName string) string {
	return "geopipeline-" + bucketName
}

// Prefixes lists the three folder-like prefixes materialized in the bucket.
func Prefixes(errorFolder, analysisFolder string) []string {
	return []string{RawMapsPrefix, errorFolder + "/", analysisFolder + "/"}
}

// BuildTemplate synthesizes the provisioning manifest. The seven parameters
// are threaded verbatim into the compute function's environment; their names
// are the contract the drivers depend on.
func BuildTemplate(assets AssetLocations) *cfn.Template {
	t := cfn.NewTemplate()
	t.Description = "Serverless pipeline: raster map uploads trigger georeferencing via Textract and Bedrock"

	t.Parameters["BucketName"] = cfn.Parameter{
		Type:        "String",
		Description: aws.String("Globally unique name for the map upload bucket"),
	}
	t.Parameters["ErrorFolder"] = cfn.Parameter{
		Type:        "String",
		Description: aws.String("Prefix receiving inputs that failed processing"),
		Default:     config.DefaultErrorFolder,
	}
	t.Parameters["AnalysisFolder"] = cfn.Parameter{
		Type:        "String",
		Description: aws.String("Prefix receiving intermediate analysis artifacts"),
		Default:     config.DefaultAnalysisFolder,
	}
	t.Parameters["GithubToken"] = cfn.Parameter{
		Type:        "String",
		Description: aws.String("Token used to publish results to the repository"),
		NoEcho:      aws.Bool(true),
	}
	t.Parameters["GithubRepoName"] = cfn.Parameter{
		Type:        "String",
		Description: aws.String("owner/name of the results repository"),
	}
	t.Parameters["BedrockModelId"] = cfn.Parameter{
		Type:        "String",
		Description: aws.String("Generative model used for metadata extraction"),
		Default:     config.DefaultBedrockModelID,
	}
	t.Parameters["BedrockRegion"] = cfn.Parameter{
		Type:        "String",
		Description: aws.String("Region hosting the Textract and Bedrock endpoints"),
		Default:     config.DefaultBedrockRegion,
	}

	bucketArn := cfn.Sub("arn:aws:s3:::${BucketName}")
	objectsArn := cfn.Sub("arn:aws:s3:::${BucketName}/*")

	t.Resources[ridFunctionRole] = &iam.Role{
		AssumeRolePolicyDocument: map[string]any{
			"Version": "2012-10-17",
			"Statement": []map[string]any{
				{
					"Effect":    "Allow",
					"Principal": map[string]any{"Service": "lambda.amazonaws.com"},
					"Action":    "sts:AssumeRole",
				},
			},
		},
		Policies: []iam.Role_Policy{
			{
				PolicyName: "bucket-access",
				PolicyDocument: map[string]any{
					"Version": "2012-10-17",
					"Statement": []map[string]any{
						{
							"Effect": "Allow",
							"Action": []string{
								"s3:GetObject",
								"s3:PutObject",
								"s3:DeleteObject",
								"s3:ListBucket",
							},
							"Resource": []string{bucketArn, objectsArn},
						},
					},
				},
			},
			{
				// Deliberately broad: Textract, Bedrock and CloudWatch Logs
				// grants are unscoped.
				PolicyName: "extraction-and-logs",
				PolicyDocument: map[string]any{
					"Version": "2012-10-17",
					"Statement": []map[string]any{
						{
							"Effect":   "Allow",
							"Action":   []string{"textract:DetectDocumentText"},
							"Resource": "*",
						},
						{
							"Effect":   "Allow",
							"Action":   []string{"bedrock:InvokeModel"},
							"Resource": "*",
						},
						{
							"Effect": "Allow",
							"Action": []string{
								"logs:CreateLogGroup",
								"logs:CreateLogStream",
								"logs:PutLogEvents",
							},
							"Resource": "*",
						},
					},
				},
			},
		},
	}

	t.Resources[ridDepsLayer] = &lambda.LayerVersion{
		LayerName:          aws.String(cfn.Sub("${AWS::StackName}-deps")),
		Description:        aws.String("Parsing dependencies for the georeferencer"),
		CompatibleRuntimes: []string{pythonRuntime},
		Content: &lambda.LayerVersion_Content{
			S3Bucket: assets.Bucket,
			S3Key:    assets.DepsLayerKey,
		},
	}
	t.Resources[ridGeoLayer] = &lambda.LayerVersion{
		LayerName:          aws.String(cfn.Sub("${AWS::StackName}-geo")),
		Description:        aws.String("Imaging and geocoding dependencies for the georeferencer"),
		CompatibleRuntimes: []string{pythonRuntime},
		Content: &lambda.LayerVersion_Content{
			S3Bucket: assets.Bucket,
			S3Key:    assets.GeoLayerKey,
		},
	}

	t.Resources[ridLogGroup] = &logs.LogGroup{
		LogGroupName:    aws.String(cfn.Sub("/aws/lambda/${AWS::StackName}-georeferencer")),
		RetentionInDays: aws.Int(logRetentionDays),
	}

	function := &lambda.Function{
		FunctionName: aws.String(cfn.Sub("${AWS::StackName}-georeferencer")),
		Runtime:      aws.String(pythonRuntime),
		Handler:      aws.String("lambda_function.lambda_handler"),
		MemorySize:   aws.Int(functionMemoryMB),
		Timeout:      aws.Int(functionTimeoutSeconds),
		EphemeralStorage: &lambda.Function_EphemeralStorage{
			Size: ephemeralStorageMB,
		},
		Role: cfn.GetAtt(ridFunctionRole, "Arn"),
		Code: &lambda.Function_Code{
			S3Bucket: aws.String(assets.Bucket),
			S3Key:    aws.String(assets.FunctionKey),
		},
		Layers: []string{
			cfn.Ref(ridDepsLayer),
			cfn.Ref(ridGeoLayer),
		},
		Environment: &lambda.Function_Environment{
			Variables: map[string]string{
				"BUCKET_NAME":      cfn.Ref("BucketName"),
				"ERROR_FOLDER":     cfn.Ref("ErrorFolder"),
				"ANALYSIS_FOLDER":  cfn.Ref("AnalysisFolder"),
				"GITHUB_TOKEN":     cfn.Ref("GithubToken"),
				"GITHUB_REPO_NAME": cfn.Ref("GithubRepoName"),
				"BEDROCK_MODEL_ID": cfn.Ref("BedrockModelId"),
				"BEDROCK_REGION":   cfn.Ref("BedrockRegion"),
			},
		},
	}
	function.AWSCloudFormationDependsOn = []string{ridLogGroup}
	t.Resources[ridFunction] = function

	// The permission references the bucket ARN built from the parameter, not
	// the bucket resource, to break the notification dependency cycle.
	t.Resources[ridInvokePermission] = &lambda.Permission{
		Action:       "lambda:InvokeFunction",
		FunctionName: cfn.Ref(ridFunction),
		Principal:    "s3.amazonaws.com",
		SourceArn:    aws.String(bucketArn),
	}

	bucket := &s3.Bucket{
		BucketName: aws.String(cfn.Ref("BucketName")),
		PublicAccessBlockConfiguration: &s3.Bucket_PublicAccessBlockConfiguration{
			BlockPublicAcls:       aws.Bool(true),
			BlockPublicPolicy:     aws.Bool(true),
			IgnorePublicAcls:      aws.Bool(true),
			RestrictPublicBuckets: aws.Bool(true),
		},
		NotificationConfiguration: &s3.Bucket_NotificationConfiguration{
			LambdaConfigurations: []s3.Bucket_LambdaConfiguration{
				{
					Event:    "s3:ObjectCreated:*",
					Function: cfn.GetAtt(ridFunction, "Arn"),
					Filter: &s3.Bucket_NotificationFilter{
						S3Key: &s3.Bucket_S3KeyFilter{
							Rules: []s3.Bucket_FilterRule{
								{Name: "prefix", Value: RawMapsPrefix},
								{Name: "suffix", Value: TifSuffix},
							},
						},
					},
				},
			},
		},
	}
	bucket.AWSCloudFormationDeletionPolicy = policies.DeletionPolicy("Delete")
	bucket.AWSCloudFormationDependsOn = []string{ridInvokePermission}
	t.Resources[ridBucket] = bucket

	t.Outputs["BucketName"] = cfn.Output{
		Description: aws.String("Bucket watched for raster map uploads"),
		Value:       cfn.Ref(ridBucket),
	}
	t.Outputs["FunctionName"] = cfn.Output{
		Description: aws.String("Compute function subscribed to upload events"),
		Value:       cfn.Ref(ridFunction),
	}
	t.Outputs["UploadInstruction"] = cfn.Output{
		Description: aws.String("How to feed the pipeline"),
		Value:       cfn.Sub("Upload .tif map images to s3://${BucketName}/" + RawMapsPrefix + " to start processing"),
	}

	return t
}
