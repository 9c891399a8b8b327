package stack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	apperrors "github.com/mapfold/geopipeline/internal/errors"
)

const applyTimeout = 30 * time.Minute

// CloudFormationAPI is the subset of the CloudFormation client the deployer
// uses. It also satisfies the SDK waiter interfaces.
type CloudFormationAPI interface {
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
	DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
}

// Outputs are the three values reported after a successful apply.
type Outputs struct {
	BucketName        string
	FunctionName      string
	UploadInstruction string
}

// Deployer applies and destroys the provisioning manifest. Rollback of a
// failed apply is CloudFormation's job, not ours.
type Deployer struct {
	cfClient CloudFormationAPI
	s3Client S3API
}

func NewDeployer(cfClient CloudFormationAPI, s3Client S3API) *Deployer {
	return &Deployer{cfClient: cfClient, s3Client: s3Client}
}

// Apply creates or updates the stack, waits for completion, then
// materializes the folder prefixes. Parameters must use the manifest's
// exact parameter names.
func (d *Deployer) Apply(ctx context.Context, bucketName string, parameters map[string]string, assets AssetLocations, prefixes []string) (*Outputs, error) {
	logger := zerolog.Ctx(ctx)
	stackName := StackName(bucketName)

	body, err := BuildTemplate(assets).JSON()
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize template: %w", err)
	}

	exists, err := d.stackExists(ctx, stackName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if stack exists: %w", err)
	}

	cfParams := toParameters(parameters)
	token := "geopipeline-" + ksuid.New().String()

	if exists {
		logger.Info().Str("stack_name", stackName).Msg("Updating stack")
		_, err = d.cfClient.UpdateStack(ctx, &cloudformation.UpdateStackInput{
			StackName:          aws.String(stackName),
			TemplateBody:       aws.String(string(body)),
			Parameters:         cfParams,
			Capabilities:       capabilities(),
			ClientRequestToken: aws.String(token),
		})
		if err != nil && !isNoUpdates(err) {
			return nil, fmt.Errorf("failed to update stack: %w", err)
		}
		if err == nil {
			waiter := cloudformation.NewStackUpdateCompleteWaiter(d.cfClient)
			if err := waiter.Wait(ctx, describeInput(stackName), applyTimeout); err != nil {
				return nil, fmt.Errorf("stack update did not complete: %w", err)
			}
		}
	} else {
		logger.Info().Str("stack_name", stackName).Msg("Creating stack")
		_, err = d.cfClient.CreateStack(ctx, &cloudformation.CreateStackInput{
			StackName:          aws.String(stackName),
			TemplateBody:       aws.String(string(body)),
			Parameters:         cfParams,
			Capabilities:       capabilities(),
			ClientRequestToken: aws.String(token),
			Tags: []cftypes.Tag{
				{Key: aws.String("ManagedBy"), Value: aws.String("geopipeline")},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stack: %w", err)
		}
		waiter := cloudformation.NewStackCreateCompleteWaiter(d.cfClient)
		if err := waiter.Wait(ctx, describeInput(stackName), applyTimeout); err != nil {
			return nil, fmt.Errorf("stack creation did not complete: %w", err)
		}
	}

	// Folder prefixes are materialized on every apply; PutObject on the same
	// key is idempotent so repeated applies leave exactly one marker each.
	if err := EnsureMarkers(ctx, d.s3Client, bucketName, prefixes); err != nil {
		return nil, err
	}

	outputs, err := d.stackOutputs(ctx, stackName)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("stack_name", stackName).
		Str("bucket", outputs.BucketName).
		Str("function", outputs.FunctionName).
		Msg("Stack apply completed")
	return outputs, nil
}

// Destroy force-empties the bucket, then deletes the stack and waits for the
// deletion to finish. The service role and any CI build project are outside
// the stack and survive.
func (d *Deployer) Destroy(ctx context.Context, bucketName string) error {
	logger := zerolog.Ctx(ctx)
	stackName := StackName(bucketName)

	exists, err := d.stackExists(ctx, stackName)
	if err != nil {
		return fmt.Errorf("failed to check if stack exists: %w", err)
	}
	if !exists {
		logger.Info().Str("stack_name", stackName).Msg("Stack not found, nothing to destroy")
		return nil
	}

	// CloudFormation refuses to delete a non-empty bucket.
	if err := EmptyBucket(ctx, d.s3Client, bucketName); err != nil {
		return err
	}

	logger.Info().Str("stack_name", stackName).Msg("Deleting stack")
	_, err = d.cfClient.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName:          aws.String(stackName),
		ClientRequestToken: aws.String("geopipeline-" + ksuid.New().String()),
	})
	if err != nil {
		return fmt.Errorf("failed to delete stack: %w", err)
	}

	waiter := cloudformation.NewStackDeleteCompleteWaiter(d.cfClient)
	if err := waiter.Wait(ctx, describeInput(stackName), applyTimeout); err != nil {
		return fmt.Errorf("stack deletion did not complete: %w", err)
	}

	logger.Info().Str("stack_name", stackName).Msg("Stack destroyed")
	return nil
}

func (d *Deployer) stackExists(ctx context.Context, stackName string) (bool, error) {
	_, err := d.cfClient.DescribeStacks(ctx, describeInput(stackName))
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			if apiErr.ErrorCode() == "ValidationError" || strings.Contains(apiErr.ErrorMessage(), "does not exist") {
				return false, nil
			}
		}
		return false, err
	}
	return true, nil
}

func (d *Deployer) stackOutputs(ctx context.Context, stackName string) (*Outputs, error) {
	result, err := d.cfClient.DescribeStacks(ctx, describeInput(stackName))
	if err != nil {
		return nil, fmt.Errorf("failed to describe stack %s: %w", stackName, err)
	}
	if len(result.Stacks) == 0 {
		return nil, fmt.Errorf("%w: %s after apply", apperrors.ErrStackNotFound, stackName)
	}

	outputs := &Outputs{}
	for _, out := range result.Stacks[0].Outputs {
		switch aws.ToString(out.OutputKey) {
		case "BucketName":
			outputs.BucketName = aws.ToString(out.OutputValue)
		case "FunctionName":
			outputs.FunctionName = aws.ToString(out.OutputValue)
		case "UploadInstruction":
			outputs.UploadInstruction = aws.ToString(out.OutputValue)
		}
	}
	return outputs, nil
}

func isNoUpdates(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ValidationError" &&
			strings.Contains(apiErr.ErrorMessage(), "No updates")
	}
	return false
}

func toParameters(parameters map[string]string) []cftypes.Parameter {
	params := make([]cftypes.Parameter, 0, len(parameters))
	for key, value := range parameters {
		params = append(params, cftypes.Parameter{
			ParameterKey:   aws.String(key),
			ParameterValue: aws.String(value),
		})
	}
	return params
}

func capabilities() []cftypes.Capability {
	return []cftypes.Capability{
		cftypes.CapabilityCapabilityIam,
		cftypes.CapabilityCapabilityNamedIam,
	}
}

func describeInput(stackName string) *cloudformation.DescribeStacksInput {
	return &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	}
}
