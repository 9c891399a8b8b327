package di

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"

	"github.com/mapfold/geopipeline/internal/config"
	"github.com/mapfold/geopipeline/internal/services"
	"github.com/mapfold/geopipeline/internal/stack"
)

// ProvideLogger creates a zerolog.Logger configured for the runtime
// environment: JSON inside CodeBuild/CI, pretty console output in a terminal.
func ProvideLogger() zerolog.Logger {
	if os.Getenv("CODEBUILD_BUILD_ID") != "" || os.Getenv("CI") != "" {
		return zerolog.New(os.Stdout).
			Level(zerolog.InfoLevel).
			With().
			Timestamp().
			Logger()
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()
}

func ProvideContext() context.Context {
	return context.Background()
}

func ProvideAWSConfig(ctx context.Context) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx)
}

func ProvideIAMClient(cfg aws.Config) *iam.Client {
	return iam.NewFromConfig(cfg)
}

func ProvideSTSClient(cfg aws.Config) *sts.Client {
	return sts.NewFromConfig(cfg)
}

func ProvideS3Client(cfg aws.Config) *s3.Client {
	return s3.NewFromConfig(cfg)
}

func ProvideCloudFormationClient(cfg aws.Config) *cloudformation.Client {
	return cloudformation.NewFromConfig(cfg)
}

func ProvideCodeBuildClient(cfg aws.Config) *codebuild.Client {
	return codebuild.NewFromConfig(cfg)
}

func ProvideSSMClient(cfg aws.Config) *ssm.Client {
	return ssm.NewFromConfig(cfg)
}

func ProvideSecretsManagerClient(cfg aws.Config) *secretsmanager.Client {
	return secretsmanager.NewFromConfig(cfg)
}

// ProvideParameterStore returns the SSM-backed shared parameter layer, or
// the environment fallback when DISABLE_SSM is set.
func ProvideParameterStore(client *ssm.Client) config.ParameterStore {
	if os.Getenv("DISABLE_SSM") == "true" {
		return config.NewEnvParameterStore()
	}
	return config.NewSSMParameterStore(client)
}

func ProvideRoleProvisioner(client *iam.Client) *services.RoleProvisioner {
	return services.NewRoleProvisioner(client)
}

func ProvideBuildProjectManager(client *codebuild.Client) *services.BuildProjectManager {
	return services.NewBuildProjectManager(client)
}

func ProvideSecretsService(client *secretsmanager.Client) *services.SecretsService {
	return services.NewSecretsService(client)
}

func ProvideDeployer(cfClient *cloudformation.Client, s3Client *s3.Client) *stack.Deployer {
	return stack.NewDeployer(cfClient, s3Client)
}

func ProvideStager(cfg aws.Config, s3Client *s3.Client) *stack.Stager {
	return stack.NewStager(s3Client, cfg.Region)
}
