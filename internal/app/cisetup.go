package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mapfold/geopipeline/internal/config"
	"github.com/mapfold/geopipeline/internal/github"
	"github.com/mapfold/geopipeline/internal/services"
)

// bucketSecretName is the repository secret that carries the pipeline bucket
// so the CI build can target the right stack.
const bucketSecretName = "PIPELINE_BUCKET_NAME"

// RepoValidator is the subset of the GitHub client the CI setup flow uses.
type RepoValidator interface {
	ValidateRepo(ctx context.Context, ref github.RepoRef) error
	PutSecret(ctx context.Context, ref github.RepoRef, name, value string) error
}

// RoleEnsurer yields the ARN of the project's service role, creating the role
// when it does not exist yet.
type RoleEnsurer interface {
	EnsureServiceRole(ctx context.Context, project string) (string, error)
}

// BuildManager manages the CI build project and its builds.
type BuildManager interface {
	EnsureProject(ctx context.Context, spec services.ProjectSpec) (string, error)
	StartBuild(ctx context.Context, projectName string) (string, error)
	ListProjects(ctx context.Context) ([]string, error)
}

// CISetup provisions the remote driver: a CodeBuild project bound to the
// GitHub repository, running the same deploy flow with credentials supplied
// through its service role.
type CISetup struct {
	github RepoValidator
	roles  RoleEnsurer
	builds BuildManager
	params config.ParameterStore
}

func NewCISetup(gh RepoValidator, roles RoleEnsurer, builds BuildManager, params config.ParameterStore) *CISetup {
	return &CISetup{github: gh, roles: roles, builds: builds, params: params}
}

// Run validates the GitHub credentials, ensures the service role and build
// project, and kicks off the first build. Steps run strictly in order so a
// credential failure stops everything before any AWS resource is touched.
func (s *CISetup) Run(ctx context.Context, cfg config.Config, ref github.RepoRef) error {
	logger := zerolog.Ctx(ctx)

	if err := s.github.ValidateRepo(ctx, ref); err != nil {
		return fmt.Errorf("failed to validate github repository: %w", err)
	}
	logger.Info().Str("repo", ref.String()).Msg("Validated github repository")

	roleArn, err := s.roles.EnsureServiceRole(ctx, cfg.ProjectName)
	if err != nil {
		return fmt.Errorf("failed to ensure service role: %w", err)
	}

	// The build runs this same driver, so its environment uses the variable
	// names the resolver recognizes. The token rides along directly because
	// it is never written to Parameter Store.
	env := sharedParameters(cfg)
	env["GITHUB_TOKEN"] = cfg.GithubToken
	env["ACTION"] = cfg.Action
	env["PROJECT_NAME"] = cfg.ProjectName

	spec := services.ProjectSpec{
		Name:           cfg.ProjectName,
		SourceLocation: fmt.Sprintf("https://github.com/%s.git", ref),
		ServiceRoleArn: roleArn,
		Environment:    env,
	}
	operation, err := s.builds.EnsureProject(ctx, spec)
	if err != nil {
		return fmt.Errorf("failed to ensure build project: %w", err)
	}
	logger.Info().Str("project", cfg.ProjectName).Str("operation", operation).Msg("Ensured build project")

	buildID, err := s.builds.StartBuild(ctx, cfg.ProjectName)
	if err != nil {
		return fmt.Errorf("failed to start build: %w", err)
	}
	logger.Info().Str("build_id", buildID).Msg("Started build")

	projects, err := s.builds.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to list build projects: %w", err)
	}
	logger.Info().Strs("projects", projects).Msg("Build projects in account")

	if err := s.params.Publish(ctx, cfg.ProjectName, sharedParameters(cfg)); err != nil {
		return fmt.Errorf("failed to publish shared parameters: %w", err)
	}

	if err := s.github.PutSecret(ctx, ref, bucketSecretName, cfg.BucketName); err != nil {
		return fmt.Errorf("failed to publish %s secret: %w", bucketSecretName, err)
	}
	logger.Info().Str("secret", bucketSecretName).Msg("Published repository secret")

	return nil
}

func sharedParameters(cfg config.Config) map[string]string {
	return map[string]string{
		"BUCKET_NAME":      cfg.BucketName,
		"ERROR_FOLDER":     cfg.ErrorFolder,
		"ANALYSIS_FOLDER":  cfg.AnalysisFolder,
		"GITHUB_REPO_NAME": cfg.GithubRepoName,
		"BEDROCK_MODEL_ID": cfg.BedrockModelID,
		"BEDROCK_REGION":   cfg.BedrockRegion,
	}
}
