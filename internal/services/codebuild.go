package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	cbtypes "github.com/aws/aws-sdk-go-v2/service/codebuild/types"
	"github.com/rs/zerolog"

	apperrors "github.com/mapfold/geopipeline/internal/errors"
)

const (
	buildImage       = "aws/codebuild/standard:7.0"
	buildComputeType = cbtypes.ComputeTypeBuildGeneral1Small
)

// CodeBuildAPI is the subset of the CodeBuild client the manager uses.
type CodeBuildAPI interface {
	BatchGetProjects(ctx context.Context, params *codebuild.BatchGetProjectsInput, optFns ...func(*codebuild.Options)) (*codebuild.BatchGetProjectsOutput, error)
	CreateProject(ctx context.Context, params *codebuild.CreateProjectInput, optFns ...func(*codebuild.Options)) (*codebuild.CreateProjectOutput, error)
	UpdateProject(ctx context.Context, params *codebuild.UpdateProjectInput, optFns ...func(*codebuild.Options)) (*codebuild.UpdateProjectOutput, error)
	StartBuild(ctx context.Context, params *codebuild.StartBuildInput, optFns ...func(*codebuild.Options)) (*codebuild.StartBuildOutput, error)
	ListProjects(ctx context.Context, params *codebuild.ListProjectsInput, optFns ...func(*codebuild.Options)) (*codebuild.ListProjectsOutput, error)
}

// ProjectSpec describes the CodeBuild project wired to the source repository.
type ProjectSpec struct {
	Name           string
	SourceLocation string
	ServiceRoleArn string
	Environment    map[string]string
}

// BuildProjectManager creates or updates the CI build project and starts
// builds on it. It does not wait for build completion; its responsibility
// ends at triggering.
type BuildProjectManager struct {
	client CodeBuildAPI
}

func NewBuildProjectManager(client CodeBuildAPI) *BuildProjectManager {
	return &BuildProjectManager{client: client}
}

// EnsureProject checks for an existing project first, updates it in place
// when present and creates it otherwise. A create that still races an
// existing project surfaces as ErrProjectExists so the caller can decide
// whether to ignore it.
func (m *BuildProjectManager) EnsureProject(ctx context.Context, spec ProjectSpec) (operation string, err error) {
	logger := zerolog.Ctx(ctx)

	existing, err := m.client.BatchGetProjects(ctx, &codebuild.BatchGetProjectsInput{
		Names: []string{spec.Name},
	})
	if err != nil {
		return "", fmt.Errorf("failed to look up project %s: %w", spec.Name, err)
	}

	source := &cbtypes.ProjectSource{
		Type:     cbtypes.SourceTypeGithub,
		Location: aws.String(spec.SourceLocation),
	}
	environment := &cbtypes.ProjectEnvironment{
		ComputeType:          buildComputeType,
		Image:                aws.String(buildImage),
		Type:                 cbtypes.EnvironmentTypeLinuxContainer,
		EnvironmentVariables: environmentVariables(spec.Environment),
	}
	artifacts := &cbtypes.ProjectArtifacts{
		Type: cbtypes.ArtifactsTypeNoArtifacts,
	}

	if len(existing.Projects) > 0 {
		logger.Info().Str("project", spec.Name).Msg("Build project exists, updating in place")
		_, err = m.client.UpdateProject(ctx, &codebuild.UpdateProjectInput{
			Name:        aws.String(spec.Name),
			Source:      source,
			Artifacts:   artifacts,
			Environment: environment,
			ServiceRole: aws.String(spec.ServiceRoleArn),
		})
		if err != nil {
			return "", fmt.Errorf("failed to update project %s: %w", spec.Name, err)
		}
		return "UPDATE", nil
	}

	logger.Info().Str("project", spec.Name).Msg("Creating build project")
	_, err = m.client.CreateProject(ctx, &codebuild.CreateProjectInput{
		Name:        aws.String(spec.Name),
		Source:      source,
		Artifacts:   artifacts,
		Environment: environment,
		ServiceRole: aws.String(spec.ServiceRoleArn),
	})
	if err != nil {
		var exists *cbtypes.ResourceAlreadyExistsException
		if errors.As(err, &exists) {
			return "", fmt.Errorf("%w: %s", apperrors.ErrProjectExists, spec.Name)
		}
		return "", fmt.Errorf("failed to create project %s: %w", spec.Name, err)
	}
	return "CREATE", nil
}

// StartBuild triggers a build and returns its id without waiting for the
// outcome.
func (m *BuildProjectManager) StartBuild(ctx context.Context, projectName string) (string, error) {
	result, err := m.client.StartBuild(ctx, &codebuild.StartBuildInput{
		ProjectName: aws.String(projectName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to start build for %s: %w", projectName, err)
	}
	if result.Build == nil || result.Build.Id == nil {
		return "", fmt.Errorf("start build for %s returned no build id", projectName)
	}
	return *result.Build.Id, nil
}

// ListProjects returns the names of all build projects for operator
// visibility.
func (m *BuildProjectManager) ListProjects(ctx context.Context) ([]string, error) {
	var names []string
	var nextToken *string
	for {
		result, err := m.client.ListProjects(ctx, &codebuild.ListProjectsInput{
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list projects: %w", err)
		}
		names = append(names, result.Projects...)
		if result.NextToken == nil {
			break
		}
		nextToken = result.NextToken
	}
	return names, nil
}

func environmentVariables(env map[string]string) []cbtypes.EnvironmentVariable {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vars := make([]cbtypes.EnvironmentVariable, 0, len(keys))
	for _, k := range keys {
		vars = append(vars, cbtypes.EnvironmentVariable{
			Name:  aws.String(k),
			Value: aws.String(env[k]),
			Type:  cbtypes.EnvironmentVariableTypePlaintext,
		})
	}
	return vars
}
