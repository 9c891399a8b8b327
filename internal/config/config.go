// Package config resolves the pipeline parameter set once at the process
// boundary and hands it to every component by value. Precedence per field:
// environment variable > CLI flag > config file > interactive prompt > default.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/mapfold/geopipeline/internal/errors"
)

const (
	ActionDeploy  = "deploy"
	ActionDestroy = "destroy"

	DefaultErrorFolder    = "error"
	DefaultAnalysisFolder = "analysis"
	DefaultBedrockModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"
	DefaultBedrockRegion  = "us-west-2"

	DefaultFunctionBundle  = "build/function.zip"
	DefaultDepsLayerBundle = "build/layers/deps.zip"
	DefaultGeoLayerBundle  = "build/layers/geo.zip"
)

// Config is the resolved parameter set shared by the local and CI drivers.
type Config struct {
	Action         string `yaml:"action" validate:"required,oneof=deploy destroy"`
	BucketName     string `yaml:"bucket_name" validate:"required"`
	ErrorFolder    string `yaml:"error_folder" validate:"required"`
	AnalysisFolder string `yaml:"analysis_folder" validate:"required"`
	GithubToken    string `yaml:"github_token"`
	GithubURL      string `yaml:"github_url"`
	GithubRepoName string `yaml:"github_repo_name"`
	BedrockModelID string `yaml:"bedrock_model_id" validate:"required"`
	BedrockRegion  string `yaml:"bedrock_region" validate:"required"`

	// ProjectName is only consumed by the CI driver.
	ProjectName string `yaml:"project_name"`

	// Local bundle locations staged to the asset bucket before apply.
	FunctionBundle  string `yaml:"function_bundle"`
	DepsLayerBundle string `yaml:"deps_layer_bundle"`
	GeoLayerBundle  string `yaml:"geo_layer_bundle"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NormalizeAction lowercases and trims an action value so "Deploy " and
// "deploy" are treated identically.
func NormalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}

// Validate checks the invariants shared by both drivers. The action value
// must already be normalized.
func (c Config) Validate() error {
	if c.Action != ActionDeploy && c.Action != ActionDestroy {
		return apperrors.ErrInvalidAction
	}
	if c.BucketName == "" {
		return apperrors.ErrBucketRequired
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ValidateCI checks the additional fields the CI driver depends on.
func (c Config) ValidateCI() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ProjectName == "" {
		return fmt.Errorf("PROJECT_NAME is required")
	}
	if c.GithubToken == "" {
		return apperrors.ErrTokenRequired
	}
	if c.GithubRepoName == "" {
		return fmt.Errorf("GITHUB_REPO_NAME is required")
	}
	return nil
}

// StackParameters returns the seven values threaded into the provisioning
// manifest. The keys must match the template parameter names exactly.
func (c Config) StackParameters() map[string]string {
	return map[string]string{
		"BucketName":     c.BucketName,
		"ErrorFolder":    c.ErrorFolder,
		"AnalysisFolder": c.AnalysisFolder,
		"GithubToken":    c.GithubToken,
		"GithubRepoName": c.GithubRepoName,
		"BedrockModelId": c.BedrockModelID,
		"BedrockRegion":  c.BedrockRegion,
	}
}
