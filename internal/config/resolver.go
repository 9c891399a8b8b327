package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mapfold/geopipeline/internal/interaction"
)

// FlagSource is the slice of urfave/cli's Context the resolver needs.
type FlagSource interface {
	String(name string) string
	IsSet(name string) bool
}

// Field describes one configuration value and everything that may supply it.
type Field struct {
	Flag    string
	Env     []string
	FileKey string
	Prompt  string
	Secret  bool
	Default string
}

// WithoutPrompt returns a copy of the field that never prompts, for callers
// reading a value opportunistically.
func (f Field) WithoutPrompt() Field {
	f.Prompt = ""
	return f
}

// Resolver walks the configuration layers for each field. Environment
// variables win over flags, flags over the config file, the file over shared
// CI parameters, and interactive prompts are a last resort before defaults.
type Resolver struct {
	Lookup      func(string) string
	Flags       FlagSource
	File        map[string]string
	Shared      map[string]string
	Prompter    interaction.Prompter
	Interactive bool
}

// LoadFile reads a flat YAML config file into a key/value map.
func LoadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	values := make(map[string]string)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return values, nil
}

// Resolve returns the value for a single field, consulting each layer in
// precedence order.
func (r *Resolver) Resolve(f Field) (string, error) {
	lookup := r.Lookup
	if lookup == nil {
		lookup = os.Getenv
	}

	for _, env := range f.Env {
		if v := lookup(env); v != "" {
			return v, nil
		}
	}
	// A flag counts only when it was passed. urfave/cli reports the
	// registered default from String() either way, and that must not shadow
	// the file and shared layers.
	if r.Flags != nil && f.Flag != "" && r.Flags.IsSet(f.Flag) {
		if v := r.Flags.String(f.Flag); v != "" {
			return v, nil
		}
	}
	if v := r.File[f.FileKey]; v != "" {
		return v, nil
	}
	if len(f.Env) > 0 {
		if v := r.Shared[f.Env[0]]; v != "" {
			return v, nil
		}
	}
	if r.Interactive && r.Prompter != nil && f.Prompt != "" {
		var (
			v   string
			err error
		)
		if f.Secret {
			v, err = r.Prompter.Secret(f.Prompt)
		} else {
			v, err = r.Prompter.Input(f.Prompt)
		}
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
	}
	return f.Default, nil
}

// Field specs shared by the local and CI drivers. The env var names are the
// external contract and must not drift.
var (
	FieldAction = Field{
		Flag: "action", Env: []string{"ACTION"}, FileKey: "action",
	}
	FieldBucketName = Field{
		Flag: "bucket-name", Env: []string{"BUCKET_NAME"}, FileKey: "bucket_name",
		Prompt: "S3 bucket name (globally unique)",
	}
	FieldErrorFolder = Field{
		Flag: "error-folder", Env: []string{"ERROR_FOLDER"}, FileKey: "error_folder",
		Default: DefaultErrorFolder,
	}
	FieldAnalysisFolder = Field{
		Flag: "analysis-folder", Env: []string{"ANALYSIS_FOLDER"}, FileKey: "analysis_folder",
		Default: DefaultAnalysisFolder,
	}
	FieldGithubToken = Field{
		Flag: "github-token", Env: []string{"GITHUB_TOKEN", "CLIENT_GITHUB_TOKEN"}, FileKey: "github_token",
		Prompt: "GitHub token", Secret: true,
	}
	FieldGithubURL = Field{
		Flag: "github-url", Env: []string{"GITHUB_URL", "CLIENT_GITHUB_URL"}, FileKey: "github_url",
		Prompt: "GitHub repository URL",
	}
	FieldGithubRepoName = Field{
		Flag: "github-repo", Env: []string{"GITHUB_REPO_NAME"}, FileKey: "github_repo_name",
	}
	FieldBedrockModelID = Field{
		Flag: "bedrock-model-id", Env: []string{"BEDROCK_MODEL_ID"}, FileKey: "bedrock_model_id",
		Default: DefaultBedrockModelID,
	}
	FieldBedrockRegion = Field{
		Flag: "bedrock-region", Env: []string{"BEDROCK_REGION"}, FileKey: "bedrock_region",
		Default: DefaultBedrockRegion,
	}
	FieldProjectName = Field{
		Flag: "project-name", Env: []string{"PROJECT_NAME"}, FileKey: "project_name",
		Prompt: "CodeBuild project name",
	}
	FieldFunctionBundle = Field{
		Flag: "function-bundle", Env: []string{"FUNCTION_BUNDLE"}, FileKey: "function_bundle",
		Default: DefaultFunctionBundle,
	}
	FieldDepsLayerBundle = Field{
		Flag: "deps-layer-bundle", Env: []string{"DEPS_LAYER_BUNDLE"}, FileKey: "deps_layer_bundle",
		Default: DefaultDepsLayerBundle,
	}
	FieldGeoLayerBundle = Field{
		Flag: "geo-layer-bundle", Env: []string{"GEO_LAYER_BUNDLE"}, FileKey: "geo_layer_bundle",
		Default: DefaultGeoLayerBundle,
	}
)

var allFields = []struct {
	field  Field
	assign func(*Config, string)
}{
	{FieldAction, func(c *Config, v string) { c.Action = NormalizeAction(v) }},
	{FieldBucketName, func(c *Config, v string) { c.BucketName = v }},
	{FieldErrorFolder, func(c *Config, v string) { c.ErrorFolder = v }},
	{FieldAnalysisFolder, func(c *Config, v string) { c.AnalysisFolder = v }},
	{FieldGithubToken, func(c *Config, v string) { c.GithubToken = v }},
	{FieldGithubURL, func(c *Config, v string) { c.GithubURL = v }},
	{FieldGithubRepoName, func(c *Config, v string) { c.GithubRepoName = v }},
	{FieldBedrockModelID, func(c *Config, v string) { c.BedrockModelID = v }},
	{FieldBedrockRegion, func(c *Config, v string) { c.BedrockRegion = v }},
	{FieldFunctionBundle, func(c *Config, v string) { c.FunctionBundle = v }},
	{FieldDepsLayerBundle, func(c *Config, v string) { c.DepsLayerBundle = v }},
	{FieldGeoLayerBundle, func(c *Config, v string) { c.GeoLayerBundle = v }},
}

// ResolveConfig resolves every field once and returns the assembled Config.
// Validation is left to the caller so the action check can happen before any
// remote call. ProjectName is not included; only the CI driver resolves it,
// via FieldProjectName.
func (r *Resolver) ResolveConfig() (Config, error) {
	var cfg Config
	for _, spec := range allFields {
		v, err := r.Resolve(spec.field)
		if err != nil {
			return Config{}, fmt.Errorf("failed to resolve %s: %w", spec.field.FileKey, err)
		}
		spec.assign(&cfg, v)
	}
	return cfg, nil
}
