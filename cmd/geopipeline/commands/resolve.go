// Package commands wires the CLI surface: flag definitions, configuration
// resolution, and the deploy/destroy and CI-setup entry points.
package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mapfold/geopipeline/internal/config"
	"github.com/mapfold/geopipeline/internal/di"
	"github.com/mapfold/geopipeline/internal/github"
	"github.com/mapfold/geopipeline/internal/interaction"
	"github.com/mapfold/geopipeline/internal/services"
)

// sharedFlags are accepted by both drivers. Environment variables take
// precedence over flags so a CI build can override everything without
// touching the buildspec command line.
func sharedFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to a YAML config file",
		},
		&cli.StringFlag{
			Name:  "bucket-name",
			Usage: "S3 bucket that receives raster map uploads",
		},
		&cli.StringFlag{
			Name:        "error-folder",
			Usage:       "Folder for failed extractions",
			DefaultText: config.DefaultErrorFolder,
		},
		&cli.StringFlag{
			Name:        "analysis-folder",
			Usage:       "Folder for extraction results",
			DefaultText: config.DefaultAnalysisFolder,
		},
		&cli.StringFlag{
			Name:  "github-token",
			Usage: "GitHub personal access token",
		},
		&cli.StringFlag{
			Name:  "github-url",
			Usage: "GitHub repository URL (https or ssh)",
		},
		&cli.StringFlag{
			Name:  "github-repo",
			Usage: "GitHub repository in owner/name form",
		},
		&cli.StringFlag{
			Name:        "bedrock-model-id",
			Usage:       "Bedrock model used for metadata extraction",
			DefaultText: config.DefaultBedrockModelID,
		},
		&cli.StringFlag{
			Name:        "bedrock-region",
			Usage:       "Region hosting the Bedrock model",
			DefaultText: config.DefaultBedrockRegion,
		},
		&cli.BoolFlag{
			Name:  "non-interactive",
			Usage: "Never prompt; fail or fall back to defaults instead",
		},
	}
}

// newResolver builds the layered resolver shared by both drivers. Prompts
// are enabled only for a human at a terminal, never inside a build.
func newResolver(c *cli.Context) (*config.Resolver, error) {
	var file map[string]string
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	interactive := !c.Bool("non-interactive") &&
		os.Getenv("CODEBUILD_BUILD_ID") == "" &&
		os.Getenv("CI") == ""

	return &config.Resolver{
		Flags:       c,
		File:        file,
		Prompter:    interaction.HuhPrompter{},
		Interactive: interactive,
	}, nil
}

// resolveToken fills in the GitHub token from Secrets Manager when the
// environment names a secret instead of carrying the token directly.
func resolveToken(ctx context.Context, container di.Container, cfg *config.Config) error {
	if cfg.GithubToken != "" {
		return nil
	}
	secretPath := os.Getenv("GITHUB_TOKEN_SECRET")
	if secretPath == "" {
		return nil
	}

	secrets := di.MustGet[*services.SecretsService](container)
	token, err := secrets.GetGitHubToken(ctx, secretPath)
	if err != nil {
		return fmt.Errorf("failed to resolve github token from secret: %w", err)
	}
	cfg.GithubToken = token
	return nil
}

// parseOwnerRepo splits an owner/name pair as carried by GITHUB_REPO_NAME.
func parseOwnerRepo(s string) (github.RepoRef, bool) {
	owner, name, found := strings.Cut(strings.TrimSpace(s), "/")
	if !found || owner == "" || name == "" {
		return github.RepoRef{}, false
	}
	return github.RepoRef{Owner: owner, Name: name}, true
}
