package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/mapfold/geopipeline/internal/app"
	"github.com/mapfold/geopipeline/internal/config"
	"github.com/mapfold/geopipeline/internal/di"
	"github.com/mapfold/geopipeline/internal/errors"
	"github.com/mapfold/geopipeline/internal/github"
	"github.com/mapfold/geopipeline/internal/stack"
)

// RunCommand returns the run command, the deploy/destroy driver executed
// locally or from inside the CI build.
func RunCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Deploy or destroy the map pipeline stack",
		ArgsUsage: "[deploy|destroy]",
		Description: `Resolve the pipeline configuration, stage the function and layer bundles,
and apply (or tear down) the CloudFormation stack that watches the map bucket.

The action comes from the first argument, the ACTION environment variable, or
the --action flag, in that order of preference.`,
		Flags: append(sharedFlags(),
			&cli.StringFlag{
				Name:  "action",
				Usage: "deploy or destroy",
			},
			&cli.StringFlag{
				Name:        "function-bundle",
				Usage:       "Path to the packaged Lambda function zip",
				DefaultText: config.DefaultFunctionBundle,
			},
			&cli.StringFlag{
				Name:        "deps-layer-bundle",
				Usage:       "Path to the dependencies layer zip",
				DefaultText: config.DefaultDepsLayerBundle,
			},
			&cli.StringFlag{
				Name:        "geo-layer-bundle",
				Usage:       "Path to the geospatial layer zip",
				DefaultText: config.DefaultGeoLayerBundle,
			},
		),
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	ctx := c.Context
	logger := zerolog.Ctx(ctx)

	resolver, err := newResolver(c)
	if err != nil {
		return err
	}

	// The action is validated before anything else so a typo never reaches
	// AWS. An argument beats the resolved layers.
	action := config.NormalizeAction(c.Args().First())
	if action == "" {
		resolved, err := resolver.Resolve(config.FieldAction)
		if err != nil {
			return err
		}
		action = config.NormalizeAction(resolved)
	}
	if action != config.ActionDeploy && action != config.ActionDestroy {
		logger.Error().Str("action", action).Msg("Unknown action")
		return cli.Exit(errors.ErrInvalidAction.Error(), 1)
	}

	container, err := di.New(config.Config{})
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}

	// A build injects its project name so shared parameters published at
	// setup time fill any gaps in the environment.
	if project, err := resolver.Resolve(config.FieldProjectName.WithoutPrompt()); err == nil && project != "" {
		store := di.MustGet[config.ParameterStore](container)
		shared, err := store.Load(ctx, project)
		if err != nil {
			return fmt.Errorf("failed to load shared parameters: %w", err)
		}
		resolver.Shared = shared
	}

	cfg, err := resolver.ResolveConfig()
	if err != nil {
		return err
	}
	cfg.Action = action

	if err := resolveToken(ctx, container, &cfg); err != nil {
		return err
	}
	if cfg.GithubRepoName == "" {
		if ref, ok := github.ParseRepoURL(cfg.GithubURL); ok {
			cfg.GithubRepoName = ref.String()
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	driver := app.NewDriver(
		di.MustGet[*stack.Deployer](container),
		di.MustGet[*stack.Stager](container),
	)
	outputs, err := driver.Run(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("\n✓ %s complete\n", cfg.Action)
	if outputs != nil {
		fmt.Printf("  Bucket:   %s\n", outputs.BucketName)
		fmt.Printf("  Function: %s\n", outputs.FunctionName)
		fmt.Printf("  %s\n", outputs.UploadInstruction)
	}
	return nil
}
