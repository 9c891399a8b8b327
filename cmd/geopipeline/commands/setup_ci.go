package commands

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/mapfold/geopipeline/internal/app"
	"github.com/mapfold/geopipeline/internal/config"
	"github.com/mapfold/geopipeline/internal/di"
	"github.com/mapfold/geopipeline/internal/errors"
	"github.com/mapfold/geopipeline/internal/github"
	"github.com/mapfold/geopipeline/internal/services"
	"github.com/mapfold/geopipeline/internal/stack"
)

// SetupCICommand returns the setup-ci command, which provisions the remote
// driver: a CodeBuild project that runs the deploy flow from GitHub.
func SetupCICommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "setup-ci",
		Usage: "Provision the CodeBuild project that deploys the pipeline",
		Description: `Validate the GitHub credentials, ensure the CodeBuild service role and
build project exist, and start the first build. The resolved parameter set is
published to Parameter Store so the build resolves the same configuration.`,
		Flags: append(sharedFlags(),
			&cli.StringFlag{
				Name:  "project-name",
				Usage: "CodeBuild project name",
			},
			&cli.StringFlag{
				Name:        "action",
				Usage:       "Action the build will run (deploy or destroy)",
				DefaultText: config.ActionDeploy,
			},
		),
		Action: setupCIAction,
	}
}

func setupCIAction(c *cli.Context) error {
	ctx := c.Context
	logger := zerolog.Ctx(ctx)

	resolver, err := newResolver(c)
	if err != nil {
		return err
	}

	project, err := resolver.Resolve(config.FieldProjectName)
	if err != nil {
		return err
	}

	action, err := resolver.Resolve(config.FieldAction)
	if err != nil {
		return err
	}
	action = config.NormalizeAction(action)
	if action == "" {
		action = config.ActionDeploy
	}
	if action != config.ActionDeploy && action != config.ActionDestroy {
		logger.Error().Str("action", action).Msg("Unknown action")
		return cli.Exit(errors.ErrInvalidAction.Error(), 1)
	}

	container, err := di.New(config.Config{})
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}

	store := di.MustGet[config.ParameterStore](container)
	if project != "" {
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
	cfg.ProjectName = project
	cfg.Action = action

	if err := resolveToken(ctx, container, &cfg); err != nil {
		return err
	}

	ref, err := resolveRepoRef(resolver, cfg)
	if err != nil {
		return err
	}
	cfg.GithubRepoName = ref.String()

	if err := cfg.ValidateCI(); err != nil {
		return err
	}

	stsClient := di.MustGet[*sts.Client](container)
	identity, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("failed to get caller identity: %w", err)
	}
	logger.Info().
		Str("account", aws.ToString(identity.Account)).
		Str("project", cfg.ProjectName).
		Msg("Setting up CI")

	setup := app.NewCISetup(
		github.NewClient(cfg.GithubToken),
		di.MustGet[*services.RoleProvisioner](container),
		di.MustGet[*services.BuildProjectManager](container),
		store,
	)
	if err := setup.Run(ctx, cfg, ref); err != nil {
		return err
	}

	fmt.Printf("\n✓ CI setup complete\n")
	fmt.Printf("  Project: %s\n", cfg.ProjectName)
	fmt.Printf("  Repo:    %s\n", ref)
	fmt.Printf("  Stack:   %s\n", stack.StackName(cfg.BucketName))
	return nil
}

// resolveRepoRef prefers an explicit owner/name pair; otherwise it parses the
// repository URL, falling back to an interactive prompt and confirmation.
func resolveRepoRef(resolver *config.Resolver, cfg config.Config) (github.RepoRef, error) {
	if ref, ok := parseOwnerRepo(cfg.GithubRepoName); ok {
		return ref, nil
	}
	if !resolver.Interactive {
		if ref, ok := github.ParseRepoURL(cfg.GithubURL); ok {
			return ref, nil
		}
		return github.RepoRef{}, errors.ErrRepoRefRequired
	}
	return github.ResolveRepo(resolver.Prompter, cfg.GithubURL)
}
