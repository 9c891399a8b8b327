package main

import (
	"context"
	"os"

	"github.com/mapfold/geopipeline/cmd/geopipeline/commands"
	"github.com/mapfold/geopipeline/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "geopipeline",
		Usage: "Provisioner for the raster map georeferencing pipeline",
		Description: `Deploys the serverless pipeline that watches an S3 bucket for raster map
uploads and extracts geographic metadata from each map.

This tool provides commands for:
  - Deploying or destroying the pipeline stack directly
  - Setting up a CodeBuild project that deploys from GitHub`,
		Commands: []*cli.Command{
			commands.RunCommand(&logger),
			commands.SetupCICommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
