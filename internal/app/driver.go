// Package app holds the deploy/destroy and CI-setup flows shared by the
// command layer. Commands resolve configuration and exit codes; the flows
// here do the work.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mapfold/geopipeline/internal/config"
	"github.com/mapfold/geopipeline/internal/errors"
	"github.com/mapfold/geopipeline/internal/stack"
)

// Applier is the stack lifecycle surface the driver needs.
type Applier interface {
	Apply(ctx context.Context, bucketName string, parameters map[string]string, assets stack.AssetLocations, prefixes []string) (*stack.Outputs, error)
	Destroy(ctx context.Context, bucketName string) error
}

// AssetStager uploads the function and layer bundles before an apply.
type AssetStager interface {
	Stage(ctx context.Context, bucketName, functionBundle, depsLayerBundle, geoLayerBundle string) (stack.AssetLocations, error)
}

// Driver is the local deploy/destroy entry point. The same resolved
// parameter set is forwarded into both branches.
type Driver struct {
	applier Applier
	stager  AssetStager
}

func NewDriver(applier Applier, stager AssetStager) *Driver {
	return &Driver{applier: applier, stager: stager}
}

// Run dispatches on the already-normalized action. The action must have been
// validated before any AWS client was touched; the check here is a backstop.
func (d *Driver) Run(ctx context.Context, cfg config.Config) (*stack.Outputs, error) {
	logger := zerolog.Ctx(ctx)

	switch cfg.Action {
	case config.ActionDeploy:
		assets, err := d.stager.Stage(ctx, cfg.BucketName, cfg.FunctionBundle, cfg.DepsLayerBundle, cfg.GeoLayerBundle)
		if err != nil {
			return nil, fmt.Errorf("failed to stage assets: %w", err)
		}
		outputs, err := d.applier.Apply(
			ctx,
			cfg.BucketName,
			cfg.StackParameters(),
			assets,
			stack.Prefixes(cfg.ErrorFolder, cfg.AnalysisFolder),
		)
		if err != nil {
			return nil, err
		}
		return outputs, nil

	case config.ActionDestroy:
		if err := d.applier.Destroy(ctx, cfg.BucketName); err != nil {
			return nil, err
		}
		return nil, nil

	default:
		logger.Error().Str("action", cfg.Action).Msg("Unknown action")
		return nil, errors.ErrInvalidAction
	}
}
