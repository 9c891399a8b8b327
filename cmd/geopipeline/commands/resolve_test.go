package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/mapfold/geopipeline/internal/config"
	"github.com/mapfold/geopipeline/internal/github"
)

// resolveWithFlags runs the resolver against a real CLI invocation so the
// flag layer behaves exactly as it does in production.
func resolveWithFlags(t *testing.T, args []string, file map[string]string, field config.Field) string {
	t.Helper()

	var got string
	app := &cli.App{
		Flags: sharedFlags(),
		Action: func(c *cli.Context) error {
			r := config.Resolver{
				Lookup: func(string) string { return "" },
				Flags:  c,
				File:   file,
			}
			v, err := r.Resolve(field)
			got = v
			return err
		},
	}
	require.NoError(t, app.Run(append([]string{"geopipeline"}, args...)))
	return got
}

func TestFlagLayerOnlyCountsWhenPassed(t *testing.T) {
	file := map[string]string{"error_folder": "failed"}

	t.Run("file value survives an unpassed flag", func(t *testing.T) {
		got := resolveWithFlags(t, nil, file, config.FieldErrorFolder)
		assert.Equal(t, "failed", got)
	})

	t.Run("passed flag still wins over file", func(t *testing.T) {
		got := resolveWithFlags(t, []string{"--error-folder", "rejects"}, file, config.FieldErrorFolder)
		assert.Equal(t, "rejects", got)
	})

	t.Run("default applies when no layer answers", func(t *testing.T) {
		got := resolveWithFlags(t, nil, nil, config.FieldErrorFolder)
		assert.Equal(t, config.DefaultErrorFolder, got)
	})
}

func TestParseOwnerRepo(t *testing.T) {
	tests := []struct {
		in     string
		want   github.RepoRef
		wantOK bool
	}{
		{"mapfold/map-pipeline", github.RepoRef{Owner: "mapfold", Name: "map-pipeline"}, true},
		{"  mapfold/map-pipeline  ", github.RepoRef{Owner: "mapfold", Name: "map-pipeline"}, true},
		{"mapfold", github.RepoRef{}, false},
		{"/map-pipeline", github.RepoRef{}, false},
		{"mapfold/", github.RepoRef{}, false},
		{"", github.RepoRef{}, false},
	}

	for _, tt := range tests {
		got, ok := parseOwnerRepo(tt.in)
		assert.Equal(t, tt.wantOK, ok, "parseOwnerRepo(%q)", tt.in)
		if tt.wantOK {
			assert.Equal(t, tt.want, got)
		}
	}
}
