package builder

import (
	"context"

	"github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/models"
)

// Request describes one build. Dir is the project root; relative build
// directories and artifact globs resolve against it.
type Request struct {
	Dir     string
	Version string
	Commit  string
}

// Runner performs a build. A build that ran and failed is reported through
// BuildResult.ExitCode; the error return is for builds that could not run.
type Runner interface {
	Run(ctx context.Context, req Request) (models.BuildResult, error)
}

// NewRunner picks the runner for the configured build mode.
func NewRunner(cfg config.BuildConfig) (Runner, error) {
	switch cfg.Mode {
	case config.BuildModeCommand, "":
		if len(cfg.Command) == 0 {
			return nil, errors.ErrConfigInvalid.WithContext("field", "build.command").
				WithSuggestion("Set build.command in config.toml, e.g. command = [\"make\", \"installer\"]")
		}
		return NewCommandRunner(cfg.Command, cfg.Artifacts, cfg.Dir), nil
	case config.BuildModeGo:
		opts := []Option{}
		if cfg.Dir != "" {
			opts = append(opts, WithBuildDir(cfg.Dir))
		}
		if len(cfg.Targets) > 0 {
			targets, err := ParseTargets(cfg.Targets)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithTargets(targets...))
		}
		main := cfg.Main
		if main == "" {
			main = "."
		}
		return NewGoRunner(main, cfg.Binary, opts...), nil
	default:
		return nil, errors.ErrConfigInvalid.WithContext("build_mode", cfg.Mode)
	}
}
