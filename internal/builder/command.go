package builder

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/logger"
	"github.com/thomas-vilte/materelease/internal/models"
)

const versionPlaceholder = "{version}"

// CommandRunner runs a user-configured build command and collects the files
// matched by the artifact globs once it exits zero.
type CommandRunner struct {
	command   []string
	artifacts []string
	workDir   string
}

// NewCommandRunner builds a runner for command. Any "{version}" in an
// argument is replaced by the request version. workDir, if relative, is
// taken from the project root.
func NewCommandRunner(command, artifacts []string, workDir string) *CommandRunner {
	return &CommandRunner{command: command, artifacts: artifacts, workDir: workDir}
}

func (r *CommandRunner) Run(ctx context.Context, req Request) (models.BuildResult, error) {
	log := logger.FromContext(ctx)

	if len(r.command) == 0 {
		return models.BuildResult{}, errors.ErrBuildLaunch.WithContext("reason", "empty command")
	}

	args := make([]string, len(r.command))
	for i, a := range r.command {
		args[i] = strings.ReplaceAll(a, versionPlaceholder, req.Version)
	}

	dir := resolve(req.Dir, r.workDir)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "MATERELEASE_VERSION="+req.Version)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Info("running build command", "command", strings.Join(args, " "), "dir", dir)

	err := cmd.Run()
	result := models.BuildResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			log.Warn("build command failed", "exit_code", result.ExitCode)
			return result, nil
		}
		return result, errors.ErrBuildLaunch.WithError(err).WithContext("command", args[0])
	}

	artifacts, err := collectArtifacts(req.Dir, r.artifacts)
	if err != nil {
		return result, errors.ErrBuildFailed.WithError(err).WithContext("artifacts", r.artifacts)
	}
	result.Artifacts = artifacts

	log.Info("build command finished", "assets", len(artifacts))
	return result, nil
}

func resolve(root, path string) string {
	if path == "" {
		return root
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// collectArtifacts expands globs against root into sorted absolute paths,
// skipping directories and duplicates.
func collectArtifacts(root string, globs []string) ([]string, error) {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, g := range globs {
		matches, err := filepath.Glob(resolve(root, g))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			abs, err := filepath.Abs(m)
			if err != nil {
				return nil, err
			}
			if _, ok := seen[abs]; ok {
				continue
			}
			seen[abs] = struct{}{}
			out = append(out, abs)
		}
	}
	sort.Strings(out)
	return out, nil
}
