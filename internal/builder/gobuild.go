package builder

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/logger"
	"github.com/thomas-vilte/materelease/internal/models"
	"golang.org/x/sync/errgroup"
)

type BuildTarget struct {
	GOOS   string
	GOARCH string
}

func (t BuildTarget) String() string {
	return t.GOOS + "/" + t.GOARCH
}

var defaultTargets = []BuildTarget{
	{"linux", "amd64"},
	{"linux", "arm64"},
	{"windows", "amd64"},
	{"windows", "arm64"},
	{"darwin", "amd64"},
	{"darwin", "arm64"},
}

// ParseTargets reads "goos/goarch" pairs.
func ParseTargets(specs []string) ([]BuildTarget, error) {
	targets := make([]BuildTarget, 0, len(specs))
	for _, s := range specs {
		goos, goarch, ok := strings.Cut(s, "/")
		if !ok || goos == "" || goarch == "" {
			return nil, errors.ErrConfigInvalid.WithContext("build_target", s).
				WithSuggestion("Targets look like \"linux/amd64\"")
		}
		targets = append(targets, BuildTarget{GOOS: goos, GOARCH: goarch})
	}
	return targets, nil
}

// GoRunner cross-compiles a Go main package for every target in parallel
// and packages each binary (zip for windows, tar.gz elsewhere).
type GoRunner struct {
	mainPath   string
	binaryName string
	buildDir   string
	date       string
	targets    []BuildTarget
	progress   chan<- models.BuildProgress
}

type Option func(*GoRunner)

func WithBuildDir(dir string) Option {
	return func(b *GoRunner) {
		b.buildDir = dir
	}
}

func WithDate(date string) Option {
	return func(b *GoRunner) {
		b.date = date
	}
}

func WithTargets(targets ...BuildTarget) Option {
	return func(b *GoRunner) {
		b.targets = targets
	}
}

// WithProgress makes the runner report per-platform progress on ch. Sends
// block, so the reader must keep up.
func WithProgress(ch chan<- models.BuildProgress) Option {
	return func(b *GoRunner) {
		b.progress = ch
	}
}

func NewGoRunner(mainPath, binaryName string, opts ...Option) *GoRunner {
	b := &GoRunner{
		mainPath:   mainPath,
		binaryName: binaryName,
		buildDir:   "dist",
		date:       time.Now().UTC().Format(time.RFC3339),
		targets:    defaultTargets,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// targetFailure is a go build that ran and exited non-zero.
type targetFailure struct {
	target   BuildTarget
	exitCode int
	output   string
	err      error
}

func (e *targetFailure) Error() string {
	return fmt.Sprintf("build %s: %v", e.target, e.err)
}

func (e *targetFailure) Unwrap() error {
	return e.err
}

func (b *GoRunner) Targets() []BuildTarget {
	return b.targets
}

func (b *GoRunner) Run(ctx context.Context, req Request) (models.BuildResult, error) {
	if req.Version == "" {
		return models.BuildResult{}, errors.ErrBuildNoVersion
	}
	if b.buildDir == "" {
		return models.BuildResult{}, errors.ErrBuildNoBuildDir
	}

	commit := req.Commit
	if commit == "" {
		commit = headCommit(ctx, req.Dir)
	}
	if commit == "" {
		return models.BuildResult{}, errors.ErrBuildNoCommit
	}

	binaryName := b.binaryName
	if binaryName == "" {
		binaryName = filepath.Base(req.Dir)
	}

	job := &goBuild{
		GoRunner:   b,
		root:       req.Dir,
		outDir:     resolve(req.Dir, b.buildDir),
		binaryName: binaryName,
		version:    req.Version,
		commit:     commit,
	}
	if err := os.MkdirAll(job.outDir, 0755); err != nil {
		return models.BuildResult{}, errors.ErrBuildLaunch.WithError(err).WithContext("build_dir", job.outDir)
	}

	archives, err := job.buildAll(ctx)
	if err != nil {
		var tf *targetFailure
		if stderrors.As(err, &tf) {
			return models.BuildResult{
				ExitCode: tf.exitCode,
				Stderr:   fmt.Sprintf("%s:\n%s", tf.target, tf.output),
			}, nil
		}
		return models.BuildResult{}, err
	}

	sort.Strings(archives)
	return models.BuildResult{
		Stdout:    fmt.Sprintf("built %d archives", len(archives)),
		Artifacts: archives,
	}, nil
}

func headCommit(ctx context.Context, dir string) string {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--short", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// goBuild holds the per-request values of one Run.
type goBuild struct {
	*GoRunner
	root       string
	outDir     string
	binaryName string
	version    string
	commit     string
}

func (b *goBuild) report(p models.BuildProgress) {
	if b.progress != nil {
		b.progress <- p
	}
}

func (b *goBuild) buildBinary(ctx context.Context, target BuildTarget) (string, error) {
	binaryName := b.binaryName
	if target.GOOS == "windows" {
		binaryName += ".exe"
	}

	outputPath := filepath.Join(b.outDir, fmt.Sprintf("%s_%s_%s", binaryName, target.GOOS, target.GOARCH))

	ldflags := fmt.Sprintf(
		"-s -w -X main.version=%s -X main.commit=%s -X main.date=%s",
		b.version,
		b.commit,
		b.date,
	)

	cmd := exec.CommandContext(ctx, "go", "build",
		"-o", outputPath,
		"-ldflags", ldflags,
		"-trimpath",
		b.mainPath,
	)
	cmd.Dir = b.root
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=0",
		fmt.Sprintf("GOOS=%s", target.GOOS),
		fmt.Sprintf("GOARCH=%s", target.GOARCH),
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) && ctx.Err() == nil {
			return "", &targetFailure{target: target, exitCode: exitErr.ExitCode(), output: string(output), err: err}
		}
		return "", errors.ErrBuildLaunch.WithError(err).
			WithContext("platform", target.String()).
			WithContext("output", string(output))
	}

	return outputPath, nil
}

func (b *goBuild) packageBinary(binaryPath string, target BuildTarget) (string, error) {
	binaryName := b.binaryName
	if target.GOOS == "windows" {
		binaryName += ".exe"
	}

	version := strings.TrimPrefix(b.version, "v")
	base := fmt.Sprintf("%s_%s_%s_%s", strings.ToLower(b.binaryName), version, target.GOOS, mapArch(target.GOARCH))

	if target.GOOS == "windows" {
		archivePath := filepath.Join(b.outDir, base+".zip")
		if err := createZip(binaryPath, archivePath, binaryName); err != nil {
			return "", errors.NewAppError(errors.TypeBuild, "failed to create zip archive", err)
		}
		return archivePath, nil
	}

	archivePath := filepath.Join(b.outDir, base+".tar.gz")
	if err := createTarGz(binaryPath, archivePath, binaryName); err != nil {
		return "", errors.NewAppError(errors.TypeBuild, "failed to create tar.gz archive", err)
	}
	return archivePath, nil
}

func mapArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "386":
		return "i386"
	default:
		return goarch
	}
}

func createZip(binaryPath, zipPath, binaryName string) error {
	zipFile, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	defer func() { _ = zipFile.Close() }()

	zipWriter := zip.NewWriter(zipFile)

	binaryFile, err := os.Open(binaryPath)
	if err != nil {
		return err
	}
	defer func() { _ = binaryFile.Close() }()

	writer, err := zipWriter.Create(binaryName)
	if err != nil {
		return err
	}
	if _, err = io.Copy(writer, binaryFile); err != nil {
		return err
	}
	return zipWriter.Close()
}

func createTarGz(binaryPath, tarGzPath, binaryName string) error {
	tarGzFile, err := os.Create(tarGzPath)
	if err != nil {
		return err
	}
	defer func() { _ = tarGzFile.Close() }()

	gzWriter := gzip.NewWriter(tarGzFile)
	tarWriter := tar.NewWriter(gzWriter)

	binaryFile, err := os.Open(binaryPath)
	if err != nil {
		return err
	}
	defer func() { _ = binaryFile.Close() }()

	stat, err := binaryFile.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    binaryName,
		Size:    stat.Size(),
		Mode:    int64(stat.Mode()),
		ModTime: stat.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	if _, err = io.Copy(tarWriter, binaryFile); err != nil {
		return err
	}
	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzWriter.Close()
}

func (b *goBuild) buildAll(ctx context.Context) ([]string, error) {
	log := logger.FromContext(ctx)
	total := len(b.targets)

	var archives []string
	var mu sync.Mutex
	var completed int32

	g, ctx := errgroup.WithContext(ctx)

	b.report(models.BuildProgress{Type: models.BuildProgressStart, Total: total})
	log.Info("building binaries", "platforms", total, "version", b.version)

	for _, target := range b.targets {
		g.Go(func() error {
			b.report(models.BuildProgress{
				Type:     models.BuildProgressPlatform,
				Platform: target.String(),
				Current:  int(atomic.LoadInt32(&completed)) + 1,
				Total:    total,
			})

			binaryPath, err := b.buildBinary(ctx, target)
			if err != nil {
				log.Error("build failed", "platform", target.String(), "error", err)
				return err
			}
			defer func() { _ = os.Remove(binaryPath) }()

			archivePath, err := b.packageBinary(binaryPath, target)
			if err != nil {
				log.Error("packaging failed", "platform", target.String(), "error", err)
				return err
			}

			mu.Lock()
			archives = append(archives, archivePath)
			mu.Unlock()

			current := atomic.AddInt32(&completed, 1)
			log.Info("binary ready",
				"platform", target.String(),
				"current", current,
				"total", total,
				"asset", filepath.Base(archivePath))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		b.report(models.BuildProgress{Type: models.BuildProgressError, Error: err})
		return nil, err
	}

	b.report(models.BuildProgress{Type: models.BuildProgressComplete, Total: len(archives)})
	return archives, nil
}
