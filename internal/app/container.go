// Package app wires the façades, the publish coordinator and the history store
// for the CLI.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/thomas-vilte/materelease/internal/archive"
	"github.com/thomas-vilte/materelease/internal/builder"
	"github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/git"
	"github.com/thomas-vilte/materelease/internal/history"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/thomas-vilte/materelease/internal/logger"
	"github.com/thomas-vilte/materelease/internal/saga"
	"github.com/thomas-vilte/materelease/internal/vcs/github"
	"github.com/thomas-vilte/materelease/internal/versionfile"
	"github.com/thomas-vilte/materelease/internal/worker"
	"golang.org/x/sync/errgroup"
)

// Container builds each dependency on first use and closes whatever was
// built. Façade workers live as long as ctx.
type Container struct {
	ctx          context.Context
	config       *config.Config
	translations *i18n.Translations

	// overridable in tests
	gitService    *git.GitService
	deviceFlow    *github.DeviceFlow
	clientFactory github.ClientFactory

	mu      sync.Mutex
	git     *git.Manager
	github  *github.Manager
	build   *builder.Manager
	history *history.Store
}

type Option func(*Container)

func WithClientFactory(f github.ClientFactory) Option {
	return func(c *Container) {
		c.clientFactory = f
	}
}

func WithDeviceFlow(f *github.DeviceFlow) Option {
	return func(c *Container) {
		c.deviceFlow = f
	}
}

func NewContainer(ctx context.Context, cfg *config.Config, trans *i18n.Translations, opts ...Option) *Container {
	c := &Container{
		ctx:           ctx,
		config:        cfg,
		translations:  trans,
		gitService:    git.NewGitService(),
		deviceFlow:    github.NewDeviceFlow(cfg.ClientID),
		clientFactory: github.DefaultClientFactory(cfg.APIBaseURL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Container) Config() *config.Config {
	return c.config
}

func (c *Container) Translations() *i18n.Translations {
	return c.translations
}

func (c *Container) Git() *git.Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.git == nil {
		c.git = git.NewManager(c.ctx, c.gitService, c.config.Timeouts)
	}
	return c.git
}

func (c *Container) GitHub() *github.Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.github == nil {
		c.github = github.NewManager(c.ctx, c.deviceFlow, c.clientFactory, c.config.Timeouts)
	}
	return c.github
}

// Builder returns the build façade, or nil when the configured build is
// unusable. Drafts that ask for an installer are then rejected by the saga.
func (c *Container) Builder() *builder.Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.build != nil {
		return c.build
	}
	runner, err := builder.NewRunner(c.config.Build)
	if err != nil {
		logger.Debug(c.ctx, "build not configured", "error", err)
		return nil
	}
	c.build = builder.NewManager(c.ctx, runner, c.config.Timeouts)
	return c.build
}

func (c *Container) History() (*history.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.history != nil {
		return c.history, nil
	}
	if c.config.HistoryPath == "" {
		return nil, fmt.Errorf("history path is not configured")
	}
	store, err := history.Open(c.config.HistoryPath)
	if err != nil {
		return nil, err
	}
	c.history = store
	return store, nil
}

// Publisher builds a saga over the façades and a coordinator that feeds it
// their events. The caller runs the coordinator.
func (c *Container) Publisher(sink saga.Sink) *saga.Coordinator {
	gitManager := c.Git()
	api := c.GitHub()
	streams := []<-chan worker.Event{gitManager.Events(), api.Events()}

	deps := saga.Deps{
		VCS:        gitManager,
		API:        api,
		Archive:    archive.CreateProjectZip,
		Translator: c.translations,
		ArchiveDir: os.TempDir(),
		VersionFile: func(root string) saga.VersionWriter {
			return versionfile.New(root, c.config.VersionFile, c.config.VersionPattern)
		},
	}
	if b := c.Builder(); b != nil {
		deps.Builder = b
		streams = append(streams, b.Events())
	}

	return saga.NewCoordinator(saga.New(deps, sink), streams...)
}

// RecordSink stores every settled run in the history. Failures to record are
// logged; they never affect the run.
func (c *Container) RecordSink() saga.Sink {
	return recordSink{c: c}
}

type recordSink struct {
	c *Container
}

func (recordSink) StepChanged(string, saga.Step, string) {}

func (recordSink) Finished(saga.Notification) {}

func (r recordSink) Settled(report saga.Report) {
	store, err := r.c.History()
	if err != nil {
		logger.Warn(r.c.ctx, "history unavailable, run not recorded", "error", err)
		return
	}
	if err := store.Record(r.c.ctx, report); err != nil {
		logger.Error(r.c.ctx, "failed to record run", err, "run", report.RunID)
	}
}

// Close stops every façade that was started, in parallel, and closes the
// history store.
func (c *Container) Close(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var g errgroup.Group
	if c.git != nil {
		g.Go(func() error { return c.git.Close(timeout) })
	}
	if c.github != nil {
		g.Go(func() error { return c.github.Close(timeout) })
	}
	if c.build != nil {
		g.Go(func() error { return c.build.Close(timeout) })
	}
	if c.history != nil {
		g.Go(c.history.Close)
	}
	return g.Wait()
}
