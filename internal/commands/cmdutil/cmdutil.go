// Package cmdutil holds what the CLI commands share: resolving the target
// repository and waiting on façade tickets with a spinner.
package cmdutil

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/thomas-vilte/materelease/internal/app"
	"github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/thomas-vilte/materelease/internal/models"
	"github.com/thomas-vilte/materelease/internal/ui"
	"github.com/thomas-vilte/materelease/internal/worker"
	"github.com/urfave/cli/v3"
)

const (
	repoFlagName = "repo"
	yesFlagName  = "yes"
)

// RepoFlag selects a configured repository instead of the active one. Flags
// keep parse state, so every command gets its own.
func RepoFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    repoFlagName,
		Aliases: []string{"r"},
		Usage:   "configured repository id (defaults to the active one)",
	}
}

// YesFlag skips the confirmation prompt of destructive commands.
func YesFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:    yesFlagName,
		Aliases: []string{"y"},
		Usage:   "do not ask for confirmation",
	}
}

func Output(cmd *cli.Command) io.Writer {
	return cmd.Root().Writer
}

// Confirm asks before a destructive action unless --yes was given.
func Confirm(cmd *cli.Command, t *i18n.Translations, action string) bool {
	if cmd.Bool(yesFlagName) {
		return true
	}
	var in io.Reader = os.Stdin
	if r := cmd.Root().Reader; r != nil {
		in = r
	}
	return ui.AskConfirmation(Output(cmd), in, t.GetMessage("confirm_dangerous", 0, map[string]interface{}{
		"Action": action,
	}))
}

// Await waits for ticket with a spinner showing message. An empty message
// waits silently.
func Await[T any](ctx context.Context, events <-chan worker.Event, ticket uint64, message string) (T, error) {
	if message == "" {
		return worker.AwaitAs[T](ctx, events, ticket)
	}
	s := ui.NewSmartSpinner(message)
	s.Start()
	defer s.Stop()
	return worker.AwaitAs[T](ctx, events, ticket)
}

// Wait is Await for operations without a payload.
func Wait(ctx context.Context, events <-chan worker.Event, ticket uint64, message string) error {
	if message != "" {
		s := ui.NewSmartSpinner(message)
		s.Start()
		defer s.Stop()
	}
	_, err := worker.Await(ctx, events, ticket)
	return err
}

// Token returns the stored access token or ErrNotAuthenticated.
func Token(cfg *config.Config) (string, error) {
	if !cfg.LoggedIn() {
		return "", errors.ErrNotAuthenticated
	}
	return cfg.Session.AccessToken, nil
}

// Repository picks the repository named by --repo, or the active one.
func Repository(cmd *cli.Command, cfg *config.Config) (config.Repository, error) {
	if id := cmd.String(repoFlagName); id != "" {
		r, ok := cfg.Repository(id)
		if !ok {
			return config.Repository{}, errors.ErrRepositoryUnknown.WithContext("id", id)
		}
		return r, nil
	}
	r, ok := cfg.Active()
	if !ok {
		return config.Repository{}, errors.ErrNoActiveRepository
	}
	return r, nil
}

// Handle builds the handle for repo. Owner and name come from the config when
// set there, otherwise from the origin remote.
func Handle(ctx context.Context, c *app.Container, repo config.Repository) (models.RepositoryHandle, error) {
	if repo.Owner != "" && repo.Name != "" {
		return models.RepositoryHandle{LocalPath: repo.Path, RemoteOwner: repo.Owner, RemoteName: repo.Name}, nil
	}
	g := c.Git()
	return worker.AwaitAs[models.RepositoryHandle](ctx, g.Events(), g.Handle(repo.Path))
}

// Identity returns the configured git identity, falling back to the one git
// itself resolves for dir.
func Identity(ctx context.Context, c *app.Container, dir string) (models.Identity, error) {
	id := models.Identity{Name: c.Config().Identity.Name, Email: c.Config().Identity.Email}
	if id.Complete() {
		return id, nil
	}
	g := c.Git()
	resolved, err := worker.AwaitAs[models.Identity](ctx, g.Events(), g.GetIdentity(dir))
	if err != nil {
		return models.Identity{}, err
	}
	if !resolved.Complete() {
		return models.Identity{}, errors.ErrIdentityMissing
	}
	return resolved, nil
}

// RepoID derives a repository id from its directory name.
func RepoID(path string) string {
	return filepath.Base(filepath.Clean(path))
}

// Target resolves the access token and the handle of the repository selected
// by --repo or the active one.
func Target(ctx context.Context, c *app.Container, cmd *cli.Command) (string, models.RepositoryHandle, error) {
	cfg := c.Config()
	token, err := Token(cfg)
	if err != nil {
		return "", models.RepositoryHandle{}, err
	}
	repo, err := Repository(cmd, cfg)
	if err != nil {
		return "", models.RepositoryHandle{}, err
	}
	handle, err := Handle(ctx, c, repo)
	if err != nil {
		return "", models.RepositoryHandle{}, err
	}
	return token, handle, nil
}
