// Package repo holds the commands that manage configured repositories and
// their hosted counterparts.
package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/thomas-vilte/materelease/internal/app"
	"github.com/thomas-vilte/materelease/internal/commands/cmdutil"
	"github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/thomas-vilte/materelease/internal/logger"
	"github.com/thomas-vilte/materelease/internal/models"
	"github.com/thomas-vilte/materelease/internal/ui"
	"github.com/urfave/cli/v3"
)

type RepoCommandFactory struct {
	container *app.Container
}

func NewRepoCommandFactory(c *app.Container) *RepoCommandFactory {
	return &RepoCommandFactory{container: c}
}

func (f *RepoCommandFactory) CreateCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "repo",
		Usage: t.GetMessage("repo_usage", 0, nil),
		Commands: []*cli.Command{
			f.newAddCommand(t, cfg),
			f.newListCommand(t, cfg),
			f.newUseCommand(t, cfg),
			f.newCreateCommand(t, cfg),
			f.newVisibilityCommand(t, cfg),
			f.newLinkCommand(t, cfg),
			f.newPublishCommand(t, cfg),
			f.newBranchesCommand(t, cfg),
			f.newRemoteListCommand(t, cfg),
			f.newIndexCommand(t, cfg),
		},
	}
}

func (f *RepoCommandFactory) newAddCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     t.GetMessage("repo_add_usage", 0, nil),
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: t.GetMessage("repo_flag_id", 0, nil)},
			&cli.StringFlag{Name: "owner", Usage: t.GetMessage("repo_flag_owner", 0, nil)},
			&cli.StringFlag{Name: "name", Usage: t.GetMessage("repo_flag_name", 0, nil)},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("%s", t.GetMessage("error_expected_argument", 0, map[string]interface{}{"Arg": "<path>"}))
			}
			path, err := filepath.Abs(cmd.Args().First())
			if err != nil {
				return err
			}

			repo := config.Repository{
				ID:    cmd.String("id"),
				Path:  path,
				Owner: cmd.String("owner"),
				Name:  cmd.String("name"),
			}
			if repo.ID == "" {
				repo.ID = cmdutil.RepoID(path)
			}
			if repo.Owner == "" || repo.Name == "" {
				g := f.container.Git()
				handle, err := cmdutil.Await[models.RepositoryHandle](ctx, g.Events(), g.Handle(path), "")
				if err != nil {
					// a repository without a usable origin can still be
					// published later with "repo publish"
					logger.Debug(ctx, "origin not resolved", "path", path, "error", err)
				} else {
					repo.Owner, repo.Name = handle.RemoteOwner, handle.RemoteName
				}
			}

			cfg.UpsertRepository(repo)
			if err := config.SaveConfig(cfg); err != nil {
				return err
			}
			ui.PrintSuccess(cmdutil.Output(cmd), t.GetMessage("repo_added", 0, map[string]interface{}{
				"ID":    repo.ID,
				"Owner": orDash(repo.Owner),
				"Name":  orDash(repo.Name),
			}))
			return nil
		},
	}
}

func (f *RepoCommandFactory) newListCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: t.GetMessage("repo_list_usage", 0, nil),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			out := cmdutil.Output(cmd)
			if len(cfg.Repositories) == 0 {
				_, _ = fmt.Fprintln(out, t.GetMessage("repo_none", 0, nil))
				return nil
			}
			for _, r := range cfg.Repositories {
				marker := " "
				if r.ID == cfg.ActiveRepository {
					marker = ui.Accent.Sprint("*")
				}
				remote := ui.Dim.Sprint("(no remote)")
				if r.Owner != "" && r.Name != "" {
					remote = r.Owner + "/" + r.Name
				}
				_, _ = fmt.Fprintf(out, "%s %s  %s  %s\n", marker, r.ID, remote, ui.Dim.Sprint(r.Path))
			}
			return nil
		},
	}
}

func (f *RepoCommandFactory) newUseCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "use",
		Usage:     t.GetMessage("repo_use_usage", 0, nil),
		ArgsUsage: "<id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if _, ok := cfg.Repository(id); !ok {
				return errors.ErrRepositoryUnknown.WithContext("id", id)
			}
			if err := cfg.SetActive(id); err != nil {
				return err
			}
			if err := config.SaveConfig(cfg); err != nil {
				return err
			}
			ui.PrintSuccess(cmdutil.Output(cmd), t.GetMessage("repo_active", 0, map[string]interface{}{"ID": id}))
			return nil
		},
	}
}

func (f *RepoCommandFactory) newCreateCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     t.GetMessage("repo_create_usage", 0, nil),
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: t.GetMessage("repo_flag_description", 0, nil)},
			&cli.BoolFlag{Name: "private", Usage: t.GetMessage("repo_flag_private", 0, nil)},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			name := cmd.Args().First()
			if name == "" {
				return fmt.Errorf("%s", t.GetMessage("error_expected_argument", 0, map[string]interface{}{"Arg": "<name>"}))
			}
			token, err := cmdutil.Token(cfg)
			if err != nil {
				return err
			}

			gh := f.container.GitHub()
			created, err := cmdutil.Await[models.Repository](ctx, gh.Events(),
				gh.CreateRepository(token, name, cmd.String("description"), cmd.Bool("private")),
				t.GetMessage("repo_creating", 0, map[string]interface{}{"Name": name}))
			if err != nil {
				return err
			}
			ui.PrintSuccess(cmdutil.Output(cmd), t.GetMessage("repo_created", 0, map[string]interface{}{
				"Name": created.FullName,
				"URL":  created.CloneURL,
			}))
			return nil
		},
	}
}

func (f *RepoCommandFactory) newVisibilityCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "visibility",
		Usage:     t.GetMessage("repo_visibility_usage", 0, nil),
		ArgsUsage: "<public|private>",
		Flags:     []cli.Flag{cmdutil.RepoFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			visibility := strings.ToLower(cmd.Args().First())
			if visibility != "public" && visibility != "private" {
				return fmt.Errorf("%s", t.GetMessage("error_expected_argument", 0, map[string]interface{}{"Arg": "<public|private>"}))
			}
			token, handle, err := cmdutil.Target(ctx, f.container, cmd)
			if err != nil {
				return err
			}

			gh := f.container.GitHub()
			updated, err := cmdutil.Await[models.Repository](ctx, gh.Events(),
				gh.SetVisibility(token, handle.RemoteOwner, handle.RemoteName, visibility == "private"), "")
			if err != nil {
				return err
			}
			state := "public"
			if updated.Private {
				state = "private"
			}
			ui.PrintSuccess(cmdutil.Output(cmd), t.GetMessage("repo_visibility_changed", 0, map[string]interface{}{
				"Name":       handle.FullName(),
				"Visibility": state,
			}))
			return nil
		},
	}
}

func (f *RepoCommandFactory) newLinkCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "link",
		Usage:     t.GetMessage("repo_link_usage", 0, nil),
		ArgsUsage: "<remote-url>",
		Flags:     []cli.Flag{cmdutil.RepoFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			url := cmd.Args().First()
			if url == "" {
				return fmt.Errorf("%s", t.GetMessage("error_expected_argument", 0, map[string]interface{}{"Arg": "<remote-url>"}))
			}
			repo, err := cmdutil.Repository(cmd, cfg)
			if err != nil {
				return err
			}

			g := f.container.Git()
			if err := cmdutil.Wait(ctx, g.Events(), g.LinkRemote(repo.Path, url), ""); err != nil {
				return err
			}
			if err := f.refreshRemote(ctx, cfg, repo); err != nil {
				return err
			}
			ui.PrintSuccess(cmdutil.Output(cmd), t.GetMessage("repo_linked", 0, map[string]interface{}{"URL": url}))
			return nil
		},
	}
}

func (f *RepoCommandFactory) newPublishCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     t.GetMessage("repo_publish_usage", 0, nil),
		ArgsUsage: "<remote-url>",
		Flags: []cli.Flag{
			cmdutil.RepoFlag(),
			&cli.StringFlag{Name: "branch", Aliases: []string{"b"}, Value: "main", Usage: t.GetMessage("repo_flag_branch", 0, nil)},
			&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: t.GetMessage("repo_flag_message", 0, nil)},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			url := cmd.Args().First()
			if url == "" {
				return fmt.Errorf("%s", t.GetMessage("error_expected_argument", 0, map[string]interface{}{"Arg": "<remote-url>"}))
			}
			repo, err := cmdutil.Repository(cmd, cfg)
			if err != nil {
				return err
			}
			id, err := cmdutil.Identity(ctx, f.container, repo.Path)
			if err != nil {
				return err
			}

			g := f.container.Git()
			branch := cmd.String("branch")
			err = cmdutil.Wait(ctx, g.Events(),
				g.Publish(repo.Path, url, branch, cmd.String("message"), id),
				t.GetMessage("repo_publishing", 0, map[string]interface{}{"Branch": branch}))
			if err != nil {
				return err
			}
			if err := f.refreshRemote(ctx, cfg, repo); err != nil {
				return err
			}
			ui.PrintSuccess(cmdutil.Output(cmd), t.GetMessage("repo_published", 0, map[string]interface{}{
				"Branch": branch,
				"URL":    url,
			}))
			return nil
		},
	}
}

// refreshRemote stores the owner and name of repo's new origin. Remotes that
// do not look like a hosted repository leave the entry untouched.
func (f *RepoCommandFactory) refreshRemote(ctx context.Context, cfg *config.Config, repo config.Repository) error {
	g := f.container.Git()
	handle, err := cmdutil.Await[models.RepositoryHandle](ctx, g.Events(), g.Handle(repo.Path), "")
	if err != nil {
		logger.Debug(ctx, "origin not recognised", "path", repo.Path, "error", err)
		return nil
	}
	repo.Owner, repo.Name = handle.RemoteOwner, handle.RemoteName
	cfg.UpsertRepository(repo)
	return config.SaveConfig(cfg)
}

func (f *RepoCommandFactory) newBranchesCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "branches",
		Usage: t.GetMessage("repo_branches_usage", 0, nil),
		Flags: []cli.Flag{cmdutil.RepoFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			token, handle, err := cmdutil.Target(ctx, f.container, cmd)
			if err != nil {
				return err
			}
			gh := f.container.GitHub()
			branches, err := cmdutil.Await[[]models.Branch](ctx, gh.Events(),
				gh.ListBranches(token, handle.RemoteOwner, handle.RemoteName), "")
			if err != nil {
				return err
			}
			out := cmdutil.Output(cmd)
			for _, b := range branches {
				if b.Protected {
					_, _ = fmt.Fprintf(out, "%s %s\n", b.Name, ui.Dim.Sprint("(protected)"))
					continue
				}
				_, _ = fmt.Fprintln(out, b.Name)
			}
			return nil
		},
	}
}

func (f *RepoCommandFactory) newRemoteListCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "remote-list",
		Usage: t.GetMessage("repo_remote_list_usage", 0, nil),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			token, err := cmdutil.Token(cfg)
			if err != nil {
				return err
			}
			gh := f.container.GitHub()
			repos, err := cmdutil.Await[[]models.Repository](ctx, gh.Events(), gh.ListRepositories(token),
				t.GetMessage("repo_fetching", 0, nil))
			if err != nil {
				return err
			}
			out := cmdutil.Output(cmd)
			if len(repos) == 0 {
				_, _ = fmt.Fprintln(out, t.GetMessage("repo_none", 0, nil))
				return nil
			}
			for _, r := range repos {
				visibility := "public"
				if r.Private {
					visibility = "private"
				}
				_, _ = fmt.Fprintf(out, "%s  %s\n", r.FullName, ui.Dim.Sprint(visibility))
			}
			return nil
		},
	}
}

func (f *RepoCommandFactory) newIndexCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: t.GetMessage("repo_index_usage", 0, nil),
		Flags: []cli.Flag{
			cmdutil.RepoFlag(),
			&cli.StringFlag{Name: "path", Usage: t.GetMessage("repo_flag_index_path", 0, nil)},
			&cli.StringFlag{Name: "ref", Usage: t.GetMessage("repo_flag_ref", 0, nil)},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("path")
			if path == "" {
				path = cfg.IndexFile
			}
			if path == "" {
				return fmt.Errorf("%s", t.GetMessage("repo_index_not_configured", 0, nil))
			}
			token, handle, err := cmdutil.Target(ctx, f.container, cmd)
			if err != nil {
				return err
			}
			gh := f.container.GitHub()
			content, err := cmdutil.Await[string](ctx, gh.Events(),
				gh.FetchIndexFile(token, handle.RemoteOwner, handle.RemoteName, path, cmd.String("ref")), "")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(cmdutil.Output(cmd), content)
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
