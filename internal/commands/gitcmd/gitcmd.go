// Package gitcmd exposes the VCS façade's working-tree operations as the
// "git" command group.
package gitcmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/thomas-vilte/materelease/internal/app"
	"github.com/thomas-vilte/materelease/internal/commands/cmdutil"
	"github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/thomas-vilte/materelease/internal/logger"
	"github.com/thomas-vilte/materelease/internal/models"
	"github.com/thomas-vilte/materelease/internal/ui"
	"github.com/urfave/cli/v3"
)

type GitCommandFactory struct {
	container *app.Container
}

func NewGitCommandFactory(c *app.Container) *GitCommandFactory {
	return &GitCommandFactory{container: c}
}

func (f *GitCommandFactory) CreateCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "git",
		Usage: t.GetMessage("git_usage", 0, nil),
		Commands: []*cli.Command{
			f.newStatusCommand(t, cfg),
			f.newCommitCommand(t, cfg),
			f.newPushCommand(t, cfg),
			f.newPullCommand(t, cfg),
			f.newCloneCommand(t, cfg),
			f.newForcePushCommand(t, cfg),
			f.newAbortMergeCommand(t, cfg),
			f.newFixDivergenceCommand(t, cfg),
			f.newTrustCommand(t, cfg),
			f.newIdentityCommand(t, cfg),
		},
	}
}

func (f *GitCommandFactory) newStatusCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: t.GetMessage("git_status_usage", 0, nil),
		Flags: []cli.Flag{cmdutil.RepoFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			repo, err := cmdutil.Repository(cmd, cfg)
			if err != nil {
				return err
			}
			g := f.container.Git()
			st, err := cmdutil.Await[models.StatusResult](ctx, g.Events(), g.Status(repo.Path), "")
			if err != nil {
				return err
			}

			out := cmdutil.Output(cmd)
			if st.Clean() {
				_, _ = fmt.Fprintf(out, "%s %s\n", ui.Accent.Sprint(st.Branch), t.GetMessage("status_clean", 0, nil))
				return nil
			}
			ui.ShowStatusTree(out, st, fmt.Sprintf("%s (%s)", repo.ID, st.Branch))
			return nil
		},
	}
}

func (f *GitCommandFactory) newCommitCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "commit",
		Usage: t.GetMessage("git_commit_usage", 0, nil),
		Flags: []cli.Flag{
			cmdutil.RepoFlag(),
			&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Required: true, Usage: t.GetMessage("git_flag_message", 0, nil)},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			repo, err := cmdutil.Repository(cmd, cfg)
			if err != nil {
				return err
			}
			id, err := cmdutil.Identity(ctx, f.container, repo.Path)
			if err != nil {
				return err
			}

			g := f.container.Git()
			res, err := cmdutil.Await[models.CommitResult](ctx, g.Events(), g.Commit(repo.Path, cmd.String("message"), id), "")
			if err != nil {
				return err
			}

			out := cmdutil.Output(cmd)
			if res.NoOp {
				ui.PrintInfo(out, t.GetMessage("nothing_to_commit", 0, nil))
				return nil
			}
			ui.PrintSuccess(out, t.GetMessage("commit_created", 0, map[string]interface{}{"Hash": short(res.Hash)}))
			return nil
		},
	}
}

// branchOrCurrent returns --branch, or the branch checked out in dir.
func (f *GitCommandFactory) branchOrCurrent(ctx context.Context, cmd *cli.Command, dir string) (string, error) {
	if b := cmd.String("branch"); b != "" {
		return b, nil
	}
	g := f.container.Git()
	return cmdutil.Await[string](ctx, g.Events(), g.CurrentBranch(dir), "")
}

func branchFlag(t *i18n.Translations) cli.Flag {
	return &cli.StringFlag{Name: "branch", Aliases: []string{"b"}, Usage: t.GetMessage("git_flag_branch", 0, nil)}
}

func (f *GitCommandFactory) newPushCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "push",
		Usage: t.GetMessage("git_push_usage", 0, nil),
		Flags: []cli.Flag{cmdutil.RepoFlag(), branchFlag(t)},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			repo, err := cmdutil.Repository(cmd, cfg)
			if err != nil {
				return err
			}
			branch, err := f.branchOrCurrent(ctx, cmd, repo.Path)
			if err != nil {
				return err
			}
			g := f.container.Git()
			return f.finish(ctx, cmd, t, "push", g.Push(repo.Path, branch))
		},
	}
}

func (f *GitCommandFactory) newPullCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "pull",
		Usage: t.GetMessage("git_pull_usage", 0, nil),
		Flags: []cli.Flag{cmdutil.RepoFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			repo, err := cmdutil.Repository(cmd, cfg)
			if err != nil {
				return err
			}
			g := f.container.Git()
			return f.finish(ctx, cmd, t, "pull", g.Pull(repo.Path))
		},
	}
}

func (f *GitCommandFactory) newCloneCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "clone",
		Usage:     t.GetMessage("git_clone_usage", 0, nil),
		ArgsUsage: "<url> [dir]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "add", Usage: t.GetMessage("git_flag_add", 0, nil)},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			url := cmd.Args().Get(0)
			if url == "" {
				return fmt.Errorf("%s", t.GetMessage("error_expected_argument", 0, map[string]interface{}{"Arg": "<url>"}))
			}
			dest := cmd.Args().Get(1)
			if dest == "" {
				dest = repoNameFromURL(url)
			}
			dest, err := filepath.Abs(dest)
			if err != nil {
				return err
			}

			g := f.container.Git()
			err = cmdutil.Wait(ctx, g.Events(), g.Clone(url, dest),
				t.GetMessage("git_cloning", 0, map[string]interface{}{"URL": url}))
			if err != nil {
				return err
			}
			out := cmdutil.Output(cmd)
			ui.PrintSuccess(out, t.GetMessage("operation_done", 0, map[string]interface{}{"Operation": "clone"}))

			if !cmd.Bool("add") {
				return nil
			}
			repo := config.Repository{ID: cmdutil.RepoID(dest), Path: dest}
			if handle, err := cmdutil.Await[models.RepositoryHandle](ctx, g.Events(), g.Handle(dest), ""); err == nil {
				repo.Owner, repo.Name = handle.RemoteOwner, handle.RemoteName
			} else {
				logger.Debug(ctx, "origin not recognised", "url", url, "error", err)
			}
			cfg.UpsertRepository(repo)
			if err := config.SaveConfig(cfg); err != nil {
				return err
			}
			ui.PrintSuccess(out, t.GetMessage("repo_added", 0, map[string]interface{}{
				"ID":    repo.ID,
				"Owner": repo.Owner,
				"Name":  repo.Name,
			}))
			return nil
		},
	}
}

func (f *GitCommandFactory) newForcePushCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "force-push",
		Usage: t.GetMessage("git_force_push_usage", 0, nil),
		Flags: []cli.Flag{cmdutil.RepoFlag(), branchFlag(t), cmdutil.YesFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			repo, err := cmdutil.Repository(cmd, cfg)
			if err != nil {
				return err
			}
			branch, err := f.branchOrCurrent(ctx, cmd, repo.Path)
			if err != nil {
				return err
			}
			if !cmdutil.Confirm(cmd, t, t.GetMessage("action_force_push", 0, map[string]interface{}{"Branch": branch})) {
				ui.PrintWarning(cmdutil.Output(cmd), t.GetMessage("operation_cancelled", 0, nil))
				return nil
			}
			g := f.container.Git()
			return f.finish(ctx, cmd, t, "force-push", g.ForcePush(repo.Path, branch))
		},
	}
}

func (f *GitCommandFactory) newAbortMergeCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "abort-merge",
		Usage: t.GetMessage("git_abort_merge_usage", 0, nil),
		Flags: []cli.Flag{cmdutil.RepoFlag(), cmdutil.YesFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			repo, err := cmdutil.Repository(cmd, cfg)
			if err != nil {
				return err
			}
			if !cmdutil.Confirm(cmd, t, t.GetMessage("action_abort_merge", 0, nil)) {
				ui.PrintWarning(cmdutil.Output(cmd), t.GetMessage("operation_cancelled", 0, nil))
				return nil
			}
			g := f.container.Git()
			return f.finish(ctx, cmd, t, "abort-merge", g.AbortMerge(repo.Path))
		},
	}
}

func (f *GitCommandFactory) newFixDivergenceCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "fix-divergence",
		Usage: t.GetMessage("git_fix_divergence_usage", 0, nil),
		Flags: []cli.Flag{cmdutil.RepoFlag(), branchFlag(t)},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			repo, err := cmdutil.Repository(cmd, cfg)
			if err != nil {
				return err
			}
			branch, err := f.branchOrCurrent(ctx, cmd, repo.Path)
			if err != nil {
				return err
			}
			g := f.container.Git()
			return f.finish(ctx, cmd, t, "fix-divergence", g.FixBranchDivergence(repo.Path, branch))
		},
	}
}

func (f *GitCommandFactory) newTrustCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "trust",
		Usage: t.GetMessage("git_trust_usage", 0, nil),
		Flags: []cli.Flag{cmdutil.RepoFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			repo, err := cmdutil.Repository(cmd, cfg)
			if err != nil {
				return err
			}
			g := f.container.Git()
			if err := cmdutil.Wait(ctx, g.Events(), g.MarkSafeDirectory(repo.Path), ""); err != nil {
				return err
			}
			ui.PrintSuccess(cmdutil.Output(cmd), t.GetMessage("git_trusted", 0, map[string]interface{}{"Path": repo.Path}))
			return nil
		},
	}
}

func (f *GitCommandFactory) newIdentityCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "identity",
		Usage: t.GetMessage("git_identity_usage", 0, nil),
		Flags: []cli.Flag{
			cmdutil.RepoFlag(),
			&cli.StringFlag{Name: "name", Usage: t.GetMessage("git_flag_name", 0, nil)},
			&cli.StringFlag{Name: "email", Usage: t.GetMessage("git_flag_email", 0, nil)},
			&cli.BoolFlag{Name: "global", Usage: t.GetMessage("git_flag_global", 0, nil)},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			out := cmdutil.Output(cmd)
			g := f.container.Git()

			dir := "."
			if repo, err := cmdutil.Repository(cmd, cfg); err == nil {
				dir = repo.Path
			} else if !cmd.Bool("global") {
				return err
			}

			if !cmd.IsSet("name") && !cmd.IsSet("email") {
				id, err := cmdutil.Await[models.Identity](ctx, g.Events(), g.GetIdentity(dir), "")
				if err != nil {
					return err
				}
				ui.PrintKeyValue(out, "name", orUnset(id.Name))
				ui.PrintKeyValue(out, "email", orUnset(id.Email))
				return nil
			}

			id := models.Identity{Name: cmd.String("name"), Email: cmd.String("email")}
			global := cmd.Bool("global")
			if err := cmdutil.Wait(ctx, g.Events(), g.SetIdentity(dir, id, global), ""); err != nil {
				return err
			}
			if global {
				cfg.Identity = config.Identity{Name: id.Name, Email: id.Email}
				if err := config.SaveConfig(cfg); err != nil {
					return err
				}
			}
			ui.PrintSuccess(out, t.GetMessage("git_identity_set", 0, map[string]interface{}{
				"Name":  id.Name,
				"Email": id.Email,
			}))
			return nil
		},
	}
}

// finish waits for a payload-less ticket and reports it done.
func (f *GitCommandFactory) finish(ctx context.Context, cmd *cli.Command, t *i18n.Translations, op string, ticket uint64) error {
	err := cmdutil.Wait(ctx, f.container.Git().Events(), ticket,
		t.GetMessage("git_running", 0, map[string]interface{}{"Operation": op}))
	if err != nil {
		return err
	}
	ui.PrintSuccess(cmdutil.Output(cmd), t.GetMessage("operation_done", 0, map[string]interface{}{"Operation": op}))
	return nil
}

func short(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func repoNameFromURL(url string) string {
	name := filepath.Base(url)
	if ext := filepath.Ext(name); ext == ".git" {
		name = name[:len(name)-len(ext)]
	}
	return name
}
