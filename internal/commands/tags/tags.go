package tags

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/thomas-vilte/materelease/internal/app"
	"github.com/thomas-vilte/materelease/internal/commands/cmdutil"
	"github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/thomas-vilte/materelease/internal/models"
	"github.com/thomas-vilte/materelease/internal/ui"
	"github.com/thomas-vilte/materelease/internal/vcs/github"
	"github.com/urfave/cli/v3"
)

type TagsCommandFactory struct {
	container *app.Container
}

func NewTagsCommandFactory(c *app.Container) *TagsCommandFactory {
	return &TagsCommandFactory{container: c}
}

func (f *TagsCommandFactory) CreateCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "tags",
		Usage: t.GetMessage("tags_usage", 0, nil),
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  t.GetMessage("tags_list_usage", 0, nil),
				Flags:  []cli.Flag{cmdutil.RepoFlag()},
				Action: f.list,
			},
			{
				Name:   "prune",
				Usage:  t.GetMessage("tags_prune_usage", 0, nil),
				Flags:  []cli.Flag{cmdutil.RepoFlag(), cmdutil.YesFlag()},
				Action: f.prune(t),
			},
		},
	}
}

func (f *TagsCommandFactory) list(ctx context.Context, cmd *cli.Command) error {
	token, handle, err := cmdutil.Target(ctx, f.container, cmd)
	if err != nil {
		return err
	}
	gh := f.container.GitHub()
	tags, err := cmdutil.Await[[]models.Tag](ctx, gh.Events(),
		gh.ListTags(token, handle.RemoteOwner, handle.RemoteName), "")
	if err != nil {
		return err
	}
	out := cmdutil.Output(cmd)
	for _, tag := range tags {
		_, _ = fmt.Fprintf(out, "%s  %s\n", tag.Name, ui.Dim.Sprint(shortSHA(tag.SHA)))
	}
	return nil
}

// prune deletes the remote tags no release refers to. Tags that could not be
// deleted are listed and make the command fail.
func (f *TagsCommandFactory) prune(t *i18n.Translations) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		token, handle, err := cmdutil.Target(ctx, f.container, cmd)
		if err != nil {
			return err
		}
		out := cmdutil.Output(cmd)
		action := t.GetMessage("action_prune_tags", 0, map[string]interface{}{"Repo": handle.FullName()})
		if !cmdutil.Confirm(cmd, t, action) {
			ui.PrintWarning(out, t.GetMessage("operation_cancelled", 0, nil))
			return nil
		}

		gh := f.container.GitHub()
		res, err := cmdutil.Await[models.OrphanCleanupResult](ctx, gh.Events(),
			gh.DeleteOrphanedTags(token, handle.RemoteOwner, handle.RemoteName),
			t.GetMessage("tags_pruning", 0, nil))

		var partial *github.PartialCleanupError
		if errors.As(err, &partial) {
			printCleanup(out, t, partial.Result)
			return err
		}
		if err != nil {
			return err
		}
		printCleanup(out, t, res)
		return nil
	}
}

func printCleanup(out io.Writer, t *i18n.Translations, res models.OrphanCleanupResult) {
	if len(res.Deleted) == 0 && len(res.Failed) == 0 {
		ui.PrintInfo(out, t.GetMessage("no_orphaned_tags", 0, nil))
		return
	}
	if n := len(res.Deleted); n > 0 {
		ui.PrintSuccess(out, t.GetMessage("tags_pruned", n, map[string]interface{}{"Count": n}))
		for _, tag := range res.Deleted {
			_, _ = fmt.Fprintf(out, "   - %s\n", tag)
		}
	}
	if n := len(res.Failed); n > 0 {
		ui.PrintError(out, t.GetMessage("tags_prune_failed", n, map[string]interface{}{"Count": n}))
		failed := make([]string, 0, n)
		for tag := range res.Failed {
			failed = append(failed, tag)
		}
		sort.Strings(failed)
		for _, tag := range failed {
			_, _ = fmt.Fprintf(out, "   - %s %s\n", tag, ui.Dim.Sprint(res.Failed[tag]))
		}
	}
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
