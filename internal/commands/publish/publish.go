// Package publish runs the release saga from the command line.
package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/mattn/go-isatty"
	"github.com/thomas-vilte/materelease/internal/app"
	"github.com/thomas-vilte/materelease/internal/commands/cmdutil"
	"github.com/thomas-vilte/materelease/internal/commands/completion"
	"github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/thomas-vilte/materelease/internal/logger"
	"github.com/thomas-vilte/materelease/internal/models"
	"github.com/thomas-vilte/materelease/internal/saga"
	"github.com/thomas-vilte/materelease/internal/ui"
	"github.com/urfave/cli/v3"
)

type PublishCommandFactory struct {
	container *app.Container
}

func NewPublishCommandFactory(c *app.Container) *PublishCommandFactory {
	return &PublishCommandFactory{container: c}
}

func (f *PublishCommandFactory) CreateCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:          "publish",
		Usage:         t.GetMessage("publish_usage", 0, nil),
		ShellComplete: completion.FlagComplete,
		Flags: []cli.Flag{
			cmdutil.RepoFlag(),
			&cli.StringFlag{Name: "from", Aliases: []string{"f"}, Usage: t.GetMessage("publish_flag_from", 0, nil)},
			&cli.StringFlag{Name: "tag", Aliases: []string{"t"}, Usage: t.GetMessage("publish_flag_tag", 0, nil)},
			&cli.StringFlag{Name: "title", Usage: t.GetMessage("publish_flag_title", 0, nil)},
			&cli.StringFlag{Name: "notes", Aliases: []string{"n"}, Usage: t.GetMessage("publish_flag_notes", 0, nil)},
			&cli.StringFlag{Name: "target", Usage: t.GetMessage("publish_flag_target", 0, nil)},
			&cli.BoolFlag{Name: "prerelease", Usage: t.GetMessage("publish_flag_prerelease", 0, nil)},
			&cli.BoolFlag{Name: "installer", Usage: t.GetMessage("publish_flag_installer", 0, nil)},
			&cli.BoolFlag{Name: "plain", Usage: t.GetMessage("publish_flag_plain", 0, nil)},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			draft, err := draftFromCommand(cmd)
			if err != nil {
				return err
			}
			token, handle, err := cmdutil.Target(ctx, f.container, cmd)
			if err != nil {
				return err
			}
			id, err := cmdutil.Identity(ctx, f.container, handle.LocalPath)
			if err != nil {
				return err
			}
			out := cmdutil.Output(cmd)
			f.warnDirtyTree(ctx, t, out, handle.LocalPath)

			sink := ui.NewEventSink()
			defer sink.Close()
			coordinator := f.container.Publisher(ui.Tee{f.container.RecordSink(), sink})

			runCtx, stop := context.WithCancel(ctx)
			defer stop()
			go func() {
				_ = coordinator.Run(runCtx)
			}()

			runID, err := coordinator.Publish(runCtx, saga.PublishRequest{
				Draft:    draft,
				Handle:   handle,
				Settings: saga.Settings{Token: token, Identity: id},
			})
			if err != nil {
				return err
			}
			logger.Info(ctx, "publish submitted", "run", runID, "tag", draft.TagName, "repo", handle.FullName())

			cancel := func() bool { return coordinator.Cancel(runCtx) }
			report, err := f.watch(ctx, cmd, t, out, draft.TagName, sink.Events(), cancel)
			if err != nil {
				return err
			}
			if report == nil {
				return errors.ErrCancelled.WithContext("run", runID)
			}
			if report.Outcome == saga.StepDone {
				return nil
			}

			if report.ManualCleanup {
				ui.PrintManualCleanup(out, *report)
			}
			if report.Err != nil {
				return report.Err
			}
			return fmt.Errorf("%s", report.Message)
		},
	}
}

// warnDirtyTree flags uncommitted work, which the version bump commit stages
// along with the version file.
func (f *PublishCommandFactory) warnDirtyTree(ctx context.Context, t *i18n.Translations, out io.Writer, dir string) {
	g := f.container.Git()
	st, err := cmdutil.Await[models.StatusResult](ctx, g.Events(), g.Status(dir), "")
	if err != nil {
		logger.Warn(ctx, "could not read working tree status", "dir", dir, "error", err)
		return
	}
	if st.Clean() {
		return
	}
	changed := len(st.Staged) + len(st.Unstaged) + len(st.Untracked) + len(st.Conflicted)
	ui.PrintWarning(out, t.GetMessage("publish_dirty_tree", changed, map[string]interface{}{"Count": changed}))
}

// watch renders the run until it settles: the interactive view on a
// terminal, plain lines otherwise. In plain mode an interrupt requests
// cancellation.
func (f *PublishCommandFactory) watch(ctx context.Context, cmd *cli.Command, t *i18n.Translations, out io.Writer, tag string, events <-chan any, cancel func() bool) (*saga.Report, error) {
	if !cmd.Bool("plain") && out == os.Stdout && isatty.IsTerminal(os.Stdout.Fd()) {
		title := t.GetMessage("publish_title", 0, map[string]interface{}{"Tag": tag})
		return ui.RunProgress(ctx, t, title, events, cancel)
	}

	sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt)
	defer stopSignals()
	ui.PrintInfo(out, t.GetMessage("publish_interrupt_hint", 0, nil))
	return ui.RunPlain(sigCtx, out, t, events, cancel), nil
}
