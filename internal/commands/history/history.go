package history

import (
	"context"

	"github.com/thomas-vilte/materelease/internal/app"
	"github.com/thomas-vilte/materelease/internal/commands/cmdutil"
	"github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/thomas-vilte/materelease/internal/ui"
	"github.com/urfave/cli/v3"
)

const defaultLimit = 20

type HistoryCommandFactory struct {
	container *app.Container
}

func NewHistoryCommandFactory(c *app.Container) *HistoryCommandFactory {
	return &HistoryCommandFactory{container: c}
}

func (f *HistoryCommandFactory) CreateCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: t.GetMessage("history_usage", 0, nil),
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: defaultLimit, Usage: t.GetMessage("history_flag_limit", 0, nil)},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			store, err := f.container.History()
			if err != nil {
				return err
			}
			entries, err := store.Recent(ctx, int(cmd.Int("limit")))
			if err != nil {
				return err
			}
			ui.PrintHistory(cmdutil.Output(cmd), t, entries)
			return nil
		},
	}
}
