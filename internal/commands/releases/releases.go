package releases

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/thomas-vilte/materelease/internal/app"
	"github.com/thomas-vilte/materelease/internal/commands/cmdutil"
	"github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/thomas-vilte/materelease/internal/models"
	"github.com/thomas-vilte/materelease/internal/ui"
	"github.com/urfave/cli/v3"
)

type ReleasesCommandFactory struct {
	container *app.Container
}

func NewReleasesCommandFactory(c *app.Container) *ReleasesCommandFactory {
	return &ReleasesCommandFactory{container: c}
}

func (f *ReleasesCommandFactory) CreateCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "releases",
		Usage: t.GetMessage("releases_usage", 0, nil),
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: t.GetMessage("releases_list_usage", 0, nil),
				Flags: []cli.Flag{cmdutil.RepoFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					token, handle, err := cmdutil.Target(ctx, f.container, cmd)
					if err != nil {
						return err
					}
					gh := f.container.GitHub()
					releases, err := cmdutil.Await[[]models.Release](ctx, gh.Events(),
						gh.ListReleases(token, handle.RemoteOwner, handle.RemoteName), "")
					if err != nil {
						return err
					}

					out := cmdutil.Output(cmd)
					if len(releases) == 0 {
						_, _ = fmt.Fprintln(out, t.GetMessage("releases_none", 0, nil))
						return nil
					}
					tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
					for _, r := range releases {
						kind := ""
						switch {
						case r.Draft:
							kind = "draft"
						case r.Prerelease:
							kind = "prerelease"
						}
						_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.TagName, r.Name, kind, ui.Dim.Sprint(r.HTMLURL))
					}
					return tw.Flush()
				},
			},
		},
	}
}
