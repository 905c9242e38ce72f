package auth

import (
	"context"
	"fmt"

	"github.com/thomas-vilte/materelease/internal/app"
	"github.com/thomas-vilte/materelease/internal/commands/cmdutil"
	"github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/thomas-vilte/materelease/internal/logger"
	"github.com/thomas-vilte/materelease/internal/models"
	"github.com/thomas-vilte/materelease/internal/ui"
	"github.com/urfave/cli/v3"
)

type LoginCommandFactory struct {
	container *app.Container
}

func NewLoginCommandFactory(c *app.Container) *LoginCommandFactory {
	return &LoginCommandFactory{container: c}
}

func (f *LoginCommandFactory) CreateCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: t.GetMessage("login_usage", 0, nil),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			out := cmdutil.Output(cmd)
			gh := f.container.GitHub()

			code, err := cmdutil.Await[models.DeviceCode](ctx, gh.Events(), gh.StartDeviceFlow(), "")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "\n%s %s\n\n", ui.InfoEmoji, t.GetMessage("login_enter_code", 0, map[string]interface{}{
				"URL":  code.VerificationURI,
				"Code": ui.Accent.Sprint(code.UserCode),
			}))

			session, err := cmdutil.Await[models.Session](ctx, gh.Events(), gh.PollDeviceToken(code),
				t.GetMessage("login_waiting", 0, nil))
			if err != nil {
				return err
			}

			cfg.Session = config.Session{AccessToken: session.AccessToken, User: session.User}
			if err := config.SaveConfig(cfg); err != nil {
				return err
			}
			logger.Info(ctx, "logged in", "user", session.User)

			ui.PrintSuccess(out, t.GetMessage("login_success", 0, map[string]interface{}{"User": session.User}))
			return nil
		},
	}
}

type LogoutCommandFactory struct{}

func NewLogoutCommandFactory() *LogoutCommandFactory {
	return &LogoutCommandFactory{}
}

func (f *LogoutCommandFactory) CreateCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: t.GetMessage("logout_usage", 0, nil),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.ClearSession()
			if err := config.SaveConfig(cfg); err != nil {
				return err
			}
			ui.PrintSuccess(cmdutil.Output(cmd), t.GetMessage("logout_success", 0, nil))
			return nil
		},
	}
}

type WhoamiCommandFactory struct {
	container *app.Container
}

func NewWhoamiCommandFactory(c *app.Container) *WhoamiCommandFactory {
	return &WhoamiCommandFactory{container: c}
}

func (f *WhoamiCommandFactory) CreateCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: t.GetMessage("whoami_usage", 0, nil),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			out := cmdutil.Output(cmd)
			token, err := cmdutil.Token(cfg)
			if err != nil {
				_, _ = fmt.Fprintln(out, t.GetMessage("not_logged_in", 0, nil))
				return nil
			}

			gh := f.container.GitHub()
			user, err := cmdutil.Await[models.User](ctx, gh.Events(), gh.AuthenticatedUser(token), "")
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(out, ui.Accent.Sprint(user.Login))
			if user.Name != "" {
				_, _ = fmt.Fprintf(out, "   %s %s\n", ui.Dim.Sprint("name:"), user.Name)
			}
			if user.Email != "" {
				_, _ = fmt.Fprintf(out, "   %s %s\n", ui.Dim.Sprint("email:"), user.Email)
			}
			return nil
		},
	}
}
