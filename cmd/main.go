package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/thomas-vilte/materelease/internal/app"
	"github.com/thomas-vilte/materelease/internal/commands/auth"
	"github.com/thomas-vilte/materelease/internal/commands/completion"
	configcmd "github.com/thomas-vilte/materelease/internal/commands/config"
	"github.com/thomas-vilte/materelease/internal/commands/gitcmd"
	"github.com/thomas-vilte/materelease/internal/commands/history"
	"github.com/thomas-vilte/materelease/internal/commands/publish"
	"github.com/thomas-vilte/materelease/internal/commands/registry"
	"github.com/thomas-vilte/materelease/internal/commands/releases"
	"github.com/thomas-vilte/materelease/internal/commands/repo"
	"github.com/thomas-vilte/materelease/internal/commands/tags"
	cfg "github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/thomas-vilte/materelease/internal/logger"
	"github.com/thomas-vilte/materelease/internal/ui"
	"github.com/thomas-vilte/materelease/internal/version"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx := context.Background()
	application, container, err := initializeApp(ctx)
	if err != nil {
		log.Fatalf("Error starting the cli: %v", err)
	}

	runErr := application.Run(ctx, os.Args)
	if err := container.Close(shutdownTimeout); err != nil {
		logger.Error(ctx, "shutdown incomplete", err)
	}
	if runErr != nil {
		ui.HandleAppError(os.Stderr, runErr, container.Translations())
		os.Exit(1)
	}
}

func initializeApp(ctx context.Context) (*cli.Command, *app.Container, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, nil, fmt.Errorf("could not resolve the home directory: %w", err)
	}

	cfgApp, err := cfg.LoadConfig(homeDir)
	if err != nil {
		return nil, nil, err
	}

	translations, err := i18n.NewTranslations(cfg.LocaleFor(cfgApp.Language), "")
	if err != nil {
		return nil, nil, fmt.Errorf("error loading translations: %w", err)
	}

	container := app.NewContainer(ctx, cfgApp, translations)
	registerCommand := registry.NewRegistry(cfgApp, translations)

	factories := []struct {
		name    string
		factory registry.CommandFactory
	}{
		{"login", auth.NewLoginCommandFactory(container)},
		{"logout", auth.NewLogoutCommandFactory()},
		{"whoami", auth.NewWhoamiCommandFactory(container)},
		{"repo", repo.NewRepoCommandFactory(container)},
		{"git", gitcmd.NewGitCommandFactory(container)},
		{"tags", tags.NewTagsCommandFactory(container)},
		{"releases", releases.NewReleasesCommandFactory(container)},
		{"publish", publish.NewPublishCommandFactory(container)},
		{"history", history.NewHistoryCommandFactory(container)},
		{"config", configcmd.NewConfigCommandFactory()},
		{"completion", completion.NewCompletionCommandFactory()},
	}
	for _, f := range factories {
		if err := registerCommand.Register(f.name, f.factory); err != nil {
			return nil, nil, fmt.Errorf("error registering command '%s': %w", f.name, err)
		}
	}

	commands := registerCommand.CreateCommands()
	helpCommand := &cli.Command{
		Name:    "help",
		Aliases: []string{"h"},
		Usage:   translations.GetMessage("help_command_usage", 0, nil),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
	}
	commands = append(commands, helpCommand)

	return &cli.Command{
		Name:        "materelease",
		Usage:       translations.GetMessage("app_usage", 0, nil),
		Version:     version.Version,
		Description: translations.GetMessage("app_description", 0, nil),
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: translations.GetMessage("flag_debug_usage", 0, nil)},
			&cli.BoolFlag{Name: "verbose", Usage: translations.GetMessage("flag_verbose_usage", 0, nil)},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logger.Initialize(logger.Options{
				Debug:   cmd.Bool("debug"),
				Verbose: cmd.Bool("verbose"),
				Plain:   !isatty.IsTerminal(os.Stderr.Fd()),
				Output:  os.Stderr,
			})
			return ctx, nil
		},
		Commands:              commands,
		EnableShellCompletion: true,
	}, container, nil
}
