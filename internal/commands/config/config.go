package config

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/thomas-vilte/materelease/internal/commands/cmdutil"
	"github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/thomas-vilte/materelease/internal/ui"
	"github.com/urfave/cli/v3"
)

type ConfigCommandFactory struct{}

func NewConfigCommandFactory() *ConfigCommandFactory {
	return &ConfigCommandFactory{}
}

func (c *ConfigCommandFactory) CreateCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   t.GetMessage("config_usage", 0, nil),
		Commands: []*cli.Command{
			c.newShowCommand(t, cfg),
			c.newSetCommand(t, cfg),
			c.newEditCommand(t, cfg),
		},
	}
}

func (c *ConfigCommandFactory) newShowCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: t.GetMessage("config_show_usage", 0, nil),
		Action: func(ctx context.Context, command *cli.Command) error {
			out := cmdutil.Output(command)
			_, _ = fmt.Fprintln(out, t.GetMessage("config_current", 0, map[string]interface{}{"Path": cfg.PathFile}))
			_, _ = fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━")

			ui.PrintKeyValue(out, "language", cfg.Language)
			ui.PrintKeyValue(out, "client_id", orUnset(cfg.ClientID))
			if cfg.APIBaseURL != "" {
				ui.PrintKeyValue(out, "api_base_url", cfg.APIBaseURL)
			}
			session := t.GetMessage("not_logged_in", 0, nil)
			if cfg.LoggedIn() {
				session = cfg.Session.User
			}
			ui.PrintKeyValue(out, "session", session)
			ui.PrintKeyValue(out, "identity", orUnset(strings.TrimSpace(cfg.Identity.Name+" <"+cfg.Identity.Email+">")))
			ui.PrintKeyValue(out, "active_repository", orUnset(cfg.ActiveRepository))
			ui.PrintKeyValue(out, "version_file", orUnset(cfg.VersionFile))
			ui.PrintKeyValue(out, "index_file", orUnset(cfg.IndexFile))
			ui.PrintKeyValue(out, "build.mode", cfg.Build.Mode)
			ui.PrintKeyValue(out, "history_path", cfg.HistoryPath)
			return nil
		},
	}
}

// setters maps the keys accepted by "config set" to the field they write.
var setters = map[string]func(cfg *config.Config, value string) error{
	"lang": func(cfg *config.Config, value string) error {
		if !config.SupportedLanguage(value) {
			return fmt.Errorf("unsupported language: %s", value)
		}
		cfg.Language = value
		return nil
	},
	"client_id":       func(cfg *config.Config, v string) error { cfg.ClientID = v; return nil },
	"api_base_url":    func(cfg *config.Config, v string) error { cfg.APIBaseURL = v; return nil },
	"version_file":    func(cfg *config.Config, v string) error { cfg.VersionFile = v; return nil },
	"version_pattern": func(cfg *config.Config, v string) error { cfg.VersionPattern = v; return nil },
	"index_file":      func(cfg *config.Config, v string) error { cfg.IndexFile = v; return nil },
	"history_path":    func(cfg *config.Config, v string) error { cfg.HistoryPath = v; return nil },
	"build.mode": func(cfg *config.Config, v string) error {
		if v != config.BuildModeCommand && v != config.BuildModeGo {
			return fmt.Errorf("unsupported build mode: %s", v)
		}
		cfg.Build.Mode = v
		return nil
	},
	"build.command": func(cfg *config.Config, v string) error { cfg.Build.Command = strings.Fields(v); return nil },
}

func (c *ConfigCommandFactory) newSetCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     t.GetMessage("config_set_usage", 0, nil),
		ArgsUsage: "<key> <value>",
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.Args().Len() < 2 {
				return fmt.Errorf("%s", t.GetMessage("error_expected_argument", 0, map[string]interface{}{"Arg": "<key> <value>"}))
			}
			key := strings.ToLower(command.Args().Get(0))
			value := command.Args().Get(1)

			set, ok := setters[key]
			if !ok {
				return fmt.Errorf("%s", t.GetMessage("config_unknown_key", 0, map[string]interface{}{"Key": key}))
			}
			if err := set(cfg, value); err != nil {
				return err
			}
			if err := config.SaveConfig(cfg); err != nil {
				return err
			}
			ui.PrintSuccess(cmdutil.Output(command), t.GetMessage("config_value_set", 0, map[string]interface{}{
				"Key":   key,
				"Value": value,
			}))
			return nil
		},
	}
}

func (c *ConfigCommandFactory) newEditCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:   "edit",
		Usage:  t.GetMessage("config_edit_usage", 0, nil),
		Action: editConfigAction(cfg, t),
	}
}

func editConfigAction(cfg *config.Config, t *i18n.Translations) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		editor := os.Getenv("EDITOR")
		if editor == "" {
			if _, err := exec.LookPath("nano"); err == nil {
				editor = "nano"
			} else if _, err := exec.LookPath("vim"); err == nil {
				editor = "vim"
			} else {
				return fmt.Errorf("%s", t.GetMessage("config_no_editor", 0, nil))
			}
		}

		cmd := exec.CommandContext(ctx, editor, cfg.PathFile)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s: %w", t.GetMessage("config_editor_failed", 0, nil), err)
		}
		return nil
	}
}

func orUnset(s string) string {
	if s == "" || s == "<>" {
		return "(unset)"
	}
	return s
}
