package config

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/urfave/cli/v3"
)

func setupConfigTest(t *testing.T) (*config.Config, *i18n.Translations) {
	t.Helper()
	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)

	translations, err := i18n.NewTranslations("en", "")
	require.NoError(t, err)
	return cfg, translations
}

func run(t *testing.T, cmd *cli.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := &cli.Command{Name: "materelease", Writer: &out, Commands: []*cli.Command{cmd}}
	err := app.Run(context.Background(), append([]string{"materelease"}, args...))
	return out.String(), err
}

func TestShowCommand(t *testing.T) {
	t.Run("should display the stored settings", func(t *testing.T) {
		cfg, translations := setupConfigTest(t)
		cfg.ClientID = "client-123"
		cfg.Session = config.Session{AccessToken: "gho_x", User: "octocat"}

		cmd := NewConfigCommandFactory().CreateCommand(translations, cfg)
		out, err := run(t, cmd, "config", "show")

		require.NoError(t, err)
		assert.Contains(t, out, "client-123")
		assert.Contains(t, out, "octocat")
		assert.Contains(t, out, cfg.PathFile)
	})

	t.Run("should mark a missing session", func(t *testing.T) {
		cfg, translations := setupConfigTest(t)

		cmd := NewConfigCommandFactory().CreateCommand(translations, cfg)
		out, err := run(t, cmd, "config", "show")

		require.NoError(t, err)
		assert.Contains(t, out, "Not logged in")
		assert.Contains(t, out, "(unset)")
	})
}

func TestSetCommand(t *testing.T) {
	t.Run("should persist a known key", func(t *testing.T) {
		cfg, translations := setupConfigTest(t)

		cmd := NewConfigCommandFactory().CreateCommand(translations, cfg)
		_, err := run(t, cmd, "config", "set", "client_id", "abc")

		require.NoError(t, err)
		loaded, err := config.LoadConfig(cfg.PathFile)
		require.NoError(t, err)
		assert.Equal(t, "abc", loaded.ClientID)
	})

	t.Run("should split the build command into arguments", func(t *testing.T) {
		cfg, translations := setupConfigTest(t)

		cmd := NewConfigCommandFactory().CreateCommand(translations, cfg)
		_, err := run(t, cmd, "config", "set", "build.command", "make installer")

		require.NoError(t, err)
		assert.Equal(t, []string{"make", "installer"}, cfg.Build.Command)
	})

	t.Run("should fail with unsupported language", func(t *testing.T) {
		cfg, translations := setupConfigTest(t)

		cmd := NewConfigCommandFactory().CreateCommand(translations, cfg)
		_, err := run(t, cmd, "config", "set", "lang", "fr")

		assert.Error(t, err)
		loaded, err := config.LoadConfig(cfg.PathFile)
		require.NoError(t, err)
		assert.Equal(t, "en", loaded.Language)
	})

	t.Run("should reject unknown keys", func(t *testing.T) {
		cfg, translations := setupConfigTest(t)

		cmd := NewConfigCommandFactory().CreateCommand(translations, cfg)
		_, err := run(t, cmd, "config", "set", "use_emoji", "true")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "use_emoji")
	})

	t.Run("should require key and value", func(t *testing.T) {
		cfg, translations := setupConfigTest(t)

		cmd := NewConfigCommandFactory().CreateCommand(translations, cfg)
		_, err := run(t, cmd, "config", "set", "lang")

		assert.Error(t, err)
	})
}
