package cmdtest

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/thomas-vilte/materelease/internal/app"
	"github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/urfave/cli/v3"
)

// Env is a throwaway home directory with a config file, translations, a
// container wired to a Hub, and a buffer capturing command output.
type Env struct {
	Home      string
	Config    *config.Config
	Trans     *i18n.Translations
	Hub       *Hub
	Container *app.Container
	Out       *bytes.Buffer

	// In answers confirmation prompts.
	In io.Reader
}

// NewEnv isolates git from the user's configuration. It uses t.Setenv, so
// tests using it cannot run in parallel.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	t.Setenv("GIT_TERMINAL_PROMPT", "0")

	cfg, err := config.LoadConfig(home)
	require.NoError(t, err)
	cfg.ClientID = ClientID
	cfg.Identity = config.Identity{Name: "Test User", Email: "test@example.com"}
	require.NoError(t, config.SaveConfig(cfg))

	trans, err := i18n.NewTranslations("en", "")
	require.NoError(t, err)

	hub := NewHub(t)
	container := app.NewContainer(context.Background(), cfg, trans,
		app.WithDeviceFlow(hub.DeviceFlow()),
		app.WithClientFactory(hub.ClientFactory()),
	)
	t.Cleanup(func() { _ = container.Close(5 * time.Second) })

	return &Env{
		Home:      home,
		Config:    cfg,
		Trans:     trans,
		Hub:       hub,
		Container: container,
		Out:       &bytes.Buffer{},
		In:        strings.NewReader(""),
	}
}

// LogIn stores a session the Hub accepts.
func (e *Env) LogIn(t *testing.T) {
	t.Helper()
	e.Config.Session = config.Session{AccessToken: Token, User: Login}
	require.NoError(t, config.SaveConfig(e.Config))
}

// Run executes cmd under a bare root command, as "materelease <args>".
func (e *Env) Run(ctx context.Context, cmd *cli.Command, args ...string) error {
	root := &cli.Command{
		Name:     "materelease",
		Writer:   e.Out,
		Reader:   e.In,
		Commands: []*cli.Command{cmd},
	}
	return root.Run(ctx, append([]string{"materelease"}, args...))
}

// NewRepo creates a repository with one commit on main whose origin is a
// bare repository. It is registered and made active as "project", owned by
// Login on the Hub.
func (e *Env) NewRepo(t *testing.T) (dir, origin string) {
	t.Helper()
	base := t.TempDir()
	dir = filepath.Join(base, "project")
	origin = filepath.Join(base, "origin.git")

	Git(t, base, "init", "--bare", "-b", "main", origin)
	Git(t, base, "init", "-b", "main", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.txt"), []byte("v1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "VERSION"), []byte("1.0.0\n"), 0644))
	Git(t, dir, "add", "-A")
	Git(t, dir, "-c", "user.name=Test User", "-c", "user.email=test@example.com", "commit", "-m", "initial")
	Git(t, dir, "remote", "add", "origin", origin)
	Git(t, dir, "push", "-u", "origin", "main")

	e.Config.UpsertRepository(config.Repository{ID: "project", Path: dir, Owner: Login, Name: "project"})
	require.NoError(t, e.Config.SetActive("project"))
	require.NoError(t, config.SaveConfig(e.Config))
	return dir, origin
}

// Git runs git in dir and returns its trimmed stdout.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
	return strings.TrimSpace(string(out))
}
