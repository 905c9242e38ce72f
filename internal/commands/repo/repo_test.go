package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thomas-vilte/materelease/internal/commands/cmdtest"
	"github.com/thomas-vilte/materelease/internal/config"
	domainErrors "github.com/thomas-vilte/materelease/internal/errors"
)

func newEnv(t *testing.T) (*cmdtest.Env, func(args ...string) error) {
	env := cmdtest.NewEnv(t)
	run := func(args ...string) error {
		cmd := NewRepoCommandFactory(env.Container).CreateCommand(env.Trans, env.Config)
		return env.Run(context.Background(), cmd, append([]string{"repo"}, args...)...)
	}
	return env, run
}

func TestAddCommand(t *testing.T) {
	t.Run("should resolve owner and name from origin", func(t *testing.T) {
		env, run := newEnv(t)
		dir := filepath.Join(t.TempDir(), "widget")
		cmdtest.Git(t, filepath.Dir(dir), "init", "-b", "main", dir)
		cmdtest.Git(t, dir, "remote", "add", "origin", "https://github.com/acme/widget.git")

		err := run("add", dir)

		require.NoError(t, err)
		repo, ok := env.Config.Repository("widget")
		require.True(t, ok)
		assert.Equal(t, "acme", repo.Owner)
		assert.Equal(t, "widget", repo.Name)
		assert.Equal(t, "widget", env.Config.ActiveRepository)
		assert.Contains(t, env.Out.String(), "acme/widget")
	})

	t.Run("should accept a directory without origin", func(t *testing.T) {
		env, run := newEnv(t)
		dir := t.TempDir()

		err := run("add", "--id", "draft", dir)

		require.NoError(t, err)
		repo, ok := env.Config.Repository("draft")
		require.True(t, ok)
		assert.Empty(t, repo.Owner)
		assert.Contains(t, env.Out.String(), "-/-")

		loaded, err := config.LoadConfig(env.Config.PathFile)
		require.NoError(t, err)
		assert.Len(t, loaded.Repositories, 1)
	})

	t.Run("should require a path", func(t *testing.T) {
		_, run := newEnv(t)
		assert.Error(t, run("add"))
	})
}

func TestListAndUseCommands(t *testing.T) {
	env, run := newEnv(t)
	env.NewRepo(t)
	env.Config.UpsertRepository(config.Repository{ID: "other", Path: "/tmp/other"})

	require.NoError(t, run("list"))
	assert.Contains(t, env.Out.String(), "* project")
	assert.Contains(t, env.Out.String(), "octocat/project")
	assert.Contains(t, env.Out.String(), "(no remote)")

	require.NoError(t, run("use", "other"))
	assert.Equal(t, "other", env.Config.ActiveRepository)

	err := run("use", "missing")
	assert.ErrorIs(t, err, domainErrors.ErrRepositoryUnknown)
	assert.Equal(t, "other", env.Config.ActiveRepository)
}

func TestCreateCommand(t *testing.T) {
	t.Run("should create a private repository", func(t *testing.T) {
		env, run := newEnv(t)
		env.LogIn(t)

		err := run("create", "--private", "newrepo")

		require.NoError(t, err)
		assert.True(t, env.Hub.Private("newrepo"))
		assert.Contains(t, env.Out.String(), "octocat/newrepo")
	})

	t.Run("should require a session", func(t *testing.T) {
		_, run := newEnv(t)
		assert.ErrorIs(t, run("create", "newrepo"), domainErrors.ErrNotAuthenticated)
	})

	t.Run("should map an existing name", func(t *testing.T) {
		env, run := newEnv(t)
		env.LogIn(t)
		env.Hub.Update(func(h *cmdtest.Hub) { h.Repos["taken"] = false })

		err := run("create", "taken")

		assert.ErrorIs(t, err, domainErrors.ErrAlreadyExists)
	})
}

func TestVisibilityCommand(t *testing.T) {
	env, run := newEnv(t)
	env.LogIn(t)
	env.NewRepo(t)
	env.Hub.Update(func(h *cmdtest.Hub) { h.Repos["project"] = false })

	require.NoError(t, run("visibility", "private"))
	assert.True(t, env.Hub.Private("project"))
	assert.Contains(t, env.Out.String(), "octocat/project is now private")

	assert.Error(t, run("visibility", "secret"))
}

func TestLinkCommand(t *testing.T) {
	env, run := newEnv(t)
	dir, _ := env.NewRepo(t)

	err := run("link", "https://github.com/acme/widget.git")

	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widget.git", cmdtest.Git(t, dir, "remote", "get-url", "origin"))
	repo, _ := env.Config.Active()
	assert.Equal(t, "acme", repo.Owner)
	assert.Equal(t, "widget", repo.Name)
}

func TestPublishCommand(t *testing.T) {
	env, run := newEnv(t)
	base := t.TempDir()
	dir := filepath.Join(base, "fresh")
	origin := filepath.Join(base, "fresh.git")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0644))
	cmdtest.Git(t, base, "init", "--bare", "-b", "main", origin)
	require.NoError(t, run("add", "--owner", "octocat", "--name", "fresh", dir))

	err := run("publish", "--message", "first", origin)

	require.NoError(t, err)
	assert.Equal(t, "first", cmdtest.Git(t, origin, "log", "-1", "--format=%s", "main"))
	assert.Equal(t, "Test User", cmdtest.Git(t, origin, "log", "-1", "--format=%an", "main"))
	assert.Contains(t, env.Out.String(), "main published")
}

func TestRemoteQueries(t *testing.T) {
	env, run := newEnv(t)
	env.LogIn(t)
	env.NewRepo(t)
	env.Hub.Update(func(h *cmdtest.Hub) {
		h.Branches = []string{"main", "dev"}
		h.Repos["alpha"] = false
		h.Repos["beta"] = true
		h.Files["docs/index.json"] = `{"latest":"1.0.0"}`
	})

	t.Run("branches", func(t *testing.T) {
		env.Out.Reset()
		require.NoError(t, run("branches"))
		assert.Contains(t, env.Out.String(), "main (protected)")
		assert.Contains(t, env.Out.String(), "dev\n")
	})

	t.Run("remote-list", func(t *testing.T) {
		env.Out.Reset()
		require.NoError(t, run("remote-list"))
		assert.Contains(t, env.Out.String(), "octocat/alpha  public")
		assert.Contains(t, env.Out.String(), "octocat/beta  private")
	})

	t.Run("index from flag", func(t *testing.T) {
		env.Out.Reset()
		require.NoError(t, run("index", "--path", "docs/index.json"))
		assert.Equal(t, `{"latest":"1.0.0"}`, env.Out.String())
	})

	t.Run("index without configuration", func(t *testing.T) {
		assert.Error(t, run("index"))
	})

	t.Run("index from config", func(t *testing.T) {
		env.Out.Reset()
		env.Config.IndexFile = "docs/index.json"
		defer func() { env.Config.IndexFile = "" }()
		require.NoError(t, run("index"))
		assert.Contains(t, env.Out.String(), "latest")
	})
}
