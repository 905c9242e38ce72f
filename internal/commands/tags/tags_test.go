package tags

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thomas-vilte/materelease/internal/commands/cmdtest"
	domainErrors "github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/vcs/github"
)

func newEnv(t *testing.T) (*cmdtest.Env, func(args ...string) error) {
	env := cmdtest.NewEnv(t)
	env.NewRepo(t)
	env.LogIn(t)
	run := func(args ...string) error {
		cmd := NewTagsCommandFactory(env.Container).CreateCommand(env.Trans, env.Config)
		return env.Run(context.Background(), cmd, append([]string{"tags"}, args...)...)
	}
	return env, run
}

// withReleases seeds the hub with tags, publishing a release for the ones in
// released.
func withReleases(env *cmdtest.Env, tags []string, released ...string) {
	env.Hub.Update(func(h *cmdtest.Hub) {
		h.Tags = append(h.Tags, tags...)
		for i, tag := range released {
			h.Releases = append(h.Releases, &cmdtest.Release{ID: int64(i + 1), Tag: tag, Name: tag, Assets: map[string][]byte{}})
		}
	})
}

func TestListCommand(t *testing.T) {
	env, run := newEnv(t)
	withReleases(env, []string{"v1.0.0", "v1.1.0"})

	require.NoError(t, run("list"))

	assert.Equal(t, "v1.0.0  sha-v1.\nv1.1.0  sha-v1.\n", env.Out.String())
}

func TestListCommand_NotLoggedIn(t *testing.T) {
	env := cmdtest.NewEnv(t)
	env.NewRepo(t)
	cmd := NewTagsCommandFactory(env.Container).CreateCommand(env.Trans, env.Config)

	err := env.Run(context.Background(), cmd, "tags", "list")

	assert.True(t, errors.Is(err, domainErrors.ErrNotAuthenticated))
}

func TestPruneCommand(t *testing.T) {
	t.Run("deletes tags without a release", func(t *testing.T) {
		env, run := newEnv(t)
		withReleases(env, []string{"v1.0.0", "v1.1.0"}, "v1.1.0")

		require.NoError(t, run("prune", "--yes"))

		assert.Equal(t, []string{"v1.1.0"}, env.Hub.TagNames())
		out := env.Out.String()
		assert.Contains(t, out, "1 orphaned tag deleted")
		assert.Contains(t, out, "- v1.0.0")
	})

	t.Run("nothing to prune", func(t *testing.T) {
		env, run := newEnv(t)
		withReleases(env, []string{"v1.0.0"}, "v1.0.0")

		require.NoError(t, run("prune", "--yes"))

		assert.Contains(t, env.Out.String(), "No orphaned tags")
		assert.Equal(t, []string{"v1.0.0"}, env.Hub.TagNames())
	})

	t.Run("declined prompt deletes nothing", func(t *testing.T) {
		env, run := newEnv(t)
		withReleases(env, []string{"v1.0.0"})
		env.In = strings.NewReader("no\n")

		require.NoError(t, run("prune"))

		assert.Contains(t, env.Out.String(), "delete every tag of octocat/project that has no release")
		assert.Contains(t, env.Out.String(), "Operation cancelled")
		assert.Equal(t, []string{"v1.0.0"}, env.Hub.TagNames())
	})

	t.Run("partial failure reports both sides", func(t *testing.T) {
		env, run := newEnv(t)
		withReleases(env, []string{"v0.9.0", "v1.0.0", "v1.1.0"}, "v1.1.0")
		env.Hub.Update(func(h *cmdtest.Hub) { h.FailDeleteRef["v0.9.0"] = true })

		err := run("prune", "--yes")

		require.Error(t, err)
		var partial *github.PartialCleanupError
		require.True(t, errors.As(err, &partial))
		assert.Equal(t, []string{"v1.0.0"}, partial.Result.Deleted)
		assert.Contains(t, partial.Result.Failed, "v0.9.0")
		assert.True(t, errors.Is(err, domainErrors.ErrPartialCleanup))

		out := env.Out.String()
		assert.Contains(t, out, "1 orphaned tag deleted")
		assert.Contains(t, out, "1 tag could not be deleted")
		assert.Contains(t, out, "- v0.9.0")
		assert.ElementsMatch(t, []string{"v0.9.0", "v1.1.0"}, env.Hub.TagNames())
	})
}
