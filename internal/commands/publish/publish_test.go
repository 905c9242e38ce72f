package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thomas-vilte/materelease/internal/commands/cmdtest"
	domainErrors "github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/history"
	"github.com/thomas-vilte/materelease/internal/models"
	"github.com/urfave/cli/v3"
)

func newEnv(t *testing.T) (*cmdtest.Env, string, string, func(args ...string) error) {
	env := cmdtest.NewEnv(t)
	dir, origin := env.NewRepo(t)
	env.LogIn(t)
	run := func(args ...string) error {
		cmd := NewPublishCommandFactory(env.Container).CreateCommand(env.Trans, env.Config)
		return env.Run(context.Background(), cmd, append([]string{"publish", "--plain"}, args...)...)
	}
	return env, dir, origin, run
}

func recent(t *testing.T, env *cmdtest.Env) []history.Entry {
	t.Helper()
	store, err := env.Container.History()
	require.NoError(t, err)
	entries, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	return entries
}

func TestPublishCommand_Success(t *testing.T) {
	env, dir, origin, run := newEnv(t)

	require.NoError(t, run("--tag", "v1.1.0", "--title", "Editor 1.1", "--notes", "Faster startup"))

	rel := env.Hub.Release("v1.1.0")
	require.NotNil(t, rel)
	assert.Equal(t, "Editor 1.1", rel.Name)
	assert.Equal(t, "Faster startup", rel.Body)
	require.Len(t, rel.Assets, 1)
	assert.NotEmpty(t, rel.Assets["project-v1.1.0.zip"])

	assert.Equal(t, "v1.1.0", cmdtest.Git(t, origin, "tag", "-l", "v1.1.0"))
	version, err := os.ReadFile(filepath.Join(dir, "VERSION"))
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", strings.TrimSpace(string(version)))
	assert.Equal(t, "chore: bump version to 1.1.0", cmdtest.Git(t, origin, "log", "-1", "--format=%s", "main"))

	out := env.Out.String()
	assert.NotContains(t, out, "uncommitted")
	assert.Contains(t, out, "Creating tag v1.1.0")
	assert.Contains(t, out, "Pushing tag v1.1.0")

	entries := recent(t, env)
	require.Len(t, entries, 1)
	assert.Equal(t, "v1.1.0", entries[0].Tag)
	assert.Equal(t, "octocat/project", entries[0].Repository)
	assert.False(t, entries[0].Failed())
}

func TestPublishCommand_UploadFailureRollsBack(t *testing.T) {
	env, dir, origin, run := newEnv(t)
	env.Hub.Update(func(h *cmdtest.Hub) { h.FailUpload = true })

	err := run("--tag", "v1.1.0", "--title", "Editor 1.1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domainErrors.ErrUploadAsset))

	assert.Nil(t, env.Hub.Release("v1.1.0"), "the release is deleted")
	assert.Empty(t, cmdtest.Git(t, origin, "tag", "-l", "v1.1.0"), "the pushed tag is deleted")
	assert.Empty(t, cmdtest.Git(t, dir, "tag", "-l", "v1.1.0"), "the local tag is deleted")

	version, readErr := os.ReadFile(filepath.Join(dir, "VERSION"))
	require.NoError(t, readErr)
	assert.Equal(t, "1.0.0", strings.TrimSpace(string(version)))

	entries := recent(t, env)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Failed())
	assert.False(t, entries[0].ManualCleanup)
	assert.NotEmpty(t, entries[0].Actions)
}

func TestPublishCommand_ExistingReleaseFails(t *testing.T) {
	env, dir, _, run := newEnv(t)
	env.Hub.Update(func(h *cmdtest.Hub) {
		h.Releases = append(h.Releases, &cmdtest.Release{ID: 1, Tag: "v1.1.0", Assets: map[string][]byte{}})
	})

	err := run("--tag", "v1.1.0")

	require.Error(t, err)
	assert.Empty(t, cmdtest.Git(t, dir, "tag", "-l", "v1.1.0"))
	assert.NotNil(t, env.Hub.Release("v1.1.0"), "a release the run did not create is left alone")
}

func TestPublishCommand_RequiresTag(t *testing.T) {
	_, _, _, run := newEnv(t)

	err := run()

	assert.True(t, errors.Is(err, domainErrors.ErrInvalidDraft))
}

func TestPublishCommand_WarnsAboutDirtyTree(t *testing.T) {
	env, dir, origin, run := newEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scratch.txt"), []byte("wip"), 0644))

	require.NoError(t, run("--tag", "v1.1.0"))

	assert.Contains(t, env.Out.String(), "Working tree has 1 uncommitted change")
	files := cmdtest.Git(t, origin, "show", "--name-only", "--format=", "main")
	assert.Contains(t, files, "scratch.txt", "the bump commit stages the whole tree")
}

func TestPublishCommand_RejectsNonSemverTag(t *testing.T) {
	env, dir, _, run := newEnv(t)

	err := run("--tag", "latest")

	assert.True(t, errors.Is(err, domainErrors.ErrInvalidDraft))
	assert.Empty(t, cmdtest.Git(t, dir, "tag", "-l"))
	assert.Nil(t, env.Hub.Release("latest"))
}

func TestPublishCommand_TagUsageNamesFormat(t *testing.T) {
	env := cmdtest.NewEnv(t)
	cmd := NewPublishCommandFactory(env.Container).CreateCommand(env.Trans, env.Config)

	var usage string
	for _, fl := range cmd.Flags {
		if sf, ok := fl.(*cli.StringFlag); ok && sf.Name == "tag" {
			usage = sf.Usage
		}
	}

	assert.Contains(t, usage, "v1.2.3")
	assert.Contains(t, usage, "1.2.3")
	assert.Contains(t, usage, "rc.1")
}

func TestPublishCommand_NotLoggedIn(t *testing.T) {
	env := cmdtest.NewEnv(t)
	env.NewRepo(t)
	cmd := NewPublishCommandFactory(env.Container).CreateCommand(env.Trans, env.Config)

	err := env.Run(context.Background(), cmd, "publish", "--plain", "--tag", "v1.1.0")

	assert.True(t, errors.Is(err, domainErrors.ErrNotAuthenticated))
}

func writeDraft(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "release.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDraft(t *testing.T) {
	t.Run("reads every field", func(t *testing.T) {
		path := writeDraft(t, `tag: v2.0.0
title: Editor 2
notes: |
  Big release
prerelease: true
target: release/2.x
installer: true
`)
		draft, err := LoadDraft(path)

		require.NoError(t, err)
		assert.Equal(t, models.ReleaseDraft{
			TagName:        "v2.0.0",
			Title:          "Editor 2",
			Notes:          "Big release\n",
			Prerelease:     true,
			TargetBranch:   "release/2.x",
			BuildInstaller: true,
		}, draft)
	})

	t.Run("unknown key is rejected", func(t *testing.T) {
		path := writeDraft(t, "tag: v2.0.0\ntitel: typo\n")

		_, err := LoadDraft(path)

		assert.True(t, errors.Is(err, domainErrors.ErrInvalidDraft))
		assert.Contains(t, err.Error(), "titel")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadDraft(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.True(t, errors.Is(err, domainErrors.ErrInvalidDraft))
	})
}

func TestDraftFromCommand(t *testing.T) {
	parse := func(t *testing.T, args ...string) (models.ReleaseDraft, error) {
		t.Helper()
		var (
			draft models.ReleaseDraft
			err   error
		)
		cmd := &cli.Command{
			Name: "publish",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "from"},
				&cli.StringFlag{Name: "tag"},
				&cli.StringFlag{Name: "title"},
				&cli.StringFlag{Name: "notes"},
				&cli.StringFlag{Name: "target"},
				&cli.BoolFlag{Name: "prerelease"},
				&cli.BoolFlag{Name: "installer"},
			},
			Action: func(_ context.Context, cmd *cli.Command) error {
				draft, err = draftFromCommand(cmd)
				return nil
			},
		}
		require.NoError(t, cmd.Run(context.Background(), append([]string{"publish"}, args...)))
		return draft, err
	}

	t.Run("flags override the file", func(t *testing.T) {
		path := writeDraft(t, "tag: v2.0.0\ntitle: From file\nprerelease: true\n")

		draft, err := parse(t, "--from", path, "--title", "From flag", "--prerelease=false")

		require.NoError(t, err)
		assert.Equal(t, "v2.0.0", draft.TagName)
		assert.Equal(t, "From flag", draft.Title)
		assert.False(t, draft.Prerelease)
	})

	t.Run("unset flags keep file values", func(t *testing.T) {
		path := writeDraft(t, "tag: v2.0.0\nnotes: kept\n")

		draft, err := parse(t, "--from", path)

		require.NoError(t, err)
		assert.Equal(t, "kept", draft.Notes)
	})

	t.Run("tag is required", func(t *testing.T) {
		_, err := parse(t, "--title", "No tag")

		assert.True(t, errors.Is(err, domainErrors.ErrInvalidDraft))
	})
}
