package saga

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thomas-vilte/materelease/internal/archive"
	"github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/git"
	"github.com/thomas-vilte/materelease/internal/models"
	"github.com/thomas-vilte/materelease/internal/versionfile"
	"github.com/thomas-vilte/materelease/internal/worker"
)

// uploadInspector stands in for the hosting API and opens every uploaded
// zip so the test can look at what was packed.
type uploadInspector struct {
	facade  *worker.Facade
	entries map[string]string
}

func (u *uploadInspector) CreateRelease(string, models.RepositoryHandle, models.ReleaseDraft) uint64 {
	return u.facade.Submit(worker.Request{Name: "CreateRelease", Run: func(context.Context) (any, error) {
		return testRel, nil
	}})
}

func (u *uploadInspector) UploadAsset(_, _, path string) uint64 {
	return u.facade.Submit(worker.Request{Name: "UploadAsset", Run: func(context.Context) (any, error) {
		zr, err := zip.OpenReader(path)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		for _, f := range zr.File {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			data, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, err
			}
			u.entries[f.Name] = string(data)
		}
		return nil, nil
	}})
}

func (u *uploadInspector) DeleteRelease(string, models.RepositoryHandle, int64) uint64 {
	return u.facade.Submit(worker.Request{Name: "DeleteRelease", Run: func(context.Context) (any, error) {
		return nil, nil
	}})
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
	return strings.TrimSpace(string(out))
}

func TestScenario_PublishWithUncommittedChanges(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")

	dir := t.TempDir()
	runGit(t, dir, "init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.txt"), []byte("v1"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "VERSION"), []byte("1.2.0\n"), 0644))
	runGit(t, dir, "add", "-A")
	runGit(t, dir, "-c", "user.name=Dev", "-c", "user.email=dev@example.com", "commit", "-m", "initial")
	bare := t.TempDir()
	runGit(t, bare, "init", "--bare", "-b", "main")
	runGit(t, dir, "remote", "add", "origin", bare)
	runGit(t, dir, "push", "-u", "origin", "main")
	head := runGit(t, dir, "rev-parse", "HEAD")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.txt"), []byte("v2 draft"), 0644))

	ctx := context.Background()
	vcs := git.NewManager(ctx, git.NewGitService(), config.Timeouts{
		Status: config.Duration{Duration: 10 * time.Second},
		Git:    config.Duration{Duration: 30 * time.Second},
	})
	api := &uploadInspector{facade: worker.New(ctx, "api"), entries: map[string]string{}}
	defer func() {
		_ = vcs.Close(5 * time.Second)
		_ = api.facade.Close(5 * time.Second)
	}()

	sink := newRecordingSink(&journal{})
	s := New(Deps{
		VCS:     vcs,
		API:     api,
		Archive: archive.CreateProjectZip,
		VersionFile: func(root string) VersionWriter {
			return versionfile.New(root, "", "")
		},
		ArchiveDir: t.TempDir(),
	}, sink)
	c := NewCoordinator(s, vcs.Events(), api.facade.Events())
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = c.Run(runCtx) }()

	handle := models.RepositoryHandle{LocalPath: dir, RemoteOwner: "octo", RemoteName: "editor"}
	_, err := c.Publish(ctx, PublishRequest{
		Draft:    models.ReleaseDraft{TagName: "v1.2.1", TargetBranch: "main"},
		Handle:   handle,
		Settings: testConfig,
	})
	require.NoError(t, err)

	report := waitSettled(t, sink)
	require.Equal(t, StepDone, report.Outcome, "run failed: %v", report.Err)

	assert.Equal(t, "v2 draft", api.entries["main.txt"], "archive packs the working tree")
	assert.Equal(t, head, runGit(t, dir, "rev-list", "-n", "1", "v1.2.1"), "tag points at the last existing commit")
	assert.Equal(t, head, runGit(t, bare, "rev-list", "-n", "1", "v1.2.1"))

	data, err := os.ReadFile(filepath.Join(dir, "VERSION"))
	require.NoError(t, err)
	assert.Equal(t, "1.2.1\n", string(data))
	assert.Equal(t, "chore: bump version to 1.2.1", runGit(t, bare, "log", "-1", "--format=%s", "main"))
}
