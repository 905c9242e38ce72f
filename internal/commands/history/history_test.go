package history

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thomas-vilte/materelease/internal/commands/cmdtest"
	"github.com/thomas-vilte/materelease/internal/saga"
)

func TestHistoryCommand(t *testing.T) {
	env := cmdtest.NewEnv(t)
	run := func(args ...string) error {
		cmd := NewHistoryCommandFactory(env.Container).CreateCommand(env.Trans, env.Config)
		return env.Run(context.Background(), cmd, append([]string{"history"}, args...)...)
	}

	t.Run("empty log", func(t *testing.T) {
		env.Out.Reset()
		require.NoError(t, run())
		assert.Equal(t, "No publish runs recorded yet\n", env.Out.String())
	})

	store, err := env.Container.History()
	require.NoError(t, err)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Record(context.Background(), saga.Report{
		RunID:      "run-ok",
		Tag:        "v1.0.0",
		Repository: "octocat/project",
		Outcome:    saga.StepDone,
		StartedAt:  start,
		FinishedAt: start.Add(42 * time.Second),
	}))
	require.NoError(t, store.Record(context.Background(), saga.Report{
		RunID:      "run-failed",
		Tag:        "v1.1.0",
		Repository: "octocat/project",
		Outcome:    saga.StepFailed,
		Err:        errors.New("upload refused"),
		Actions: []saga.ActionResult{
			{Action: saga.ActionDeleteRelease, Target: "7"},
			{Action: saga.ActionDeleteRemoteTag, Target: "v1.1.0", Err: errors.New("network down")},
		},
		ManualCleanup: true,
		StartedAt:     start.Add(time.Hour),
		FinishedAt:    start.Add(time.Hour + 5*time.Second),
	}))

	t.Run("lists runs with their rollback", func(t *testing.T) {
		env.Out.Reset()
		require.NoError(t, run())

		out := env.Out.String()
		assert.Contains(t, out, "v1.0.0")
		assert.Contains(t, out, "DONE")
		assert.Contains(t, out, "42s")
		assert.Contains(t, out, "FAILED")
		assert.Contains(t, out, "manual cleanup")
		assert.Contains(t, out, "run-failed upload refused")
		assert.Contains(t, out, "✓ delete_release 7")
		assert.Contains(t, out, "✗ delete_remote_tag v1.1.0")
		assert.NotContains(t, out, "run-ok", "successful runs have no detail block")
	})

	t.Run("limit", func(t *testing.T) {
		env.Out.Reset()
		require.NoError(t, run("--limit", "1"))

		out := env.Out.String()
		assert.Contains(t, out, "v1.1.0")
		assert.False(t, strings.Contains(out, "v1.0.0"), "only the most recent run is shown")
	})
}
