package saga

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thomas-vilte/materelease/internal/builder"
	"github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/thomas-vilte/materelease/internal/models"
	"github.com/thomas-vilte/materelease/internal/worker"
)

var (
	testHandle = models.RepositoryHandle{LocalPath: "/work/editor", RemoteOwner: "octo", RemoteName: "editor"}
	testDraft  = models.ReleaseDraft{TagName: "v1.2.1", Title: "Editor 1.2.1", TargetBranch: "main"}
	testConfig = Settings{Token: "gho_token", Identity: models.Identity{Name: "Dev", Email: "dev@example.com"}}
	testRel    = models.Release{ID: 77, HTMLURL: "https://github.com/octo/editor/releases/tag/v1.2.1", UploadURL: "https://uploads.github.com/repos/octo/editor/releases/77/assets{?name,label}"}
)

type harness struct {
	t       *testing.T
	ctx     context.Context
	journal *journal
	ports   *fakePorts
	sink    *recordingSink
	version *fakeVersionFile
	saga    *Saga
}

type harnessOption func(*Deps, *harness)

func withoutBuilder() harnessOption {
	return func(d *Deps, _ *harness) { d.Builder = nil }
}

func withArchiveFailure() harnessOption {
	return func(d *Deps, h *harness) { d.Archive = fakeArchiver(h.journal, false) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	tr, err := i18n.NewTranslations("en", "")
	require.NoError(t, err)

	h := &harness{t: t, ctx: context.Background(), journal: &journal{}}
	h.ports = &fakePorts{journal: h.journal}
	h.sink = newRecordingSink(h.journal)
	h.version = &fakeVersionFile{journal: h.journal}

	deps := Deps{
		VCS:         h.ports,
		API:         h.ports,
		Builder:     h.ports,
		Archive:     fakeArchiver(h.journal, true),
		VersionFile: func(string) VersionWriter { return h.version },
		Translator:  tr,
		ArchiveDir:  t.TempDir(),
	}
	for _, opt := range opts {
		opt(&deps, h)
	}
	h.saga = New(deps, h.sink)
	h.saga.newID = func() string { return "run-0001-abcdef" }
	return h
}

func (h *harness) begin(draft models.ReleaseDraft) {
	h.t.Helper()
	_, err := h.saga.Begin(h.ctx, draft, testHandle, testConfig)
	require.NoError(h.t, err)
}

// succeed resolves the newest outstanding call with payload.
func (h *harness) succeed(payload any) {
	h.t.Helper()
	c := h.ports.last()
	h.saga.Handle(h.ctx, worker.OperationSucceeded{Seq: c.ticket, Name: c.op, Payload: payload})
}

func (h *harness) failWith(reason error) {
	h.t.Helper()
	c := h.ports.last()
	h.saga.Handle(h.ctx, worker.OperationFailed{Seq: c.ticket, Name: c.op, Reason: reason})
}

// toRelease drives a fresh run up to the first upload.
func (h *harness) toRelease(draft models.ReleaseDraft) {
	h.t.Helper()
	h.begin(draft)
	h.succeed(nil)     // CreateTag
	h.succeed(nil)     // PushTag
	h.succeed(testRel) // CreateRelease
}

func TestSaga_HappyPathWithoutBuild(t *testing.T) {
	h := newHarness(t)

	h.toRelease(testDraft)
	require.Equal(t, "UploadAsset", h.ports.last().op)
	archive := h.ports.last().args[2].(string)
	assert.Equal(t, testRel.UploadURL, h.ports.last().args[1])
	assert.FileExists(t, archive)
	assert.Equal(t, "editor-v1.2.1.zip", filepath.Base(archive), "asset name carries only repo and tag")

	h.succeed(models.ReleaseAsset{ID: 1})
	require.Equal(t, "Commit", h.ports.last().op)
	assert.Equal(t, "chore: bump version to 1.2.1", h.ports.last().args[1])
	assert.Equal(t, testConfig.Identity, h.ports.last().args[2])
	assert.Equal(t, []string{"1.2.1"}, h.version.written)
	assert.Contains(t, h.sink.texts, "Writing version 1.2.1")

	h.succeed(models.CommitResult{Hash: "abc"})
	require.Equal(t, "Push", h.ports.last().op)
	assert.Equal(t, "main", h.ports.last().args[1])

	h.succeed(nil)

	assert.Equal(t, []string{"CreateTag", "PushTag", "CreateRelease", "UploadAsset", "Commit", "Push"}, h.ports.ops())
	assert.NotContains(t, h.ports.ops(), "Build")
	assert.Equal(t, []Step{
		StepZipProject, StepCreateTag, StepPushTag, StepCreateRelease, StepUploadAssets,
		StepBumpVersion, StepCommitVersion, StepPushFinal, StepDone,
	}, h.sink.stepList())

	note := h.sink.lastNote()
	assert.True(t, note.Success)
	assert.Equal(t, testRel.HTMLURL, note.ReleaseURL)
	assert.Contains(t, note.Message, testRel.HTMLURL)

	report := h.sink.lastReport()
	assert.Equal(t, StepDone, report.Outcome)
	assert.Empty(t, report.Actions)
	assert.False(t, h.saga.Active())
	assert.NoFileExists(t, archive, "archive is removed once the run ends")
	assert.NoDirExists(t, filepath.Dir(archive), "scratch directory is removed with it")
}

func TestSaga_StatusTextIsLocalized(t *testing.T) {
	h := newHarness(t)
	h.toRelease(testDraft)

	assert.Contains(t, h.sink.texts, "Creating tag v1.2.1")
	assert.Contains(t, h.sink.texts, "Creating release Editor 1.2.1")
	assert.Contains(t, h.sink.texts[len(h.sink.texts)-1], "(1/1)")
}

func TestSaga_BuildAssetsUploadedInOrder(t *testing.T) {
	h := newHarness(t)
	draft := testDraft
	draft.BuildInstaller = true

	h.toRelease(draft)
	require.Equal(t, "Build", h.ports.last().op)
	assert.Equal(t, builder.Request{Dir: testHandle.LocalPath, Version: "v1.2.1"}, h.ports.last().args[0])

	h.succeed(models.BuildResult{Artifacts: []string{"/out/setup.exe", "/out/editor.dmg"}})

	var uploaded []string
	for h.ports.last().op == "UploadAsset" {
		uploaded = append(uploaded, filepath.Base(h.ports.last().args[2].(string)))
		h.succeed(models.ReleaseAsset{})
	}
	require.Len(t, uploaded, 3)
	assert.Equal(t, []string{"setup.exe", "editor.dmg"}, uploaded[1:])
	assert.Equal(t, "Commit", h.ports.last().op)
	assert.Contains(t, h.sink.texts, "Uploading editor.dmg (3/3)")
}

func TestSaga_BuildFailureRollsBackEverything(t *testing.T) {
	h := newHarness(t)
	draft := testDraft
	draft.BuildInstaller = true
	h.toRelease(draft)

	h.succeed(models.BuildResult{ExitCode: 2, Stdout: "compiling", Stderr: "error: missing icon"})

	note := h.sink.lastNote()
	assert.False(t, note.Success)
	assert.Equal(t, StepBuildAssets, note.FailedStep)
	require.ErrorIs(t, note.Err, errors.ErrBuildFailed)
	assert.Contains(t, note.Err.Error(), "error: missing icon")
	assert.Equal(t, "DeleteRelease", h.ports.last().op)
}

func TestSaga_PushTagFailureDeletesOnlyLocalTag(t *testing.T) {
	h := newHarness(t)
	h.begin(testDraft)
	h.succeed(nil) // CreateTag

	h.failWith(errors.ErrPushRejected)
	require.Equal(t, "DeleteTag", h.ports.last().op)
	h.succeed(nil)

	assert.Equal(t, []string{"CreateTag", "PushTag", "DeleteTag"}, h.ports.ops())
	assert.NotContains(t, h.ports.ops(), "DeleteRemoteTag")
	report := h.sink.lastReport()
	assert.Equal(t, []ActionResult{{Action: ActionDeleteLocalTag, Target: "v1.2.1"}}, report.Actions)
	assert.False(t, report.ManualCleanup)
	assert.ErrorIs(t, report.Err, errors.ErrPushRejected)
	assert.False(t, h.saga.Active())
}

func TestSaga_UploadFailureRollsBackInReverseOrder(t *testing.T) {
	h := newHarness(t)
	h.toRelease(testDraft)

	h.failWith(errors.ErrUploadAsset)

	// One compensation at a time.
	require.Equal(t, "DeleteRelease", h.ports.last().op)
	assert.Equal(t, int64(77), h.ports.last().args[2])
	h.succeed(nil)
	require.Equal(t, "DeleteRemoteTag", h.ports.last().op)
	h.succeed(nil)
	require.Equal(t, "DeleteTag", h.ports.last().op)
	h.succeed(nil)

	ops := h.ports.ops()
	assert.Equal(t, []string{"DeleteRelease", "DeleteRemoteTag", "DeleteTag"}, ops[len(ops)-3:])
	assert.Len(t, h.sink.lastReport().Actions, 3)
	assert.Equal(t, "Rollback finished, 3 actions undone", h.sink.lastReport().Message)
}

func TestSaga_FailureIsReportedBeforeRollback(t *testing.T) {
	h := newHarness(t)
	h.toRelease(testDraft)

	h.failWith(errors.ErrUploadAsset)

	entries := h.journal.all()
	finished := indexOf(entries, "finished")
	deleteRelease := indexOf(entries, "DeleteRelease")
	require.NotEqual(t, -1, finished)
	require.NotEqual(t, -1, deleteRelease)
	assert.Less(t, finished, deleteRelease)
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func TestSaga_ReleaseAlreadyExists(t *testing.T) {
	h := newHarness(t)
	h.begin(testDraft)
	h.succeed(nil) // CreateTag
	h.succeed(nil) // PushTag

	h.failWith(errors.ErrReleaseAlreadyExists.WithContext("tag", "v1.2.1"))

	note := h.sink.lastNote()
	assert.ErrorIs(t, note.Err, errors.ErrReleaseAlreadyExists)
	assert.Contains(t, note.Err.Error(), "Tag already has a release")
	assert.Equal(t, StepCreateRelease, note.FailedStep)

	require.Equal(t, "DeleteRemoteTag", h.ports.last().op)
	h.succeed(nil)
	require.Equal(t, "DeleteTag", h.ports.last().op)
	h.succeed(nil)
	assert.NotContains(t, h.ports.ops(), "DeleteRelease")
}

func TestSaga_CancelWaitsForInFlightCall(t *testing.T) {
	h := newHarness(t)
	h.begin(testDraft)
	h.succeed(nil) // CreateTag
	h.succeed(nil) // PushTag, CreateRelease now in flight

	assert.True(t, h.saga.Cancel(h.ctx))
	assert.False(t, h.saga.Cancel(h.ctx), "second cancel is a no-op")
	assert.Equal(t, "CreateRelease", h.ports.last().op, "nothing is aborted")

	h.succeed(testRel)

	note := h.sink.lastNote()
	assert.ErrorIs(t, note.Err, errors.ErrCancelled)
	require.Equal(t, "DeleteRelease", h.ports.last().op, "the release created meanwhile is compensated")
}

func TestSaga_SingleActiveRun(t *testing.T) {
	h := newHarness(t)
	h.toRelease(testDraft)

	_, err := h.saga.Begin(h.ctx, testDraft, testHandle, testConfig)
	assert.ErrorIs(t, err, errors.ErrPublishInProgress)

	h.failWith(errors.ErrUploadAsset)
	require.True(t, h.saga.Active(), "rollback holds the slot")
	assert.Equal(t, StepRollingBack, h.saga.Step())
	_, err = h.saga.Begin(h.ctx, testDraft, testHandle, testConfig)
	assert.ErrorIs(t, err, errors.ErrPublishInProgress)

	h.succeed(nil)
	h.succeed(nil)
	h.succeed(nil)
	assert.False(t, h.saga.Active())
	assert.Equal(t, StepIdle, h.saga.Step())

	_, err = h.saga.Begin(h.ctx, testDraft, testHandle, testConfig)
	assert.NoError(t, err)
}

func TestSaga_StrayEventsAreDropped(t *testing.T) {
	h := newHarness(t)
	h.begin(testDraft)
	awaited := h.ports.last().ticket

	h.saga.Handle(h.ctx, worker.OperationSucceeded{Seq: awaited + 100, Name: "git.status"})
	h.saga.Handle(h.ctx, worker.OperationFailed{Seq: awaited + 101, Name: "api.list_tags", Reason: stderrors.New("boom")})

	assert.Equal(t, StepCreateTag, h.saga.Step())
	assert.Equal(t, []string{"CreateTag"}, h.ports.ops())
	assert.Empty(t, h.sink.notes)
}

func TestSaga_FailedCompensationNeedsManualCleanup(t *testing.T) {
	h := newHarness(t)
	h.toRelease(testDraft)
	h.failWith(errors.ErrUploadAsset)

	h.failWith(errors.ErrTokenInvalid) // DeleteRelease
	require.Equal(t, "DeleteRemoteTag", h.ports.last().op, "rollback continues past a failure")
	h.succeed(nil)
	h.succeed(nil)

	report := h.sink.lastReport()
	assert.True(t, report.ManualCleanup)
	failed := report.FailedActions()
	require.Len(t, failed, 1)
	assert.Equal(t, ActionDeleteRelease, failed[0].Action)
	assert.Equal(t, "77", failed[0].Target)
	assert.Equal(t, "Rollback incomplete, 1 resource needs manual cleanup", report.Message)
	assert.ErrorIs(t, report.Err, errors.ErrUploadAsset, "the report keeps the original failure")
}

func TestSaga_ArchiveFailure(t *testing.T) {
	h := newHarness(t, withArchiveFailure())
	h.begin(testDraft)

	assert.Empty(t, h.ports.ops())
	note := h.sink.lastNote()
	assert.ErrorIs(t, note.Err, errors.ErrArchiveFailed)
	assert.Equal(t, StepZipProject, note.FailedStep)
	report := h.sink.lastReport()
	assert.Empty(t, report.Actions)
	assert.Equal(t, "Nothing to roll back", report.Message)
	assert.False(t, h.saga.Active())
}

func TestSaga_ReleaseWithoutUploadURL(t *testing.T) {
	h := newHarness(t)
	h.begin(testDraft)
	h.succeed(nil)
	h.succeed(nil)

	h.succeed(models.Release{ID: 9})

	assert.ErrorIs(t, h.sink.lastNote().Err, errors.ErrNoUploadURL)
	require.Equal(t, "DeleteRelease", h.ports.last().op)
	assert.Equal(t, int64(9), h.ports.last().args[2])
}

func TestSaga_VersionFileFailure(t *testing.T) {
	h := newHarness(t)
	h.version.err = errors.ErrVersionFile
	h.toRelease(testDraft)

	h.succeed(models.ReleaseAsset{})

	note := h.sink.lastNote()
	assert.Equal(t, StepBumpVersion, note.FailedStep)
	assert.ErrorIs(t, note.Err, errors.ErrVersionFile)
	assert.Equal(t, "DeleteRelease", h.ports.last().op)
}

func TestSaga_ClosedFacadeFailsTheStep(t *testing.T) {
	h := newHarness(t)
	h.begin(testDraft)
	h.ports.closed = true

	h.succeed(nil) // CreateTag ok, PushTag cannot be queued

	assert.ErrorIs(t, h.sink.lastNote().Err, errors.ErrWorkerClosed)
	report := h.sink.lastReport()
	require.Len(t, report.Actions, 1)
	assert.Equal(t, ActionDeleteLocalTag, report.Actions[0].Action)
	assert.ErrorIs(t, report.Actions[0].Err, errors.ErrWorkerClosed)
	assert.True(t, report.ManualCleanup)
	assert.False(t, h.saga.Active())
}

func TestSaga_Validation(t *testing.T) {
	tests := []struct {
		name     string
		draft    models.ReleaseDraft
		handle   models.RepositoryHandle
		settings Settings
		opts     []harnessOption
		want     error
	}{
		{"empty tag", models.ReleaseDraft{}, testHandle, testConfig, nil, errors.ErrInvalidDraft},
		{"not semver", models.ReleaseDraft{TagName: "latest"}, testHandle, testConfig, nil, errors.ErrInvalidDraft},
		{"no remote", testDraft, models.RepositoryHandle{LocalPath: "/x"}, testConfig, nil, errors.ErrInvalidDraft},
		{"no token", testDraft, testHandle, Settings{}, nil, errors.ErrNotAuthenticated},
		{"installer without builder", models.ReleaseDraft{TagName: "v1.0.0", BuildInstaller: true}, testHandle, testConfig, []harnessOption{withoutBuilder()}, errors.ErrInvalidDraft},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.opts...)

			_, err := h.saga.Begin(h.ctx, tt.draft, tt.handle, tt.settings)

			assert.ErrorIs(t, err, tt.want)
			assert.False(t, h.saga.Active())
			assert.Empty(t, h.journal.all())
		})
	}
}

func TestSaga_UnprefixedTagIsAccepted(t *testing.T) {
	h := newHarness(t)
	draft := testDraft
	draft.TagName = "1.2.1"
	draft.Title = ""

	h.begin(draft)

	assert.Equal(t, "1.2.1", h.ports.last().args[1])
	assert.Equal(t, "1.2.1", h.ports.last().args[2], "title defaults to the tag")
}
