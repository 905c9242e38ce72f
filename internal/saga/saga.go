// Package saga publishes a release as a sequence of git and API steps and
// undoes what was created when a step fails.
package saga

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thomas-vilte/materelease/internal/builder"
	"github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/logger"
	"github.com/thomas-vilte/materelease/internal/models"
	"github.com/thomas-vilte/materelease/internal/worker"
	"golang.org/x/mod/semver"
)

const bumpCommitMessage = "chore: bump version to %s"

// Deps are the collaborators of a saga. Builder may be nil when no build
// is configured.
type Deps struct {
	VCS         VCS
	API         API
	Builder     Builder
	Archive     Archiver
	VersionFile func(root string) VersionWriter
	Translator  Translator
	// ArchiveDir holds the project zip until the run ends.
	ArchiveDir string
}

// run is the in-memory state of one publish. It only lives until the run
// reaches DONE or its rollback is issued.
type run struct {
	id        string
	draft     models.ReleaseDraft
	handle    models.RepositoryHandle
	settings  Settings
	step      Step
	startedAt time.Time

	awaiting  uint64
	cancelled bool

	archiveDir  string
	archivePath string
	tagCreated  bool
	tagPushed   bool
	release     models.Release
	pending     []string
	uploaded    int
	totalAssets int
}

// Saga reacts to worker events; it never blocks on remote work. It is not
// safe for concurrent use and is meant to be driven by a Coordinator.
type Saga struct {
	deps     Deps
	sink     Sink
	newID    func() string
	now      func() time.Time
	run      *run
	rollback *rollback
}

func New(deps Deps, sink Sink) *Saga {
	if deps.ArchiveDir == "" {
		deps.ArchiveDir = os.TempDir()
	}
	return &Saga{
		deps:  deps,
		sink:  sink,
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// Active reports whether a run or its rollback is still in progress.
func (s *Saga) Active() bool {
	return s.run != nil || s.rollback != nil
}

// Step returns the current step of the active run, StepRollingBack while
// compensations are in flight, and StepIdle otherwise.
func (s *Saga) Step() Step {
	switch {
	case s.run != nil:
		return s.run.step
	case s.rollback != nil:
		return StepRollingBack
	default:
		return StepIdle
	}
}

func (s *Saga) validate(draft models.ReleaseDraft, handle models.RepositoryHandle, settings Settings) error {
	invalid := func(reason string) error {
		return errors.ErrInvalidDraft.WithContext("reason", reason)
	}
	switch {
	case draft.TagName == "":
		return invalid("tag name is empty")
	case !semver.IsValid(canonicalTag(draft.TagName)):
		return invalid(fmt.Sprintf("%q is not a semantic version", draft.TagName))
	case handle.LocalPath == "":
		return invalid("repository path is empty")
	case handle.RemoteOwner == "" || handle.RemoteName == "":
		return invalid("repository has no remote owner/name")
	case draft.BuildInstaller && s.deps.Builder == nil:
		return invalid("an installer build was requested but no build is configured")
	case settings.Token == "":
		return errors.ErrNotAuthenticated
	}
	return nil
}

func canonicalTag(tag string) string {
	if strings.HasPrefix(tag, "v") {
		return tag
	}
	return "v" + tag
}

// Begin starts a run. It is rejected while another run or rollback is
// active. Failures after validation are reported to the sink, not returned.
func (s *Saga) Begin(ctx context.Context, draft models.ReleaseDraft, handle models.RepositoryHandle, settings Settings) (string, error) {
	if s.Active() {
		return "", errors.ErrPublishInProgress
	}
	if err := s.validate(draft, handle, settings); err != nil {
		return "", err
	}
	if draft.Title == "" {
		draft.Title = draft.TagName
	}

	r := &run{
		id:        s.newID(),
		draft:     draft,
		handle:    handle,
		settings:  settings,
		step:      StepIdle,
		startedAt: s.now(),
	}
	s.run = r
	logger.Info(ctx, "publish started", "run", r.id, "tag", draft.TagName, "repo", handle.FullName())

	s.zipProject(ctx, r)
	return r.id, nil
}

// Cancel marks the active run for rollback. The request in flight is not
// aborted; the run fails once its outcome arrives. It reports whether a run
// was marked.
func (s *Saga) Cancel(ctx context.Context) bool {
	r := s.run
	if r == nil || r.cancelled {
		return false
	}
	r.cancelled = true
	logger.Info(ctx, "publish cancel requested", "run", r.id, "step", r.step)
	return true
}

// Handle feeds a worker outcome to the saga. Events for tickets the saga is
// not waiting for are dropped.
func (s *Saga) Handle(ctx context.Context, ev worker.Event) {
	if s.rollback != nil && ev.Ticket() == s.rollback.awaiting {
		s.handleRollback(ctx, ev)
		return
	}

	r := s.run
	if r == nil || r.awaiting == 0 || ev.Ticket() != r.awaiting {
		logger.Debug(ctx, "stray event dropped", "ticket", ev.Ticket(), "op", ev.Operation())
		return
	}
	r.awaiting = 0

	if failed, ok := ev.(worker.OperationFailed); ok {
		s.fail(ctx, r, failed.Reason)
		return
	}
	succeeded, ok := ev.(worker.OperationSucceeded)
	if !ok {
		s.fail(ctx, r, errors.ErrUnexpectedPayload.WithContext("type", fmt.Sprintf("%T", ev)))
		return
	}
	payload := succeeded.Payload

	if err := s.record(r, payload); err != nil {
		s.fail(ctx, r, err)
		return
	}
	if r.cancelled {
		s.fail(ctx, r, errors.ErrCancelled.WithContext("step", string(r.step)))
		return
	}
	s.advance(ctx, r, payload)
}

// record keeps the effects of a successful step so rollback knows what
// exists, even when the run is about to stop.
func (s *Saga) record(r *run, payload any) error {
	switch r.step {
	case StepCreateTag:
		r.tagCreated = true
	case StepPushTag:
		r.tagPushed = true
	case StepCreateRelease:
		rel, ok := payload.(models.Release)
		if !ok {
			return errors.ErrUnexpectedPayload.WithContext("step", string(r.step)).WithContext("type", fmt.Sprintf("%T", payload))
		}
		r.release = rel
		if rel.UploadURL == "" {
			return errors.ErrNoUploadURL.WithContext("release_id", rel.ID)
		}
	case StepBuildAssets:
		res, ok := payload.(models.BuildResult)
		if !ok {
			return errors.ErrUnexpectedPayload.WithContext("step", string(r.step)).WithContext("type", fmt.Sprintf("%T", payload))
		}
		if res.ExitCode != 0 {
			return errors.ErrBuildFailed.
				WithContext("exit_code", res.ExitCode).
				WithContext("stdout", res.Stdout).
				WithContext("stderr", strings.TrimSpace(res.Stderr))
		}
		r.pending = append(r.pending, res.Artifacts...)
		r.totalAssets += len(res.Artifacts)
	case StepUploadAssets:
		r.pending = r.pending[1:]
		r.uploaded++
	}
	return nil
}

func (s *Saga) advance(ctx context.Context, r *run, payload any) {
	switch r.step {
	case StepCreateTag:
		s.enter(ctx, r, StepPushTag, map[string]interface{}{"Tag": r.draft.TagName})
		s.await(ctx, r, s.deps.VCS.PushTag(r.handle.LocalPath, r.draft.TagName))
	case StepPushTag:
		s.enter(ctx, r, StepCreateRelease, map[string]interface{}{"Title": r.draft.Title})
		s.await(ctx, r, s.deps.API.CreateRelease(r.settings.Token, r.handle, r.draft))
	case StepCreateRelease:
		if r.draft.BuildInstaller {
			s.enter(ctx, r, StepBuildAssets, nil)
			s.await(ctx, r, s.deps.Builder.Build(builder.Request{
				Dir:     r.handle.LocalPath,
				Version: r.draft.TagName,
			}))
			return
		}
		s.uploadNext(ctx, r)
	case StepBuildAssets, StepUploadAssets:
		s.uploadNext(ctx, r)
	case StepCommitVersion:
		s.enter(ctx, r, StepPushFinal, map[string]interface{}{"Branch": pushTarget(r.draft)})
		s.await(ctx, r, s.deps.VCS.Push(r.handle.LocalPath, pushTarget(r.draft)))
	case StepPushFinal:
		s.done(ctx, r)
	default:
		s.fail(ctx, r, errors.ErrUnexpectedPayload.WithContext("step", string(r.step)))
	}
}

func pushTarget(d models.ReleaseDraft) string {
	if d.TargetBranch != "" {
		return d.TargetBranch
	}
	return "HEAD"
}

func (s *Saga) text(id string, data map[string]interface{}) string {
	if s.deps.Translator == nil {
		return id
	}
	return s.deps.Translator.GetMessage(id, 0, data)
}

func stepMessageID(step Step) string {
	return "step_" + strings.ToLower(string(step))
}

func (s *Saga) enter(ctx context.Context, r *run, step Step, data map[string]interface{}) {
	r.step = step
	logger.Debug(ctx, "publish step", "run", r.id, "step", step)
	s.sink.StepChanged(r.id, step, s.text(stepMessageID(step), data))
}

// await records ticket as the single outstanding request. A zero ticket
// means the façade is gone and fails the step at once.
func (s *Saga) await(ctx context.Context, r *run, ticket uint64) {
	if ticket == 0 {
		s.fail(ctx, r, errors.ErrWorkerClosed.WithContext("step", string(r.step)))
		return
	}
	r.awaiting = ticket
}

func (s *Saga) zipProject(ctx context.Context, r *run) {
	name := fmt.Sprintf("%s-%s.zip", r.handle.RemoteName, r.draft.TagName)
	s.enter(ctx, r, StepZipProject, map[string]interface{}{"File": name})

	dir, err := os.MkdirTemp(s.deps.ArchiveDir, "materelease-")
	if err != nil {
		s.fail(ctx, r, errors.ErrArchiveFailed.WithError(err).WithContext("root", r.handle.LocalPath))
		return
	}
	r.archiveDir = dir
	r.archivePath = filepath.Join(dir, name)

	if !s.deps.Archive(r.handle.LocalPath, r.archivePath) {
		s.fail(ctx, r, errors.ErrArchiveFailed.WithContext("root", r.handle.LocalPath))
		return
	}
	r.pending = []string{r.archivePath}
	r.totalAssets = 1

	s.enter(ctx, r, StepCreateTag, map[string]interface{}{"Tag": r.draft.TagName})
	message := r.draft.Title
	s.await(ctx, r, s.deps.VCS.CreateTag(r.handle.LocalPath, r.draft.TagName, message, r.settings.Identity))
}

func (s *Saga) uploadNext(ctx context.Context, r *run) {
	if len(r.pending) == 0 {
		s.bumpVersion(ctx, r)
		return
	}
	asset := r.pending[0]
	s.enter(ctx, r, StepUploadAssets, map[string]interface{}{
		"Asset": filepath.Base(asset),
		"Index": r.uploaded + 1,
		"Total": r.totalAssets,
	})
	s.await(ctx, r, s.deps.API.UploadAsset(r.settings.Token, r.release.UploadURL, asset))
}

func (s *Saga) bumpVersion(ctx context.Context, r *run) {
	version := strings.TrimPrefix(r.draft.TagName, "v")
	s.enter(ctx, r, StepBumpVersion, map[string]interface{}{"Version": version})
	if err := s.deps.VersionFile(r.handle.LocalPath).Write(version); err != nil {
		s.fail(ctx, r, err)
		return
	}

	s.enter(ctx, r, StepCommitVersion, nil)
	s.await(ctx, r, s.deps.VCS.Commit(r.handle.LocalPath, fmt.Sprintf(bumpCommitMessage, version), r.settings.Identity))
}

func (s *Saga) done(ctx context.Context, r *run) {
	r.step = StepDone
	s.run = nil
	s.removeArchive(ctx, r)

	logger.Info(ctx, "publish finished", "run", r.id, "tag", r.draft.TagName, "url", r.release.HTMLURL)
	s.sink.StepChanged(r.id, StepDone, s.text(stepMessageID(StepDone), map[string]interface{}{"Tag": r.draft.TagName}))

	msg := s.text("publish_success", map[string]interface{}{"Tag": r.draft.TagName, "URL": r.release.HTMLURL})
	s.sink.Finished(Notification{
		RunID:      r.id,
		Success:    true,
		Message:    msg,
		Tag:        r.draft.TagName,
		ReleaseURL: r.release.HTMLURL,
	})
	s.sink.Settled(Report{
		RunID:      r.id,
		Tag:        r.draft.TagName,
		Repository: r.handle.FullName(),
		Outcome:    StepDone,
		Message:    msg,
		StartedAt:  r.startedAt,
		FinishedAt: s.now(),
	})
}

// fail reports err for the current step, discards the run and issues the
// compensations for what it created.
func (s *Saga) fail(ctx context.Context, r *run, err error) {
	failedStep := r.step
	r.step = StepFailed
	s.run = nil
	s.removeArchive(ctx, r)

	logger.Error(ctx, "publish failed", err, "run", r.id, "step", failedStep, "tag", r.draft.TagName)
	s.sink.StepChanged(r.id, StepFailed, s.text(stepMessageID(StepFailed), map[string]interface{}{"Tag": r.draft.TagName}))
	s.sink.Finished(Notification{
		RunID:      r.id,
		Message:    s.text("publish_failed", map[string]interface{}{"Tag": r.draft.TagName, "Step": failedStep}),
		Tag:        r.draft.TagName,
		FailedStep: failedStep,
		Err:        err,
	})

	s.startRollback(ctx, r, err)
}

// removeArchive drops the run's scratch directory along with the zip in it.
func (s *Saga) removeArchive(ctx context.Context, r *run) {
	if r.archiveDir == "" {
		return
	}
	if err := os.RemoveAll(r.archiveDir); err != nil {
		logger.Warn(ctx, "could not remove project archive", "path", r.archiveDir, "error", err)
	}
	r.archiveDir = ""
}
