package saga

import (
	"time"

	"github.com/thomas-vilte/materelease/internal/builder"
	"github.com/thomas-vilte/materelease/internal/models"
)

// Step is where a publish run currently is.
type Step string

const (
	StepIdle          Step = "IDLE"
	StepZipProject    Step = "ZIP_PROJECT"
	StepCreateTag     Step = "CREATE_TAG"
	StepPushTag       Step = "PUSH_TAG"
	StepCreateRelease Step = "CREATE_RELEASE"
	StepBuildAssets   Step = "BUILD_ASSETS"
	StepUploadAssets  Step = "UPLOAD_ASSETS"
	StepBumpVersion   Step = "BUMP_VERSION"
	StepCommitVersion Step = "COMMIT_VERSION"
	StepPushFinal     Step = "PUSH_FINAL"
	StepDone          Step = "DONE"
	StepFailed        Step = "FAILED"
	StepRollingBack   Step = "ROLLING_BACK"
)

// VCS is the subset of the git façade a publish needs. Every method queues
// the operation and returns its ticket, or 0 if the façade is closed.
type VCS interface {
	CreateTag(dir, tag, message string, id models.Identity) uint64
	PushTag(dir, tag string) uint64
	DeleteTag(dir, tag string) uint64
	DeleteRemoteTag(dir, tag string) uint64
	Commit(dir, message string, id models.Identity) uint64
	Push(dir, branch string) uint64
}

// API is the subset of the remote API façade a publish needs.
type API interface {
	CreateRelease(token string, handle models.RepositoryHandle, draft models.ReleaseDraft) uint64
	UploadAsset(token, uploadURL, path string) uint64
	DeleteRelease(token string, handle models.RepositoryHandle, id int64) uint64
}

type Builder interface {
	Build(req builder.Request) uint64
}

// Archiver writes a zip of the working tree at root to out.
type Archiver func(root, out string) bool

type VersionWriter interface {
	Write(version string) error
}

// Sink receives everything a user should see about a run. Calls come from
// the coordinator goroutine.
type Sink interface {
	StepChanged(runID string, step Step, text string)
	Finished(n Notification)
	Settled(r Report)
}

type Translator interface {
	GetMessage(messageID string, count int, templateData map[string]interface{}) string
}

// Settings are copied out of the configuration when a run starts.
type Settings struct {
	Token    string
	Identity models.Identity
}

// Notification is the terminal success or failure of a run. On failure it is
// sent before any compensation is issued.
type Notification struct {
	RunID      string
	Success    bool
	Message    string
	Tag        string
	ReleaseURL string
	FailedStep Step
	Err        error
}

type Action string

const (
	ActionDeleteRelease   Action = "delete_release"
	ActionDeleteRemoteTag Action = "delete_remote_tag"
	ActionDeleteLocalTag  Action = "delete_local_tag"
)

type ActionResult struct {
	Action Action
	Target string
	Err    error
}

// Report closes a run once nothing is left in flight. After a failure it
// lists the compensations; ManualCleanup is set when one of them failed and
// a resource may still exist.
type Report struct {
	RunID         string
	Tag           string
	Repository    string
	Outcome       Step
	Err           error
	Actions       []ActionResult
	ManualCleanup bool
	Message       string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// FailedActions returns the compensations that did not succeed.
func (r Report) FailedActions() []ActionResult {
	var out []ActionResult
	for _, a := range r.Actions {
		if a.Err != nil {
			out = append(out, a)
		}
	}
	return out
}
