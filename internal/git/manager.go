package git

import (
	"context"
	"time"

	"github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/models"
	"github.com/thomas-vilte/materelease/internal/worker"
)

// Operation names carried by worker events.
const (
	OpStatus          = "git.status"
	OpCommit          = "git.commit"
	OpPush            = "git.push"
	OpPushTag         = "git.push_tag"
	OpPull            = "git.pull"
	OpClone           = "git.clone"
	OpCreateTag       = "git.create_tag"
	OpDeleteTag       = "git.delete_tag"
	OpDeleteRemoteTag = "git.delete_remote_tag"
	OpForcePush       = "git.force_push"
	OpAbortMerge      = "git.abort_merge"
	OpPublish         = "git.publish"
	OpLinkRemote      = "git.link_remote"
	OpFixDivergence   = "git.fix_divergence"
	OpGetIdentity     = "git.get_identity"
	OpSetIdentity     = "git.set_identity"
	OpMarkSafe        = "git.mark_safe"
	OpHandle          = "git.handle"
	OpCurrentBranch   = "git.current_branch"
)

// Manager is the caller-side half of the VCS façade. Each method queues one
// git operation on the façade's worker and returns its ticket; outcomes
// arrive on Events.
type Manager struct {
	svc           *GitService
	facade        *worker.Facade
	statusTimeout time.Duration
	gitTimeout    time.Duration
}

func NewManager(ctx context.Context, svc *GitService, timeouts config.Timeouts) *Manager {
	return &Manager{
		svc:           svc,
		facade:        worker.New(ctx, "git"),
		statusTimeout: timeouts.Status.Duration,
		gitTimeout:    timeouts.Git.Duration,
	}
}

func (m *Manager) Events() <-chan worker.Event {
	return m.facade.Events()
}

func (m *Manager) Close(timeout time.Duration) error {
	return m.facade.Close(timeout)
}

func (m *Manager) submit(name string, timeout time.Duration, run func(ctx context.Context) (any, error)) uint64 {
	return m.facade.Submit(worker.Request{Name: name, Timeout: timeout, Run: run})
}

// done adapts an error-only call to a worker handler.
func done(err error) (any, error) {
	return nil, err
}

// Status payload: models.StatusResult
func (m *Manager) Status(dir string) uint64 {
	return m.submit(OpStatus, m.statusTimeout, func(ctx context.Context) (any, error) {
		return m.svc.Status(ctx, dir)
	})
}

// Commit payload: models.CommitResult
func (m *Manager) Commit(dir, message string, id models.Identity) uint64 {
	return m.submit(OpCommit, m.gitTimeout, func(ctx context.Context) (any, error) {
		return m.svc.Commit(ctx, dir, message, id)
	})
}

func (m *Manager) Push(dir, branch string) uint64 {
	return m.submit(OpPush, m.gitTimeout, func(ctx context.Context) (any, error) {
		return done(m.svc.Push(ctx, dir, branch))
	})
}

func (m *Manager) PushTag(dir, tag string) uint64 {
	return m.submit(OpPushTag, m.gitTimeout, func(ctx context.Context) (any, error) {
		return done(m.svc.PushTag(ctx, dir, tag))
	})
}

func (m *Manager) Pull(dir string) uint64 {
	return m.submit(OpPull, m.gitTimeout, func(ctx context.Context) (any, error) {
		return done(m.svc.Pull(ctx, dir))
	})
}

func (m *Manager) Clone(url, dest string) uint64 {
	return m.submit(OpClone, m.gitTimeout, func(ctx context.Context) (any, error) {
		return done(m.svc.Clone(ctx, url, dest))
	})
}

func (m *Manager) CreateTag(dir, tag, message string, id models.Identity) uint64 {
	return m.submit(OpCreateTag, m.gitTimeout, func(ctx context.Context) (any, error) {
		return done(m.svc.CreateTag(ctx, dir, tag, message, id))
	})
}

func (m *Manager) DeleteTag(dir, tag string) uint64 {
	return m.submit(OpDeleteTag, m.gitTimeout, func(ctx context.Context) (any, error) {
		return done(m.svc.DeleteTag(ctx, dir, tag))
	})
}

func (m *Manager) DeleteRemoteTag(dir, tag string) uint64 {
	return m.submit(OpDeleteRemoteTag, m.gitTimeout, func(ctx context.Context) (any, error) {
		return done(m.svc.DeleteRemoteTag(ctx, dir, tag))
	})
}

func (m *Manager) ForcePush(dir, branch string) uint64 {
	return m.submit(OpForcePush, m.gitTimeout, func(ctx context.Context) (any, error) {
		return done(m.svc.ForcePush(ctx, dir, branch))
	})
}

func (m *Manager) AbortMerge(dir string) uint64 {
	return m.submit(OpAbortMerge, m.gitTimeout, func(ctx context.Context) (any, error) {
		return done(m.svc.AbortMerge(ctx, dir))
	})
}

func (m *Manager) Publish(dir, remoteURL, branch, message string, id models.Identity) uint64 {
	return m.submit(OpPublish, m.gitTimeout, func(ctx context.Context) (any, error) {
		return done(m.svc.Publish(ctx, dir, remoteURL, branch, message, id))
	})
}

func (m *Manager) LinkRemote(dir, url string) uint64 {
	return m.submit(OpLinkRemote, m.statusTimeout, func(ctx context.Context) (any, error) {
		return done(m.svc.LinkRemote(ctx, dir, url))
	})
}

func (m *Manager) FixBranchDivergence(dir, branch string) uint64 {
	return m.submit(OpFixDivergence, m.gitTimeout, func(ctx context.Context) (any, error) {
		return done(m.svc.FixBranchDivergence(ctx, dir, branch))
	})
}

// GetIdentity payload: models.Identity
func (m *Manager) GetIdentity(dir string) uint64 {
	return m.submit(OpGetIdentity, m.statusTimeout, func(ctx context.Context) (any, error) {
		return m.svc.GetIdentity(ctx, dir)
	})
}

func (m *Manager) SetIdentity(dir string, id models.Identity, global bool) uint64 {
	return m.submit(OpSetIdentity, m.statusTimeout, func(ctx context.Context) (any, error) {
		return done(m.svc.SetIdentity(ctx, dir, id, global))
	})
}

func (m *Manager) MarkSafeDirectory(dir string) uint64 {
	return m.submit(OpMarkSafe, m.statusTimeout, func(ctx context.Context) (any, error) {
		return done(m.svc.MarkSafeDirectory(ctx, dir))
	})
}

// Handle payload: models.RepositoryHandle
func (m *Manager) Handle(dir string) uint64 {
	return m.submit(OpHandle, m.statusTimeout, func(ctx context.Context) (any, error) {
		return m.svc.Handle(ctx, dir)
	})
}

// CurrentBranch payload: string
func (m *Manager) CurrentBranch(dir string) uint64 {
	return m.submit(OpCurrentBranch, m.statusTimeout, func(ctx context.Context) (any, error) {
		return m.svc.CurrentBranch(ctx, dir)
	})
}
