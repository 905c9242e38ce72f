package github

import (
	"context"
	"time"

	"github.com/thomas-vilte/materelease/internal/config"
	domainErrors "github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/models"
	"github.com/thomas-vilte/materelease/internal/worker"
)

const (
	OpStartDeviceFlow    = "api.start_device_flow"
	OpPollDeviceToken    = "api.poll_device_token"
	OpAuthenticatedUser  = "api.authenticated_user"
	OpListRepositories   = "api.list_repositories"
	OpListBranches       = "api.list_branches"
	OpListTags           = "api.list_tags"
	OpDeleteTag          = "api.delete_tag"
	OpListReleases       = "api.list_releases"
	OpCreateRelease      = "api.create_release"
	OpUploadAsset        = "api.upload_asset"
	OpDeleteRelease      = "api.delete_release"
	OpCreateRepository   = "api.create_repository"
	OpSetVisibility      = "api.set_visibility"
	OpFetchIndexFile     = "api.fetch_index_file"
	OpDeleteOrphanedTags = "api.delete_orphaned_tags"

	pollGrace = 30 * time.Second
)

// ClientFactory builds an authenticated client for token.
type ClientFactory func(token string) (*GitHubClient, error)

func DefaultClientFactory(baseURL string) ClientFactory {
	return func(token string) (*GitHubClient, error) {
		return NewGitHubClient(token, baseURL)
	}
}

// Manager is the caller-side half of the remote API façade. The worker owns
// the authenticated client; callers pass the access token by value with each
// request and the client is rebuilt when the token changes.
type Manager struct {
	facade        *worker.Facade
	flow          *DeviceFlow
	newClient     ClientFactory
	apiTimeout    time.Duration
	uploadTimeout time.Duration

	// worker goroutine only
	client *GitHubClient
	token  string
}

func NewManager(ctx context.Context, flow *DeviceFlow, newClient ClientFactory, timeouts config.Timeouts) *Manager {
	return &Manager{
		facade:        worker.New(ctx, "api"),
		flow:          flow,
		newClient:     newClient,
		apiTimeout:    timeouts.API.Duration,
		uploadTimeout: timeouts.Upload.Duration,
	}
}

func (m *Manager) Events() <-chan worker.Event {
	return m.facade.Events()
}

func (m *Manager) Close(timeout time.Duration) error {
	return m.facade.Close(timeout)
}

func (m *Manager) clientFor(token string) (*GitHubClient, error) {
	if token == "" {
		return nil, domainErrors.ErrNotAuthenticated
	}
	if m.client != nil && m.token == token {
		return m.client, nil
	}
	client, err := m.newClient(token)
	if err != nil {
		return nil, err
	}
	m.client, m.token = client, token
	return client, nil
}

// authed queues run with a client for token.
func (m *Manager) authed(name, token string, timeout time.Duration, run func(ctx context.Context, c *GitHubClient) (any, error)) uint64 {
	return m.facade.Submit(worker.Request{
		Name:    name,
		Timeout: timeout,
		Run: func(ctx context.Context) (any, error) {
			c, err := m.clientFor(token)
			if err != nil {
				return nil, err
			}
			return run(ctx, c)
		},
	})
}

// StartDeviceFlow payload: models.DeviceCode
func (m *Manager) StartDeviceFlow() uint64 {
	return m.facade.Submit(worker.Request{
		Name:    OpStartDeviceFlow,
		Timeout: m.apiTimeout,
		Run: func(ctx context.Context) (any, error) {
			return m.flow.Start(ctx)
		},
	})
}

// PollDeviceToken payload: models.Session. The request may run until the
// code expires, so it blocks every later API request meanwhile.
func (m *Manager) PollDeviceToken(code models.DeviceCode) uint64 {
	timeout := m.apiTimeout
	if !code.Expiry.IsZero() {
		timeout = time.Until(code.Expiry) + pollGrace
	}
	return m.facade.Submit(worker.Request{
		Name:    OpPollDeviceToken,
		Timeout: timeout,
		Run: func(ctx context.Context) (any, error) {
			token, err := m.flow.Poll(ctx, code)
			if err != nil {
				return nil, err
			}
			c, err := m.clientFor(token)
			if err != nil {
				return nil, err
			}
			user, err := c.GetAuthenticatedUser(ctx)
			if err != nil {
				return nil, err
			}
			return models.Session{AccessToken: token, User: user.Login}, nil
		},
	})
}

// AuthenticatedUser payload: models.User
func (m *Manager) AuthenticatedUser(token string) uint64 {
	return m.authed(OpAuthenticatedUser, token, m.apiTimeout, func(ctx context.Context, c *GitHubClient) (any, error) {
		return c.GetAuthenticatedUser(ctx)
	})
}

// ListRepositories payload: []models.Repository
func (m *Manager) ListRepositories(token string) uint64 {
	return m.authed(OpListRepositories, token, m.apiTimeout, func(ctx context.Context, c *GitHubClient) (any, error) {
		return c.ListRepositories(ctx)
	})
}

// ListBranches payload: []models.Branch
func (m *Manager) ListBranches(token, owner, repo string) uint64 {
	return m.authed(OpListBranches, token, m.apiTimeout, func(ctx context.Context, c *GitHubClient) (any, error) {
		return c.ListBranches(ctx, owner, repo)
	})
}

// ListTags payload: []models.Tag
func (m *Manager) ListTags(token, owner, repo string) uint64 {
	return m.authed(OpListTags, token, m.apiTimeout, func(ctx context.Context, c *GitHubClient) (any, error) {
		return c.ListTags(ctx, owner, repo)
	})
}

func (m *Manager) DeleteTag(token, owner, repo, tag string) uint64 {
	return m.authed(OpDeleteTag, token, m.apiTimeout, func(ctx context.Context, c *GitHubClient) (any, error) {
		return nil, c.DeleteTag(ctx, owner, repo, tag)
	})
}

// ListReleases payload: []models.Release
func (m *Manager) ListReleases(token, owner, repo string) uint64 {
	return m.authed(OpListReleases, token, m.apiTimeout, func(ctx context.Context, c *GitHubClient) (any, error) {
		return c.ListReleases(ctx, owner, repo)
	})
}

// CreateRelease payload: models.Release
func (m *Manager) CreateRelease(token string, handle models.RepositoryHandle, draft models.ReleaseDraft) uint64 {
	return m.authed(OpCreateRelease, token, m.apiTimeout, func(ctx context.Context, c *GitHubClient) (any, error) {
		return c.CreateRelease(ctx, handle, draft)
	})
}

// UploadAsset payload: models.ReleaseAsset
func (m *Manager) UploadAsset(token, uploadURL, path string) uint64 {
	return m.authed(OpUploadAsset, token, m.uploadTimeout, func(ctx context.Context, c *GitHubClient) (any, error) {
		return c.UploadAsset(ctx, uploadURL, path)
	})
}

func (m *Manager) DeleteRelease(token string, handle models.RepositoryHandle, id int64) uint64 {
	return m.authed(OpDeleteRelease, token, m.apiTimeout, func(ctx context.Context, c *GitHubClient) (any, error) {
		return nil, c.DeleteRelease(ctx, handle, id)
	})
}

// CreateRepository payload: models.Repository
func (m *Manager) CreateRepository(token, name, description string, private bool) uint64 {
	return m.authed(OpCreateRepository, token, m.apiTimeout, func(ctx context.Context, c *GitHubClient) (any, error) {
		return c.CreateRepository(ctx, name, description, private)
	})
}

// SetVisibility payload: models.Repository
func (m *Manager) SetVisibility(token, owner, repo string, private bool) uint64 {
	return m.authed(OpSetVisibility, token, m.apiTimeout, func(ctx context.Context, c *GitHubClient) (any, error) {
		return c.SetVisibility(ctx, owner, repo, private)
	})
}

// FetchIndexFile payload: string
func (m *Manager) FetchIndexFile(token, owner, repo, path, ref string) uint64 {
	return m.authed(OpFetchIndexFile, token, m.apiTimeout, func(ctx context.Context, c *GitHubClient) (any, error) {
		return c.FetchIndexFile(ctx, owner, repo, path, ref)
	})
}

// DeleteOrphanedTags payload: models.OrphanCleanupResult. A partial failure
// is reported as an OperationFailed whose reason is a *PartialCleanupError.
func (m *Manager) DeleteOrphanedTags(token, owner, repo string) uint64 {
	return m.authed(OpDeleteOrphanedTags, token, m.apiTimeout, func(ctx context.Context, c *GitHubClient) (any, error) {
		res, err := c.DeleteOrphanedTags(ctx, owner, repo)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
}
