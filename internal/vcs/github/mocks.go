package github

import (
	"context"
	"net/http"

	"github.com/google/go-github/v80/github"
	"github.com/stretchr/testify/mock"
)

func response(args mock.Arguments, i int) *github.Response {
	if r, ok := args.Get(i).(*github.Response); ok {
		return r
	}
	return nil
}

type MockReleasesService struct {
	mock.Mock
}

func (m *MockReleasesService) CreateRelease(ctx context.Context, owner, repo string, release *github.RepositoryRelease) (*github.RepositoryRelease, *github.Response, error) {
	args := m.Called(ctx, owner, repo, release)
	rel, _ := args.Get(0).(*github.RepositoryRelease)
	return rel, response(args, 1), args.Error(2)
}

func (m *MockReleasesService) DeleteRelease(ctx context.Context, owner, repo string, id int64) (*github.Response, error) {
	args := m.Called(ctx, owner, repo, id)
	return response(args, 0), args.Error(1)
}

func (m *MockReleasesService) ListReleases(ctx context.Context, owner, repo string, opts *github.ListOptions) ([]*github.RepositoryRelease, *github.Response, error) {
	args := m.Called(ctx, owner, repo, opts)
	rels, _ := args.Get(0).([]*github.RepositoryRelease)
	return rels, response(args, 1), args.Error(2)
}

type MockRepositoriesService struct {
	mock.Mock
}

func (m *MockRepositoriesService) ListTags(ctx context.Context, owner, repo string, opts *github.ListOptions) ([]*github.RepositoryTag, *github.Response, error) {
	args := m.Called(ctx, owner, repo, opts)
	tags, _ := args.Get(0).([]*github.RepositoryTag)
	return tags, response(args, 1), args.Error(2)
}

func (m *MockRepositoriesService) ListBranches(ctx context.Context, owner, repo string, opts *github.BranchListOptions) ([]*github.Branch, *github.Response, error) {
	args := m.Called(ctx, owner, repo, opts)
	branches, _ := args.Get(0).([]*github.Branch)
	return branches, response(args, 1), args.Error(2)
}

func (m *MockRepositoriesService) ListByAuthenticatedUser(ctx context.Context, opts *github.RepositoryListByAuthenticatedUserOptions) ([]*github.Repository, *github.Response, error) {
	args := m.Called(ctx, opts)
	repos, _ := args.Get(0).([]*github.Repository)
	return repos, response(args, 1), args.Error(2)
}

func (m *MockRepositoriesService) Create(ctx context.Context, org string, repo *github.Repository) (*github.Repository, *github.Response, error) {
	args := m.Called(ctx, org, repo)
	r, _ := args.Get(0).(*github.Repository)
	return r, response(args, 1), args.Error(2)
}

func (m *MockRepositoriesService) Edit(ctx context.Context, owner, repo string, repository *github.Repository) (*github.Repository, *github.Response, error) {
	args := m.Called(ctx, owner, repo, repository)
	r, _ := args.Get(0).(*github.Repository)
	return r, response(args, 1), args.Error(2)
}

func (m *MockRepositoriesService) GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error) {
	args := m.Called(ctx, owner, repo, path, opts)
	file, _ := args.Get(0).(*github.RepositoryContent)
	dir, _ := args.Get(1).([]*github.RepositoryContent)
	return file, dir, response(args, 2), args.Error(3)
}

type MockGitService struct {
	mock.Mock
}

func (m *MockGitService) DeleteRef(ctx context.Context, owner, repo, ref string) (*github.Response, error) {
	args := m.Called(ctx, owner, repo, ref)
	return response(args, 0), args.Error(1)
}

type MockUsersService struct {
	mock.Mock
}

func (m *MockUsersService) Get(ctx context.Context, user string) (*github.User, *github.Response, error) {
	args := m.Called(ctx, user)
	u, _ := args.Get(0).(*github.User)
	return u, response(args, 1), args.Error(2)
}

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Do(ctx context.Context, req *http.Request, v any) (*github.Response, error) {
	args := m.Called(ctx, req, v)
	return response(args, 0), args.Error(1)
}
