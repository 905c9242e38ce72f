package github

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-github/v80/github"
	domainErrors "github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/logger"
	"github.com/thomas-vilte/materelease/internal/models"
	"golang.org/x/oauth2"
)

const pageSize = 100

type ReleasesService interface {
	CreateRelease(ctx context.Context, owner, repo string, release *github.RepositoryRelease) (*github.RepositoryRelease, *github.Response, error)
	DeleteRelease(ctx context.Context, owner, repo string, id int64) (*github.Response, error)
	ListReleases(ctx context.Context, owner, repo string, opts *github.ListOptions) ([]*github.RepositoryRelease, *github.Response, error)
}

type RepositoriesService interface {
	ListTags(ctx context.Context, owner, repo string, opts *github.ListOptions) ([]*github.RepositoryTag, *github.Response, error)
	ListBranches(ctx context.Context, owner, repo string, opts *github.BranchListOptions) ([]*github.Branch, *github.Response, error)
	ListByAuthenticatedUser(ctx context.Context, opts *github.RepositoryListByAuthenticatedUserOptions) ([]*github.Repository, *github.Response, error)
	Create(ctx context.Context, org string, repo *github.Repository) (*github.Repository, *github.Response, error)
	Edit(ctx context.Context, owner, repo string, repository *github.Repository) (*github.Repository, *github.Response, error)
	GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error)
}

type GitService interface {
	DeleteRef(ctx context.Context, owner, repo, ref string) (*github.Response, error)
}

type UsersService interface {
	Get(ctx context.Context, user string) (*github.User, *github.Response, error)
}

// Uploader sends a prepared request; *github.Client satisfies it.
type Uploader interface {
	Do(ctx context.Context, req *http.Request, v any) (*github.Response, error)
}

type GitHubClient struct {
	releaseService ReleasesService
	repoService    RepositoriesService
	gitService     GitService
	usersService   UsersService
	uploader       Uploader
}

// NewGitHubClient builds a client authenticated with token. baseURL may be
// empty for github.com.
func NewGitHubClient(token, baseURL string) (*GitHubClient, error) {
	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	client := github.NewClient(httpClient)
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, domainErrors.ErrRemoteRequest.WithError(err).WithContext("base_url", baseURL)
		}
	}

	return &GitHubClient{
		releaseService: client.Repositories,
		repoService:    client.Repositories,
		gitService:     client.Git,
		usersService:   client.Users,
		uploader:       client,
	}, nil
}

func NewGitHubClientWithServices(
	releaseService ReleasesService,
	repoService RepositoriesService,
	gitService GitService,
	usersService UsersService,
	uploader Uploader,
) *GitHubClient {
	return &GitHubClient{
		releaseService: releaseService,
		repoService:    repoService,
		gitService:     gitService,
		usersService:   usersService,
		uploader:       uploader,
	}
}

// mapError turns a go-github failure into a domain error. fallback is used
// for anything that is not a recognised status.
func mapError(op string, resp *github.Response, err error, fallback *domainErrors.AppError) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if stderrors.As(err, &rateErr) || stderrors.As(err, &abuseErr) {
		return domainErrors.ErrRateLimit.WithError(err).WithContext("operation", op)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &syntaxErr) || stderrors.As(err, &typeErr) {
		return domainErrors.ErrMalformedResponse.WithError(err).WithContext("operation", op)
	}

	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return domainErrors.ErrTokenInvalid.WithError(err).WithContext("operation", op)
		case http.StatusForbidden:
			return domainErrors.ErrInsufficientPerms.WithError(err).WithContext("operation", op)
		case http.StatusNotFound:
			return domainErrors.ErrNotFound.WithError(err).WithContext("operation", op)
		case http.StatusTooManyRequests:
			return domainErrors.ErrRateLimit.WithError(err).WithContext("operation", op)
		case http.StatusUnprocessableEntity:
			if hasErrorCode(err, "already_exists", "") {
				return domainErrors.ErrAlreadyExists.WithError(err).WithContext("operation", op)
			}
		}
	}

	mapped := fallback.WithError(err).WithContext("operation", op)
	if resp != nil {
		mapped = mapped.WithContext("status_code", resp.StatusCode)
	}
	return mapped
}

// hasErrorCode reports whether a validation error lists code, optionally
// restricted to field.
func hasErrorCode(err error, code, field string) bool {
	var errResp *github.ErrorResponse
	if !stderrors.As(err, &errResp) {
		return false
	}
	for _, e := range errResp.Errors {
		if e.Code == code && (field == "" || e.Field == field) {
			return true
		}
	}
	return false
}

// paginate requests fixed-size pages until one comes back empty.
func paginate[T any](ctx context.Context, fetch func(ctx context.Context, opts github.ListOptions) ([]T, *github.Response, error)) ([]T, *github.Response, error) {
	all := make([]T, 0)
	opts := github.ListOptions{PerPage: pageSize, Page: 1}
	for {
		items, resp, err := fetch(ctx, opts)
		if err != nil {
			return nil, resp, err
		}
		if len(items) == 0 {
			return all, resp, nil
		}
		all = append(all, items...)
		opts.Page++
	}
}

func (ghc *GitHubClient) GetAuthenticatedUser(ctx context.Context) (models.User, error) {
	user, resp, err := ghc.usersService.Get(ctx, "")
	if err != nil {
		return models.User{}, mapError("get authenticated user", resp, err, domainErrors.ErrRemoteRequest)
	}
	if user.GetLogin() == "" {
		return models.User{}, domainErrors.ErrMalformedResponse.WithContext("operation", "get authenticated user")
	}
	return models.User{Login: user.GetLogin(), Name: user.GetName(), Email: user.GetEmail()}, nil
}

func (ghc *GitHubClient) ListRepositories(ctx context.Context) ([]models.Repository, error) {
	repos, resp, err := paginate(ctx, func(ctx context.Context, opts github.ListOptions) ([]*github.Repository, *github.Response, error) {
		return ghc.repoService.ListByAuthenticatedUser(ctx, &github.RepositoryListByAuthenticatedUserOptions{
			Sort:        "updated",
			ListOptions: opts,
		})
	})
	if err != nil {
		return nil, mapError("list repositories", resp, err, domainErrors.ErrRemoteRequest)
	}

	out := make([]models.Repository, 0, len(repos))
	for _, r := range repos {
		out = append(out, toRepository(r))
	}
	return out, nil
}

func (ghc *GitHubClient) ListBranches(ctx context.Context, owner, repo string) ([]models.Branch, error) {
	branches, resp, err := paginate(ctx, func(ctx context.Context, opts github.ListOptions) ([]*github.Branch, *github.Response, error) {
		return ghc.repoService.ListBranches(ctx, owner, repo, &github.BranchListOptions{ListOptions: opts})
	})
	if err != nil {
		return nil, mapError("list branches", resp, err, domainErrors.ErrRemoteRequest)
	}

	out := make([]models.Branch, 0, len(branches))
	for _, b := range branches {
		out = append(out, models.Branch{Name: b.GetName(), Protected: b.GetProtected()})
	}
	return out, nil
}

func (ghc *GitHubClient) ListTags(ctx context.Context, owner, repo string) ([]models.Tag, error) {
	tags, resp, err := paginate(ctx, func(ctx context.Context, opts github.ListOptions) ([]*github.RepositoryTag, *github.Response, error) {
		return ghc.repoService.ListTags(ctx, owner, repo, &opts)
	})
	if err != nil {
		return nil, mapError("list tags", resp, err, domainErrors.ErrRemoteRequest)
	}

	out := make([]models.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, models.Tag{Name: t.GetName(), SHA: t.GetCommit().GetSHA()})
	}
	return out, nil
}

// DeleteTag removes the tag ref from the hosted repository.
func (ghc *GitHubClient) DeleteTag(ctx context.Context, owner, repo, tag string) error {
	resp, err := ghc.gitService.DeleteRef(ctx, owner, repo, "tags/"+tag)
	if err != nil {
		return mapError("delete tag", resp, err, domainErrors.ErrRemoteRequest)
	}
	return nil
}

func (ghc *GitHubClient) ListReleases(ctx context.Context, owner, repo string) ([]models.Release, error) {
	releases, resp, err := paginate(ctx, func(ctx context.Context, opts github.ListOptions) ([]*github.RepositoryRelease, *github.Response, error) {
		return ghc.releaseService.ListReleases(ctx, owner, repo, &opts)
	})
	if err != nil {
		return nil, mapError("list releases", resp, err, domainErrors.ErrRemoteRequest)
	}

	out := make([]models.Release, 0, len(releases))
	for _, r := range releases {
		out = append(out, toRelease(r))
	}
	return out, nil
}

// CreateRelease publishes a release for an existing tag. A tag that already
// has a release yields ErrReleaseAlreadyExists.
func (ghc *GitHubClient) CreateRelease(ctx context.Context, handle models.RepositoryHandle, draft models.ReleaseDraft) (models.Release, error) {
	log := logger.FromContext(ctx)

	req := &github.RepositoryRelease{
		TagName:    github.Ptr(draft.TagName),
		Name:       github.Ptr(draft.Title),
		Body:       github.Ptr(draft.Notes),
		Prerelease: github.Ptr(draft.Prerelease),
	}
	if draft.TargetBranch != "" {
		req.TargetCommitish = github.Ptr(draft.TargetBranch)
	}

	created, resp, err := ghc.releaseService.CreateRelease(ctx, handle.RemoteOwner, handle.RemoteName, req)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity && hasErrorCode(err, "already_exists", "tag_name") {
			return models.Release{}, domainErrors.ErrReleaseAlreadyExists.WithError(err).
				WithContext("tag", draft.TagName)
		}
		mapped := mapError("create release", resp, err, domainErrors.ErrCreateRelease)
		logger.Error(ctx, "create release failed", mapped, "tag", draft.TagName)
		return models.Release{}, mapped
	}

	log.Info("release created",
		"tag", draft.TagName,
		"release_id", created.GetID())
	return toRelease(created), nil
}

func (ghc *GitHubClient) DeleteRelease(ctx context.Context, handle models.RepositoryHandle, id int64) error {
	resp, err := ghc.releaseService.DeleteRelease(ctx, handle.RemoteOwner, handle.RemoteName, id)
	if err != nil {
		return mapError("delete release", resp, err, domainErrors.ErrDeleteRelease)
	}
	return nil
}

// UploadAsset reads path into memory and posts it to the release's upload
// URL. Every failure, local or remote, is an ErrUploadAsset.
func (ghc *GitHubClient) UploadAsset(ctx context.Context, uploadURL, path string) (models.ReleaseAsset, error) {
	name := filepath.Base(path)
	fail := func(err error) error {
		return domainErrors.ErrUploadAsset.WithError(err).
			WithContext("asset_path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.ReleaseAsset{}, fail(err)
	}

	target, err := assetURL(uploadURL, name)
	if err != nil {
		return models.ReleaseAsset{}, fail(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return models.ReleaseAsset{}, fail(err)
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/vnd.github+json")

	asset := new(github.ReleaseAsset)
	resp, err := ghc.uploader.Do(ctx, req, asset)
	if err != nil {
		uploadErr := domainErrors.ErrUploadAsset.WithError(err).WithContext("asset_path", path)
		if resp != nil {
			uploadErr = uploadErr.WithContext("status_code", resp.StatusCode)
		}
		return models.ReleaseAsset{}, uploadErr
	}

	logger.Info(ctx, "asset uploaded", "asset", name, "size", len(data))
	return models.ReleaseAsset{
		ID:          asset.GetID(),
		Name:        asset.GetName(),
		Size:        int64(asset.GetSize()),
		DownloadURL: asset.GetBrowserDownloadURL(),
	}, nil
}

// assetURL drops the RFC 6570 "{?name,label}" suffix GitHub appends to
// upload_url and sets the asset name.
func assetURL(uploadURL, name string) (string, error) {
	if i := strings.IndexByte(uploadURL, '{'); i >= 0 {
		uploadURL = uploadURL[:i]
	}
	u, err := url.Parse(uploadURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("name", name)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (ghc *GitHubClient) CreateRepository(ctx context.Context, name, description string, private bool) (models.Repository, error) {
	repo, resp, err := ghc.repoService.Create(ctx, "", &github.Repository{
		Name:        github.Ptr(name),
		Description: github.Ptr(description),
		Private:     github.Ptr(private),
	})
	if err != nil {
		return models.Repository{}, mapError("create repository", resp, err, domainErrors.ErrRemoteRequest)
	}
	return toRepository(repo), nil
}

func (ghc *GitHubClient) SetVisibility(ctx context.Context, owner, name string, private bool) (models.Repository, error) {
	repo, resp, err := ghc.repoService.Edit(ctx, owner, name, &github.Repository{
		Private: github.Ptr(private),
	})
	if err != nil {
		return models.Repository{}, mapError("change visibility", resp, err, domainErrors.ErrRemoteRequest)
	}
	return toRepository(repo), nil
}

// FetchIndexFile returns the decoded content of path at ref (default branch
// when ref is empty).
func (ghc *GitHubClient) FetchIndexFile(ctx context.Context, owner, repo, path, ref string) (string, error) {
	var opts *github.RepositoryContentGetOptions
	if ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref}
	}

	fileContent, _, resp, err := ghc.repoService.GetContents(ctx, owner, repo, path, opts)
	if err != nil {
		return "", mapError("fetch index file", resp, err, domainErrors.ErrRemoteRequest)
	}

	if fileContent == nil {
		return "", domainErrors.ErrNotFound.WithContext("path", path)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return "", domainErrors.ErrMalformedResponse.WithError(err).WithContext("path", path)
	}
	return content, nil
}

func toRelease(r *github.RepositoryRelease) models.Release {
	return models.Release{
		ID:         r.GetID(),
		TagName:    r.GetTagName(),
		Name:       r.GetName(),
		HTMLURL:    r.GetHTMLURL(),
		UploadURL:  r.GetUploadURL(),
		Draft:      r.GetDraft(),
		Prerelease: r.GetPrerelease(),
		CreatedAt:  r.GetCreatedAt().Time,
	}
}

func toRepository(r *github.Repository) models.Repository {
	return models.Repository{
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Private:       r.GetPrivate(),
		DefaultBranch: r.GetDefaultBranch(),
		CloneURL:      r.GetCloneURL(),
		HTMLURL:       r.GetHTMLURL(),
	}
}
