package git

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/logger"
	"github.com/thomas-vilte/materelease/internal/models"
)

const (
	defaultRemote  = "origin"
	bootstrapMsg   = "Initial commit"
	defaultIgnores = "# Build output\ndist/\nbuild/\n\n# OS files\n.DS_Store\nThumbs.db\n\n# Editor files\n.idea/\n.vscode/\n*.swp\n"
)

// GitService shells out to the git binary. Every method takes the working
// directory explicitly; the service itself holds no repository state.
type GitService struct {
	binary string
}

func NewGitService() *GitService {
	return &GitService{binary: "git"}
}

type result struct {
	stdout   string
	stderr   string
	exitCode int
}

// invoke runs git in dir and returns raw output. The error is the process
// error, unclassified.
func (s *GitService) invoke(ctx context.Context, dir string, args ...string) (result, error) {
	cmd := exec.CommandContext(ctx, s.binary, args...)
	cmd.Dir = dir
	// C locale keeps git's messages stable for ClassifyError; no prompts so a
	// missing credential fails instead of hanging the worker.
	cmd.Env = append(os.Environ(), "LC_ALL=C", "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := result{stdout: stdout.String(), stderr: stderr.String()}
	if cmd.ProcessState != nil {
		res.exitCode = cmd.ProcessState.ExitCode()
	}

	logger.Debug(ctx, "git command finished",
		"args", strings.Join(args, " "),
		"exit_code", res.exitCode)
	return res, err
}

// run is invoke with the failure classified.
func (s *GitService) run(ctx context.Context, dir, op string, args ...string) (string, error) {
	res, err := s.invoke(ctx, dir, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", ClassifyError(op, res.stderr+res.stdout, err)
	}
	return res.stdout, nil
}

func identityArgs(id models.Identity, args ...string) []string {
	var out []string
	if id.Name != "" {
		out = append(out, "-c", "user.name="+id.Name)
	}
	if id.Email != "" {
		out = append(out, "-c", "user.email="+id.Email)
	}
	return append(out, args...)
}

// Status reports staged, unstaged, untracked and conflicted paths.
func (s *GitService) Status(ctx context.Context, dir string) (models.StatusResult, error) {
	out, err := s.run(ctx, dir, "status", "status", "--porcelain=v1", "-z", "--branch", "--untracked-files=all")
	if err != nil {
		return models.StatusResult{RepoPath: dir}, err
	}
	st := parsePorcelain(out)
	st.RepoPath = dir
	return st, nil
}

// HasStagedChanges checks if there are changes in the staging area
func (s *GitService) HasStagedChanges(ctx context.Context, dir string) (bool, error) {
	res, err := s.invoke(ctx, dir, "diff", "--cached", "--quiet")
	if err == nil {
		return false, nil
	}
	// exit status 1 means there are staged changes
	if res.exitCode == 1 {
		return true, nil
	}
	return false, ClassifyError("diff", res.stderr, err)
}

// Commit stages everything and commits it. A clean tree is a NoOp result.
func (s *GitService) Commit(ctx context.Context, dir, message string, id models.Identity) (models.CommitResult, error) {
	if _, err := s.run(ctx, dir, "add", "add", "-A"); err != nil {
		return models.CommitResult{}, err
	}

	pending, err := s.HasStagedChanges(ctx, dir)
	if err != nil {
		return models.CommitResult{}, err
	}
	if !pending {
		logger.Info(ctx, "nothing to commit", "dir", dir)
		return models.CommitResult{NoOp: true}, nil
	}

	if _, err := s.run(ctx, dir, "commit", identityArgs(id, "commit", "-m", message)...); err != nil {
		return models.CommitResult{}, err
	}

	hash, err := s.run(ctx, dir, "rev-parse", "rev-parse", "HEAD")
	if err != nil {
		return models.CommitResult{}, err
	}
	return models.CommitResult{Hash: strings.TrimSpace(hash)}, nil
}

// Push pushes branch to origin.
func (s *GitService) Push(ctx context.Context, dir, branch string) error {
	_, err := s.run(ctx, dir, "push", "push", defaultRemote, branch)
	return err
}

func (s *GitService) PushTag(ctx context.Context, dir, tag string) error {
	_, err := s.run(ctx, dir, "push", "push", defaultRemote, "refs/tags/"+tag)
	return err
}

func (s *GitService) Pull(ctx context.Context, dir string) error {
	_, err := s.run(ctx, dir, "pull", "pull")
	return err
}

// Clone clones url into dest. dest's parent must exist.
func (s *GitService) Clone(ctx context.Context, url, dest string) error {
	_, err := s.run(ctx, filepath.Dir(dest), "clone", "clone", url, dest)
	return err
}

// CommitCount returns 0 for a repository whose branch has no commits yet.
func (s *GitService) CommitCount(ctx context.Context, dir string) (int, error) {
	res, err := s.invoke(ctx, dir, "rev-parse", "-q", "--verify", "HEAD")
	if err != nil {
		if res.exitCode == 1 && strings.TrimSpace(res.stderr) == "" {
			return 0, nil
		}
		return 0, ClassifyError("rev-parse", res.stderr, err)
	}

	out, err := s.run(ctx, dir, "rev-list", "rev-list", "--count", "HEAD")
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, errors.ErrGitCommand.WithError(err).WithContext("op", "rev-list")
	}
	return count, nil
}

func (s *GitService) tagExists(ctx context.Context, dir, tag string) (bool, error) {
	res, err := s.invoke(ctx, dir, "rev-parse", "-q", "--verify", "refs/tags/"+tag)
	if err == nil {
		return true, nil
	}
	if res.exitCode == 1 {
		return false, nil
	}
	return false, ClassifyError("rev-parse", res.stderr, err)
}

// CreateTag creates an annotated tag on HEAD, replacing a tag with the same
// name. A repository without commits first gets a bootstrap commit (and a
// default .gitignore if it has none); otherwise pending changes are left
// alone.
func (s *GitService) CreateTag(ctx context.Context, dir, tag, message string, id models.Identity) error {
	count, err := s.CommitCount(ctx, dir)
	if err != nil {
		return err
	}

	if count == 0 {
		if err := s.bootstrap(ctx, dir, id); err != nil {
			return err
		}
	}

	exists, err := s.tagExists(ctx, dir, tag)
	if err != nil {
		return err
	}
	if exists {
		logger.Info(ctx, "replacing existing tag", "tag", tag)
		if err := s.DeleteTag(ctx, dir, tag); err != nil {
			return err
		}
	}

	if message == "" {
		message = tag
	}
	if _, err := s.run(ctx, dir, "tag", identityArgs(id, "tag", "-a", tag, "-m", message)...); err != nil {
		return errors.ErrCreateTag.WithError(err).WithContext("tag", tag)
	}
	return nil
}

func (s *GitService) bootstrap(ctx context.Context, dir string, id models.Identity) error {
	ignore := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(ignore); os.IsNotExist(err) {
		if err := os.WriteFile(ignore, []byte(defaultIgnores), 0644); err != nil {
			return errors.ErrCreateCommit.WithError(err).WithContext("file", ignore)
		}
	}

	if _, err := s.run(ctx, dir, "add", "add", "-A"); err != nil {
		return err
	}
	if _, err := s.run(ctx, dir, "commit", identityArgs(id, "commit", "--allow-empty", "-m", bootstrapMsg)...); err != nil {
		return err
	}
	logger.Info(ctx, "created bootstrap commit", "dir", dir)
	return nil
}

func (s *GitService) DeleteTag(ctx context.Context, dir, tag string) error {
	if _, err := s.run(ctx, dir, "tag", "tag", "-d", tag); err != nil {
		return errors.ErrDeleteTag.WithError(err).WithContext("tag", tag)
	}
	return nil
}

func (s *GitService) DeleteRemoteTag(ctx context.Context, dir, tag string) error {
	if _, err := s.run(ctx, dir, "push", "push", defaultRemote, "--delete", "refs/tags/"+tag); err != nil {
		return errors.ErrDeleteTag.WithError(err).WithContext("tag", tag).WithContext("remote", defaultRemote)
	}
	return nil
}

// ForcePush overwrites the remote branch. It is only ever run on explicit
// user request.
func (s *GitService) ForcePush(ctx context.Context, dir, branch string) error {
	_, err := s.run(ctx, dir, "push", "push", "--force", defaultRemote, branch)
	return err
}

func (s *GitService) AbortMerge(ctx context.Context, dir string) error {
	_, err := s.run(ctx, dir, "merge", "merge", "--abort")
	return err
}

// FixBranchDivergence reconciles a diverged branch by merging the remote
// branch into it.
func (s *GitService) FixBranchDivergence(ctx context.Context, dir, branch string) error {
	_, err := s.run(ctx, dir, "pull", "pull", "--no-rebase", defaultRemote, branch)
	return err
}

// Publish turns dir into a repository (if it is not one yet), commits its
// content, links it to remoteURL and pushes branch with upstream tracking.
func (s *GitService) Publish(ctx context.Context, dir, remoteURL, branch, message string, id models.Identity) error {
	if _, err := os.Stat(filepath.Join(dir, ".git")); os.IsNotExist(err) {
		if _, err := s.run(ctx, dir, "init", "init", "-b", branch); err != nil {
			return err
		}
	}

	if message == "" {
		message = bootstrapMsg
	}
	if _, err := s.Commit(ctx, dir, message, id); err != nil {
		return err
	}

	if err := s.LinkRemote(ctx, dir, remoteURL); err != nil {
		return err
	}

	_, err := s.run(ctx, dir, "push", "push", "-u", defaultRemote, branch)
	return err
}

// LinkRemote points origin at url, adding the remote if needed.
func (s *GitService) LinkRemote(ctx context.Context, dir, url string) error {
	res, err := s.invoke(ctx, dir, "remote", "get-url", defaultRemote)
	if err == nil {
		if strings.TrimSpace(res.stdout) == url {
			return nil
		}
		_, err = s.run(ctx, dir, "remote", "remote", "set-url", defaultRemote, url)
		return err
	}
	if res.exitCode == 2 || strings.Contains(res.stderr, "No such remote") {
		_, err = s.run(ctx, dir, "remote", "remote", "add", defaultRemote, url)
		return err
	}
	return ClassifyError("remote", res.stderr, err)
}

func (s *GitService) configGet(ctx context.Context, dir, key string) (string, error) {
	res, err := s.invoke(ctx, dir, "config", "--get", key)
	if err != nil {
		// exit status 1: key not set
		if res.exitCode == 1 {
			return "", nil
		}
		return "", ClassifyError("config", res.stderr, err)
	}
	return strings.TrimSpace(res.stdout), nil
}

// GetIdentity reads the effective user.name and user.email. Missing values
// are returned empty.
func (s *GitService) GetIdentity(ctx context.Context, dir string) (models.Identity, error) {
	name, err := s.configGet(ctx, dir, "user.name")
	if err != nil {
		return models.Identity{}, err
	}
	email, err := s.configGet(ctx, dir, "user.email")
	if err != nil {
		return models.Identity{}, err
	}
	return models.Identity{Name: name, Email: email}, nil
}

// SetIdentity writes user.name and user.email to the repository config, or
// to the user's global config when global is set.
func (s *GitService) SetIdentity(ctx context.Context, dir string, id models.Identity, global bool) error {
	if !id.Complete() {
		return errors.ErrIdentityMissing.WithContext("name", id.Name).WithContext("email", id.Email)
	}
	scope := "--local"
	if global {
		scope = "--global"
	}
	if _, err := s.run(ctx, dir, "config", "config", scope, "user.name", id.Name); err != nil {
		return err
	}
	_, err := s.run(ctx, dir, "config", "config", scope, "user.email", id.Email)
	return err
}

// MarkSafeDirectory adds dir to the global safe.directory list.
func (s *GitService) MarkSafeDirectory(ctx context.Context, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return errors.ErrGitCommand.WithError(err)
	}
	_, err = s.run(ctx, abs, "config", "config", "--global", "--add", "safe.directory", abs)
	return err
}

func (s *GitService) CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := s.run(ctx, dir, "branch", "branch", "--show-current")
	if err != nil {
		return "", err
	}

	branchName := strings.TrimSpace(out)
	if branchName == "" {
		return "", errors.ErrNoBranch
	}
	return branchName, nil
}

func (s *GitService) RemoteURL(ctx context.Context, dir string) (string, error) {
	out, err := s.run(ctx, dir, "remote", "remote", "get-url", defaultRemote)
	if err != nil {
		return "", errors.ErrGetRepoURL.WithError(err)
	}
	return strings.TrimSpace(out), nil
}

// Handle resolves the hosted owner/name of the repository at dir from its
// origin URL.
func (s *GitService) Handle(ctx context.Context, dir string) (models.RepositoryHandle, error) {
	url, err := s.RemoteURL(ctx, dir)
	if err != nil {
		return models.RepositoryHandle{}, err
	}
	owner, name, _, err := parseRepoURL(url)
	if err != nil {
		return models.RepositoryHandle{}, err
	}
	return models.RepositoryHandle{LocalPath: dir, RemoteOwner: owner, RemoteName: name}, nil
}

var (
	sshRegex   = regexp.MustCompile(`^(?:ssh://)?git@([^:/]+)[:/]([^/]+)/(.+?)(?:\.git)?/?$`)
	httpsRegex = regexp.MustCompile(`^https?://(?:[^@/]+@)?([^/]+)/([^/]+)/(.+?)(?:\.git)?/?$`)
)

func parseRepoURL(url string) (string, string, string, error) {
	var matches []string
	if m := sshRegex.FindStringSubmatch(url); m != nil {
		matches = m
	} else if m := httpsRegex.FindStringSubmatch(url); m != nil {
		matches = m
	}

	if len(matches) >= 4 {
		return matches[2], matches[3], detectProvider(matches[1]), nil
	}

	return "", "", "", errors.ErrExtractRepoInfo.WithContext("url", url)
}

func detectProvider(host string) string {
	if strings.Contains(host, "github") {
		return "github"
	}
	if strings.Contains(host, "gitlab") {
		return "gitlab"
	}
	return "unknown"
}
