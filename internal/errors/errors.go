package errors

import "fmt"

// ErrorType defines the category of the error
type ErrorType string

const (
	TypeConfiguration ErrorType = "CONFIGURATION"
	TypeEnvironment   ErrorType = "ENVIRONMENT"
	TypeGit           ErrorType = "GIT"
	TypeRemote        ErrorType = "REMOTE"
	TypeBuild         ErrorType = "BUILD"
	TypeSaga          ErrorType = "SAGA"
	TypeInternal      ErrorType = "INTERNAL"
)

// AppError represents a domain-level error with a type and an underlying error
type AppError struct {
	Type       ErrorType
	Message    string
	Context    map[string]interface{}
	Err        error
	Suggestion string
}

func (e *AppError) Error() string {
	var msg string
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	} else {
		msg = fmt.Sprintf("%s: %s", e.Type, e.Message)
	}

	if e.Context != nil {
		if stderr, ok := e.Context["stderr"].(string); ok && stderr != "" {
			msg += fmt.Sprintf(" - %s", stderr)
		}
	}

	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError of the same type and message, so a
// sentinel still matches after WithError/WithContext produced a copy of it.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Message == t.Message
}

// WithError creates a new AppError with an underlying error
func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Type:       e.Type,
		Message:    e.Message,
		Context:    e.Context,
		Err:        err,
		Suggestion: e.Suggestion,
	}
}

// WithContext creates a new AppError with additional context
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	ctx := make(map[string]interface{})
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	return &AppError{
		Type:       e.Type,
		Message:    e.Message,
		Context:    ctx,
		Err:        e.Err,
		Suggestion: e.Suggestion,
	}
}

func (e *AppError) WithSuggestion(suggestion string) *AppError {
	return &AppError{
		Type:       e.Type,
		Message:    e.Message,
		Context:    e.Context,
		Err:        e.Err,
		Suggestion: suggestion,
	}
}

// NewAppError creates a new AppError
func NewAppError(t ErrorType, msg string, err error) *AppError {
	return &AppError{
		Type:    t,
		Message: msg,
		Err:     err,
	}
}

// Local environment errors
var (
	ErrNotARepository = NewAppError(TypeEnvironment, "Not a git repository", nil).
				WithSuggestion("Initialize the project first: materelease repo publish <remote-url>")

	ErrIdentityMissing = NewAppError(TypeEnvironment, "Git identity is not configured", nil).
				WithSuggestion("Set it with: materelease git identity --name \"Your Name\" --email \"you@example.com\"")

	ErrLocalChanges = NewAppError(TypeEnvironment, "Local changes would be overwritten", nil).
			WithSuggestion("Commit or stash your changes and try again")

	ErrArchiveFailed = NewAppError(TypeEnvironment, "Failed to archive the project", nil).
				WithSuggestion("Check that the project directory is readable and the temp directory is writable")

	ErrVersionFile = NewAppError(TypeEnvironment, "Failed to update the version file", nil).
			WithSuggestion("Configure the version file: version_file and version_pattern in config.toml")

	ErrVersionFileNotFound = NewAppError(TypeEnvironment, "Version file not found", nil).
				WithSuggestion("Create the file or set version_file in config.toml")
)

// Git protocol errors
var (
	ErrPushRejected = NewAppError(TypeGit, "The remote rejected the push because it contains work you do not have locally", nil).
			WithSuggestion("Pull first: materelease git pull, then publish again")

	ErrGitAuth = NewAppError(TypeGit, "Authentication with the git remote failed", nil).
			WithSuggestion("Check your credentials or SSH key for the remote")

	ErrRemoteUnreadable = NewAppError(TypeGit, "Could not read from the remote repository", nil).
				WithSuggestion("Verify the remote URL and your access: git remote -v")

	ErrNoUpstream = NewAppError(TypeGit, "The current branch has no upstream branch", nil).
			WithSuggestion("Push the branch with an upstream first: git push -u origin <branch>")

	ErrUnresolvedConflicts = NewAppError(TypeGit, "The repository has unresolved conflicts", nil).
				WithSuggestion("Resolve the conflicts or abort the merge: materelease git abort-merge")

	ErrDivergentBranches = NewAppError(TypeGit, "Local and remote branches have diverged", nil).
				WithSuggestion("Reconcile them with: materelease git fix-divergence")

	ErrDubiousOwnership = NewAppError(TypeGit, "Git refuses to work in this directory because it is owned by another user", nil).
				WithSuggestion("Mark the directory as safe: materelease git trust")

	ErrGitCommand = NewAppError(TypeGit, "Git command failed", nil)

	ErrCreateTag = NewAppError(TypeGit, "Failed to create tag", nil).
			WithSuggestion("List existing tags: git tag -l")

	ErrDeleteTag = NewAppError(TypeGit, "Failed to delete tag", nil)

	ErrCreateCommit = NewAppError(TypeGit, "Failed to create commit", nil).
			WithSuggestion("Ensure git user is configured:\n   git config --global user.name \"Your Name\"\n   git config --global user.email \"your@email.com\"")

	ErrGetRepoURL = NewAppError(TypeGit, "Failed to get repository URL", nil).
			WithSuggestion("Add a remote: materelease repo link <url>")

	ErrExtractRepoInfo = NewAppError(TypeGit, "Failed to extract repository info", nil)

	ErrNoBranch = NewAppError(TypeGit, "No branch detected", nil).
			WithSuggestion("Create a branch first: git checkout -b <branch-name>")
)

// Configuration errors
var (
	ErrNotAuthenticated = NewAppError(TypeConfiguration, "Not logged in", nil).
				WithSuggestion("Run: materelease login")

	ErrNoActiveRepository = NewAppError(TypeConfiguration, "No active repository configured", nil).
				WithSuggestion("Add one with: materelease repo add <path>")

	ErrRepositoryUnknown = NewAppError(TypeConfiguration, "Repository is not configured", nil).
				WithSuggestion("List configured repositories: materelease repo list")

	ErrConfigInvalid = NewAppError(TypeConfiguration, "Configuration is invalid", nil)

	ErrClientIDMissing = NewAppError(TypeConfiguration, "OAuth client id is missing", nil).
				WithSuggestion("Set client_id in ~/.materelease/config.toml")
)

// Remote API errors
var (
	ErrTokenInvalid = NewAppError(TypeRemote, "Access token is invalid or expired", nil).
			WithSuggestion("Log in again: materelease login")

	ErrInsufficientPerms = NewAppError(TypeRemote, "Access token has insufficient permissions", nil).
				WithSuggestion("Log in again and grant the 'repo' scope")

	ErrRateLimit = NewAppError(TypeRemote, "API rate limit exceeded", nil).
			WithSuggestion("Wait a few minutes and try again")

	ErrNotFound = NewAppError(TypeRemote, "Resource not found", nil).
			WithSuggestion("Check the repository owner/name and your access")

	ErrAlreadyExists = NewAppError(TypeRemote, "Resource already exists", nil)

	ErrReleaseAlreadyExists = NewAppError(TypeRemote, "Tag already has a release", nil).
				WithSuggestion("Choose a new tag name or delete the existing release first")

	ErrCreateRelease = NewAppError(TypeRemote, "Failed to create release", nil)

	ErrDeleteRelease = NewAppError(TypeRemote, "Failed to delete release", nil)

	ErrUploadAsset = NewAppError(TypeRemote, "Failed to upload release asset", nil).
			WithSuggestion("Check the file exists and is readable, then publish again")

	ErrRemoteRequest = NewAppError(TypeRemote, "Request to the hosting provider failed", nil)

	ErrMalformedResponse = NewAppError(TypeRemote, "Hosting provider returned a malformed response", nil)

	ErrDeviceFlow = NewAppError(TypeRemote, "Device login failed", nil)

	ErrDeviceAccessDenied = NewAppError(TypeRemote, "Login was denied in the browser", nil).
				WithSuggestion("Run materelease login again and approve the request")

	ErrDeviceCodeExpired = NewAppError(TypeRemote, "Login code expired before it was approved", nil).
				WithSuggestion("Run materelease login again and enter the code sooner")

	ErrPartialCleanup = NewAppError(TypeRemote, "Some orphaned tags could not be deleted", nil)
)

// Build errors
var (
	ErrBuildFailed = NewAppError(TypeBuild, "Build command exited with a non-zero status", nil).
			WithSuggestion("Check the build output below, fix the build and publish again")

	ErrBuildLaunch = NewAppError(TypeBuild, "Build command could not be started", nil).
			WithSuggestion("Check build.command in config.toml")

	ErrBuildNoVersion  = NewAppError(TypeBuild, "Build version not specified", nil)
	ErrBuildNoCommit   = NewAppError(TypeBuild, "Build commit not specified", nil)
	ErrBuildNoBuildDir = NewAppError(TypeBuild, "Build directory not specified", nil)
)

// Saga errors
var (
	ErrPublishInProgress = NewAppError(TypeSaga, "A publish is already running", nil).
				WithSuggestion("Wait for it to finish or cancel it")

	ErrInvalidDraft = NewAppError(TypeSaga, "Release draft is invalid", nil)

	ErrNoUploadURL = NewAppError(TypeSaga, "Release was created without an upload URL", nil)

	ErrCancelled = NewAppError(TypeSaga, "Publish cancelled by user", nil)

	ErrUnexpectedPayload = NewAppError(TypeSaga, "Step completed with an unexpected result", nil)
)

// Worker errors
var (
	ErrOperationTimeout = NewAppError(TypeInternal, "Operation timed out", nil)

	ErrWorkerPanic = NewAppError(TypeInternal, "Operation crashed", nil)

	ErrWorkerClosed = NewAppError(TypeInternal, "Worker is shut down", nil)

	ErrWorkerForceStopped = NewAppError(TypeInternal, "Worker did not stop in time and was aborted", nil)
)
