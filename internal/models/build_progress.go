package models

// BuildProgressType represents the type of build progress event
type BuildProgressType string

const (
	BuildProgressStart    BuildProgressType = "build_start"
	BuildProgressPlatform BuildProgressType = "build_platform"
	BuildProgressComplete BuildProgressType = "build_complete"
	BuildProgressError    BuildProgressType = "error"
)

// BuildProgress represents a progress update during a Go cross build
type BuildProgress struct {
	Type     BuildProgressType
	Platform string // e.g., "linux/amd64", "windows/arm64"
	Asset    string
	Current  int
	Total    int
	Error    error
}

// BuildResult is what any build runner reports. A non-zero ExitCode is a
// result, not a runner error; the caller decides what it means.
type BuildResult struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Artifacts []string
}
