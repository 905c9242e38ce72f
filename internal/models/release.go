package models

import "time"

// RepositoryHandle identifies a local working tree and the hosted repository
// its origin remote points to.
type RepositoryHandle struct {
	LocalPath   string
	RemoteOwner string
	RemoteName  string
}

func (h RepositoryHandle) FullName() string {
	return h.RemoteOwner + "/" + h.RemoteName
}

// ReleaseDraft is the user's input for a publish. It is never modified once a
// run has started.
type ReleaseDraft struct {
	TagName        string `yaml:"tag"`
	Title          string `yaml:"title"`
	Notes          string `yaml:"notes"`
	Prerelease     bool   `yaml:"prerelease"`
	TargetBranch   string `yaml:"target"`
	BuildInstaller bool   `yaml:"installer"`
}

type Release struct {
	ID         int64
	TagName    string
	Name       string
	HTMLURL    string
	UploadURL  string
	Draft      bool
	Prerelease bool
	CreatedAt  time.Time
}

type ReleaseAsset struct {
	ID          int64
	Name        string
	Size        int64
	DownloadURL string
}

type Repository struct {
	Owner         string
	Name          string
	FullName      string
	Private       bool
	DefaultBranch string
	CloneURL      string
	HTMLURL       string
}

type Branch struct {
	Name      string
	Protected bool
}

type Tag struct {
	Name string
	SHA  string
}

// OrphanCleanupResult lists tags removed and tags that could not be removed
// together with the reason for each.
type OrphanCleanupResult struct {
	Deleted []string
	Failed  map[string]string
}
