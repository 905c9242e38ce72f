package models

// StatusResult holds disjoint path sets. RepoPath lets a caller with several
// repositories route the result back to its origin.
type StatusResult struct {
	RepoPath   string
	Branch     string
	Staged     []string
	Unstaged   []string
	Untracked  []string
	Conflicted []string
}

func (s StatusResult) Clean() bool {
	return len(s.Staged) == 0 && len(s.Unstaged) == 0 && len(s.Untracked) == 0 && len(s.Conflicted) == 0
}

type CommitResult struct {
	NoOp bool
	Hash string
}

type Identity struct {
	Name  string
	Email string
}

func (i Identity) Complete() bool {
	return i.Name != "" && i.Email != ""
}
