package git

import (
	"strings"

	"github.com/thomas-vilte/materelease/internal/errors"
)

type rule struct {
	needles []string
	err     *errors.AppError
}

// Order matters: an auth failure also prints "Could not read from remote
// repository", and dubious ownership must win over anything else git says.
var rules = []rule{
	{[]string{"detected dubious ownership"}, errors.ErrDubiousOwnership},
	{[]string{"not a git repository"}, errors.ErrNotARepository},
	{[]string{"please tell me who you are", "unable to auto-detect email address", "empty ident name"}, errors.ErrIdentityMissing},
	{[]string{"divergent branches", "need to specify how to reconcile"}, errors.ErrDivergentBranches},
	{[]string{"non-fast-forward", "[rejected]", "fetch first", "updates were rejected"}, errors.ErrPushRejected},
	{[]string{"authentication failed", "could not read username", "permission denied (publickey)", "error: 403", "returned error: 403", "invalid username or password"}, errors.ErrGitAuth},
	{[]string{"could not read from remote repository", "does not appear to be a git repository", "repository not found", "could not resolve host"}, errors.ErrRemoteUnreadable},
	{[]string{"has no upstream branch", "no tracking information"}, errors.ErrNoUpstream},
	{[]string{"would be overwritten", "commit your changes or stash them", "please commit or stash them"}, errors.ErrLocalChanges},
	{[]string{"unresolved conflict", "fix conflicts", "resolve your current index first", "conflict (", "merge_head exists", "you have not concluded your merge"}, errors.ErrUnresolvedConflicts},
}

// ClassifyError maps git's textual output onto a known failure category. The
// raw output is always kept under the "stderr" context key; text that
// matches nothing becomes a generic ErrGitCommand.
//
// This depends on git's English wording (commands run with LC_ALL=C) and
// can drift between git releases.
func ClassifyError(op, output string, err error) *errors.AppError {
	raw := strings.TrimSpace(output)
	lower := strings.ToLower(raw)

	base := errors.ErrGitCommand
	for _, r := range rules {
		if containsAny(lower, r.needles) {
			base = r.err
			break
		}
	}

	classified := base.WithContext("op", op)
	if raw != "" {
		classified = classified.WithContext("stderr", raw)
	}
	if err != nil {
		classified = classified.WithError(err)
	}
	return classified
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
