package git

import (
	"strings"

	"github.com/thomas-vilte/materelease/internal/models"
)

// unmerged XY pairs from git-status(1)
var conflictCodes = map[string]bool{
	"DD": true, "AU": true, "UD": true, "UA": true,
	"DU": true, "AA": true, "UU": true,
}

// parsePorcelain reads `git status --porcelain=v1 -z --branch` output. Each
// path lands in exactly one set: conflicted, then staged, then unstaged.
func parsePorcelain(out string) models.StatusResult {
	st := models.StatusResult{
		Staged:     []string{},
		Unstaged:   []string{},
		Untracked:  []string{},
		Conflicted: []string{},
	}

	entries := strings.Split(out, "\x00")
	for i := 0; i < len(entries); i++ {
		entry := entries[i]
		if entry == "" {
			continue
		}
		if strings.HasPrefix(entry, "## ") {
			st.Branch = parseBranchHeader(entry[3:])
			continue
		}
		if len(entry) < 4 {
			continue
		}

		x, y := entry[0], entry[1]
		path := entry[3:]

		// renames and copies are followed by the original path
		if x == 'R' || x == 'C' || y == 'R' || y == 'C' {
			i++
		}

		switch {
		case x == '?' && y == '?':
			st.Untracked = append(st.Untracked, path)
		case x == '!':
		case conflictCodes[string([]byte{x, y})]:
			st.Conflicted = append(st.Conflicted, path)
		case x != ' ':
			st.Staged = append(st.Staged, path)
		case y != ' ':
			st.Unstaged = append(st.Unstaged, path)
		}
	}
	return st
}

func parseBranchHeader(h string) string {
	h = strings.TrimPrefix(h, "No commits yet on ")
	h = strings.TrimPrefix(h, "Initial commit on ")
	if i := strings.Index(h, "..."); i >= 0 {
		h = h[:i]
	}
	if i := strings.IndexByte(h, ' '); i >= 0 {
		h = h[:i]
	}
	if h == "HEAD" {
		return ""
	}
	return h
}
