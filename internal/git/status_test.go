package git

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func porcelain(entries ...string) string {
	return strings.Join(entries, "\x00") + "\x00"
}

func TestParsePorcelain(t *testing.T) {
	t.Run("sorts paths into disjoint sets", func(t *testing.T) {
		out := porcelain(
			"## main...origin/main [ahead 1]",
			"M  staged.go",
			" M unstaged.go",
			"MM both.go",
			"?? new.txt",
			"UU conflict.go",
			"AA added-twice.go",
			"A  added.go",
			" D removed.go",
		)

		st := parsePorcelain(out)

		assert.Equal(t, "main", st.Branch)
		assert.ElementsMatch(t, []string{"staged.go", "both.go", "added.go"}, st.Staged)
		assert.ElementsMatch(t, []string{"unstaged.go", "removed.go"}, st.Unstaged)
		assert.Equal(t, []string{"new.txt"}, st.Untracked)
		assert.ElementsMatch(t, []string{"conflict.go", "added-twice.go"}, st.Conflicted)
	})

	t.Run("skips the original path of a rename", func(t *testing.T) {
		out := porcelain("R  new-name.go", "old-name.go", " M other.go")

		st := parsePorcelain(out)

		assert.Equal(t, []string{"new-name.go"}, st.Staged)
		assert.Equal(t, []string{"other.go"}, st.Unstaged)
	})

	t.Run("keeps spaces in paths", func(t *testing.T) {
		st := parsePorcelain(porcelain("?? dir with space/file name.txt"))
		assert.Equal(t, []string{"dir with space/file name.txt"}, st.Untracked)
	})

	t.Run("every conflict code is conflicted", func(t *testing.T) {
		for code := range conflictCodes {
			st := parsePorcelain(porcelain(code + " f"))
			assert.Equal(t, []string{"f"}, st.Conflicted, code)
			assert.Empty(t, st.Staged, code)
			assert.Empty(t, st.Unstaged, code)
		}
	})

	t.Run("clean tree", func(t *testing.T) {
		st := parsePorcelain(porcelain("## main"))
		assert.True(t, st.Clean())
		assert.NotNil(t, st.Staged)
	})
}

func TestParseBranchHeader(t *testing.T) {
	tests := map[string]string{
		"main":                            "main",
		"main...origin/main":              "main",
		"feature/x...origin/x [behind 2]": "feature/x",
		"No commits yet on trunk":         "trunk",
		"HEAD (no branch)":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, parseBranchHeader(in), in)
	}
}
