// Package versionfile reads and rewrites the single version string a project
// keeps in a file.
package versionfile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/thomas-vilte/materelease/internal/errors"
	"golang.org/x/mod/semver"
)

// DefaultPath is used when no version file is configured.
const DefaultPath = "VERSION"

// Patterns by extension. Each has exactly one capture group around the
// version value.
var patternsByExt = map[string][]string{
	".json": {
		`"version"\s*:\s*"([^"]+)"`,
	},
	".toml": {
		`(?m)^\s*version\s*=\s*"([^"]+)"`,
	},
	".go": {
		`(?:const|var)\s+Version\s*=\s*"([^"]+)"`,
		`Version:\s*"([^"]+)"`,
		`Version\s*=\s*"([^"]+)"`,
	},
	".py": {
		`__version__\s*=\s*['"]([^'"]+)['"]`,
		`version\s*=\s*['"]([^'"]+)['"]`,
	},
	".js": {
		`export\s+const\s+version\s*=\s*['"]([^'"]+)['"]`,
		`"version"\s*:\s*"([^"]+)"`,
	},
	".xml": {
		`<version>([^<]+)</version>`,
	},
}

// File is one version file. A file with no known pattern (VERSION,
// version.txt) holds nothing but the version.
type File struct {
	path    string
	pattern string
}

// New returns the version file at path, resolved against root when relative.
// pattern, if set, must contain one capture group around the version.
func New(root, path, pattern string) *File {
	if path == "" {
		path = DefaultPath
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return &File{path: path, pattern: pattern}
}

func (f *File) Path() string {
	return f.path
}

func (f *File) plain() bool {
	if f.pattern != "" {
		return false
	}
	_, ok := patternsByExt[strings.ToLower(filepath.Ext(f.path))]
	return !ok
}

// Read returns the version currently in the file.
func (f *File) Read() (string, error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.ErrVersionFileNotFound.WithError(err).WithContext("file", f.path)
		}
		return "", errors.ErrVersionFile.WithError(err).WithContext("file", f.path)
	}

	if f.plain() {
		v := strings.TrimSpace(string(content))
		if v == "" {
			return "", errors.ErrVersionFile.WithContext("file", f.path).WithContext("reason", "file is empty")
		}
		return v, nil
	}

	re, err := f.match(string(content))
	if err != nil {
		return "", err
	}
	return re.FindStringSubmatch(string(content))[1], nil
}

// Write replaces the version in the file, keeping everything around it. The
// leading "v" of version is dropped. A missing plain file is created.
func (f *File) Write(version string) error {
	clean := strings.TrimPrefix(strings.TrimSpace(version), "v")
	if !semver.IsValid("v" + clean) {
		return errors.ErrVersionFile.WithContext("version", version).
			WithContext("reason", "not a semantic version")
	}

	if f.plain() {
		if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
			return errors.ErrVersionFile.WithError(err).WithContext("file", f.path)
		}
		return f.save([]byte(clean + "\n"))
	}

	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.ErrVersionFileNotFound.WithError(err).WithContext("file", f.path)
		}
		return errors.ErrVersionFile.WithError(err).WithContext("file", f.path)
	}
	content := string(raw)

	re, err := f.match(content)
	if err != nil {
		return err
	}
	loc := re.FindStringSubmatchIndex(content)
	updated := content[:loc[2]] + clean + content[loc[3]:]

	return f.save([]byte(updated))
}

func (f *File) save(data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(f.path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(f.path, data, mode); err != nil {
		return errors.ErrVersionFile.WithError(err).WithContext("file", f.path)
	}
	return nil
}

// match returns the first pattern that finds a version in content.
func (f *File) match(content string) (*regexp.Regexp, error) {
	candidates := patternsByExt[strings.ToLower(filepath.Ext(f.path))]
	if f.pattern != "" {
		candidates = []string{f.pattern}
	}

	for _, p := range candidates {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.ErrVersionFile.WithError(err).WithContext("pattern", p)
		}
		if re.NumSubexp() != 1 {
			return nil, errors.ErrVersionFile.WithContext("pattern", p).
				WithContext("reason", "pattern needs exactly one capture group")
		}
		if re.MatchString(content) {
			return re, nil
		}
	}

	return nil, errors.ErrVersionFile.WithContext("file", f.path).
		WithContext("reason", fmt.Sprintf("no version found (tried %d patterns)", len(candidates)))
}
