// Package archive packs a project's working tree into a zip file.
package archive

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/logger"
)

const gitDir = ".git"

// CreateProjectZip zips the working tree under root into out and reports
// whether it succeeded. Failures are logged.
func CreateProjectZip(root, out string) bool {
	ctx := context.Background()
	if _, err := Create(ctx, root, out); err != nil {
		logger.Error(ctx, "project archive failed", err, "root", root, "out", out)
		return false
	}
	return true
}

// Create zips the files under root as they are on disk, uncommitted changes
// included. The .git directory, paths matched by .gitignore files and out
// itself are left out. It returns the number of files written.
func Create(ctx context.Context, root, out string) (int, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return 0, errors.ErrArchiveFailed.WithError(err)
	}
	absOut, err := filepath.Abs(out)
	if err != nil {
		return 0, errors.ErrArchiveFailed.WithError(err)
	}

	tree := osfs.New(absRoot)
	patterns, err := gitignore.ReadPatterns(tree, nil)
	if err != nil {
		return 0, errors.ErrArchiveFailed.WithError(err).WithContext("root", absRoot)
	}
	matcher := gitignore.NewMatcher(patterns)

	if err := os.MkdirAll(filepath.Dir(absOut), 0755); err != nil {
		return 0, errors.ErrArchiveFailed.WithError(err).WithContext("out", absOut)
	}
	f, err := os.Create(absOut)
	if err != nil {
		return 0, errors.ErrArchiveFailed.WithError(err).WithContext("out", absOut)
	}

	zw := zip.NewWriter(f)
	count, walkErr := addTree(ctx, zw, tree, matcher, absRoot, absOut)
	closeErr := zw.Close()
	if err := f.Close(); err != nil && closeErr == nil {
		closeErr = err
	}

	if walkErr == nil {
		walkErr = closeErr
	}
	if walkErr != nil {
		_ = os.Remove(absOut)
		return 0, errors.ErrArchiveFailed.WithError(walkErr).WithContext("root", absRoot)
	}

	logger.Debug(ctx, "project archived", "files", count, "out", absOut)
	return count, nil
}

func addTree(ctx context.Context, zw *zip.Writer, tree billy.Filesystem, matcher gitignore.Matcher, root, out string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == root {
			return nil
		}
		if path == out {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")

		if d.IsDir() {
			if d.Name() == gitDir || matcher.Match(parts, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || matcher.Match(parts, false) {
			return nil
		}

		if err := addFile(zw, tree, d, parts); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func addFile(zw *zip.Writer, tree billy.Filesystem, d fs.DirEntry, parts []string) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = strings.Join(parts, "/")
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	src, err := tree.Open(tree.Join(parts...))
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	_, err = io.Copy(w, src)
	return err
}
