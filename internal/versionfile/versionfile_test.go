package versionfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thomas-vilte/materelease/internal/errors"
)

func TestFile_ReadWrite(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		pattern string
		content string
		want    string
		after   string
	}{
		{
			name:    "package.json",
			file:    "package.json",
			content: "{\n  \"name\": \"app\",\n  \"version\": \"1.2.0\"\n}\n",
			want:    "1.2.0",
			after:   "{\n  \"name\": \"app\",\n  \"version\": \"1.2.1\"\n}\n",
		},
		{
			name:    "Cargo.toml keeps dependency versions",
			file:    "Cargo.toml",
			content: "[package]\nname = \"app\"\nversion = \"1.2.0\"\n\n[dependencies]\nserde = { version = \"1.0\" }\n",
			want:    "1.2.0",
			after:   "[package]\nname = \"app\"\nversion = \"1.2.1\"\n\n[dependencies]\nserde = { version = \"1.0\" }\n",
		},
		{
			name:    "go const",
			file:    "internal/version/version.go",
			content: "package version\n\nconst Version = \"v1.2.0\"\n",
			want:    "v1.2.0",
			after:   "package version\n\nconst Version = \"1.2.1\"\n",
		},
		{
			name:    "configured pattern",
			file:    "app.cfg",
			pattern: `APP_VERSION=(\S+)`,
			content: "NAME=app\nAPP_VERSION=1.2.0\n",
			want:    "1.2.0",
			after:   "NAME=app\nAPP_VERSION=1.2.1\n",
		},
		{
			name:    "plain file",
			file:    "VERSION",
			content: "1.2.0\n",
			want:    "1.2.0",
			after:   "1.2.1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			path := filepath.Join(root, tt.file)
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			f := New(root, tt.file, tt.pattern)

			got, err := f.Read()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			require.NoError(t, f.Write("v1.2.1"))
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.after, string(data))
		})
	}
}

func TestFile_PlainFileIsCreated(t *testing.T) {
	root := t.TempDir()
	f := New(root, "", "")

	_, err := f.Read()
	assert.ErrorIs(t, err, errors.ErrVersionFileNotFound)

	require.NoError(t, f.Write("v0.1.0"))
	got, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", got)
	assert.Equal(t, filepath.Join(root, DefaultPath), f.Path())
}

func TestFile_Errors(t *testing.T) {
	root := t.TempDir()

	t.Run("structured file must exist", func(t *testing.T) {
		err := New(root, "package.json", "").Write("1.0.0")
		assert.ErrorIs(t, err, errors.ErrVersionFileNotFound)
	})

	t.Run("invalid version", func(t *testing.T) {
		err := New(root, "", "").Write("next")
		assert.ErrorIs(t, err, errors.ErrVersionFile)
	})

	t.Run("pattern without group", func(t *testing.T) {
		path := filepath.Join(root, "x.cfg")
		require.NoError(t, os.WriteFile(path, []byte("V=1"), 0644))
		_, err := New(root, "x.cfg", `V=\d`).Read()
		assert.ErrorIs(t, err, errors.ErrVersionFile)
	})

	t.Run("no version in file", func(t *testing.T) {
		path := filepath.Join(root, "package.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"name":"x"}`), 0644))
		_, err := New(root, "package.json", "").Read()
		assert.ErrorIs(t, err, errors.ErrVersionFile)
	})
}
