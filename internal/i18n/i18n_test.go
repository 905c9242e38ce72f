package i18n

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTranslations(t *testing.T) {
	t.Run("Should load the embedded catalogues without a locales dir", func(t *testing.T) {
		// act
		trans, err := NewTranslations("en", "")

		// assert
		require.NoError(t, err)
		assert.Equal(t, "Creating tag v1.2.1", trans.GetMessage("step_create_tag", 0, map[string]interface{}{"Tag": "v1.2.1"}))
	})

	t.Run("Should fail with empty language", func(t *testing.T) {
		trans, err := NewTranslations("", "")

		assert.Error(t, err)
		assert.Nil(t, trans)
	})

	t.Run("Should let a locales dir override embedded messages", func(t *testing.T) {
		// arrange
		tmpDir := t.TempDir()
		createTestFile(t, tmpDir, "active.en.toml", `
		[step_push_tag]
		other = "Shipping {{.Tag}}"`)

		// act
		trans, err := NewTranslations("en", tmpDir)

		// assert
		require.NoError(t, err)
		assert.Equal(t, "Shipping v2", trans.GetMessage("step_push_tag", 0, map[string]interface{}{"Tag": "v2"}))
	})

	t.Run("Should fail with an invalid locale file", func(t *testing.T) {
		// arrange
		tmpDir := t.TempDir()
		createTestFile(t, tmpDir, "active.es.toml", `
		[InvalidSection
		this is not valid TOML`)

		// act
		trans, err := NewTranslations("es", tmpDir)

		// assert
		require.Error(t, err)
		assert.Nil(t, trans)
		assert.True(t, strings.HasPrefix(err.Error(), "error loading locale file"))
	})
}

func TestSetLanguage(t *testing.T) {
	trans, err := NewTranslations("en", "")
	require.NoError(t, err)

	t.Run("Should change to a bundled language", func(t *testing.T) {
		require.NoError(t, trans.SetLanguage("es"))
		assert.Equal(t, "Sesión cerrada", trans.GetMessage("logout_success", 0, nil))
	})

	t.Run("Should fail with unsupported language", func(t *testing.T) {
		assert.Error(t, trans.SetLanguage("fr"))
	})
}

func TestGetMessage(t *testing.T) {
	trans, err := NewTranslations("en", "")
	require.NoError(t, err)

	t.Run("Should pick the plural form", func(t *testing.T) {
		assert.Equal(t, "1 orphaned tag deleted", trans.GetMessage("tags_pruned", 1, map[string]interface{}{"Count": 1}))
		assert.Equal(t, "3 orphaned tags deleted", trans.GetMessage("tags_pruned", 3, map[string]interface{}{"Count": 3}))
	})

	t.Run("Should handle missing messages", func(t *testing.T) {
		assert.Equal(t, "Translation missing: NonExistent", trans.GetMessage("NonExistent", 1, nil))
	})
}

func TestCataloguesHaveTheSameKeys(t *testing.T) {
	en := readKeys(t, "locales/active.en.toml")
	es := readKeys(t, "locales/active.es.toml")
	assert.ElementsMatch(t, en, es)
}

func readKeys(t *testing.T, path string) []string {
	t.Helper()
	data, err := builtin.ReadFile(path)
	require.NoError(t, err)

	var keys []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			keys = append(keys, strings.Trim(line, "[]"))
		}
	}
	return keys
}

func createTestFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}
