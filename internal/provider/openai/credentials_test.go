package openai

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAPIKey_FileTakesPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openai_key")
	require.NoError(t, os.WriteFile(path, []byte("sk-from-file\n"), 0600))

	assert.Equal(t, "sk-from-file", LoadAPIKey(path, "sk-from-env"))
}

func TestLoadAPIKey_MissingFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist")
	assert.Equal(t, "sk-from-env", LoadAPIKey(path, "sk-from-env"))
}

func TestLoadAPIKey_Placeholders(t *testing.T) {
	assert.Equal(t, "", LoadAPIKey("", "placeholder-openai-key"))
	assert.Equal(t, "", LoadAPIKey("", "placeholder-openai-key-add-real-key-here"))
	assert.Equal(t, "", LoadAPIKey("", "   "))
}
