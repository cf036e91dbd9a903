package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig creates a minimal coursegen-service.toml in a temp
// directory for testing. No LLM API key is configured — the gateway client
// still constructs successfully since genai validates credentials lazily at
// call time, not at client construction.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "logs"), 0o755))

	config := `
[storage]
backend = "badger"

[storage.badger]
path = "` + filepath.Join(dir, "data") + `"

[logging]
level = "error"
file_path = "` + filepath.Join(dir, "logs", "coursegen.log") + `"
`
	configPath := filepath.Join(dir, "coursegen.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o644))
	return configPath
}

func TestNewAppInitializesAllServices(t *testing.T) {
	configPath := writeTestConfig(t)

	a, err := NewApp(configPath)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Config)
	assert.NotNil(t, a.Logger)
	assert.NotNil(t, a.Storage)
	assert.NotNil(t, a.VectorStore)
	assert.NotNil(t, a.DocParser)
	assert.NotNil(t, a.MarkdownLint)
	assert.NotNil(t, a.FSM)
	assert.NotNil(t, a.RAGBuilder)
	assert.NotNil(t, a.LessonGraph)
	assert.NotNil(t, a.Metrics)
	assert.NotNil(t, a.Queue)
	assert.False(t, a.StartupTime.IsZero())
}

func TestNewAppCloseIsIdempotent(t *testing.T) {
	configPath := writeTestConfig(t)

	a, err := NewApp(configPath)
	require.NoError(t, err)

	a.Close()
	a.Close()
}

func TestNewAppInvalidConfigReturnsError(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("{{{{invalid toml"), 0o644))

	_, err := NewApp(configPath)
	require.Error(t, err)
}
