package util

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Backend)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
	assert.Empty(t, cfg.Fallback, "fallback backend is opt-in")
	assert.Equal(t, 10, cfg.ChapterCap)
	assert.Equal(t, 5, cfg.HealMaxAttempts)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, "storyloom.log", filepath.Base(cfg.LogFile))
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STORYLOOM_BACKEND", "ollama")
	t.Setenv("STORYLOOM_CHAPTER_CAP", "3")
	t.Setenv("STORYLOOM_EXPORT_DIR", "/tmp/out")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Backend)
	assert.Equal(t, 3, cfg.ChapterCap)
	assert.Equal(t, "/tmp/out", cfg.ExportDir)
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORYLOOM_BACKEND", "carrier-pigeon")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	log, err := NewLogger("debug", path)
	require.NoError(t, err)
	log.Info("hello")
	require.NoError(t, log.Sync())
	assert.FileExists(t, path)

	_, err = NewLogger("loud", path)
	assert.Error(t, err)
}
