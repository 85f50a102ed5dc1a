package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DaanHessen/storyloom/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func exportStory() engine.Story {
	st := engine.NewStory("0b9c8a2e-5d0e-4a51-9a57-3c1f0e0d7b11", engine.Params{
		Title: "The Tower", Premise: "A keeper wakes alone.", Tone: engine.ToneMystery, AgeRating: engine.Age12,
	}, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	st.FullText = "First part."
	engine.ArchiveCurrentAsPage(&st, engine.PageLabel(1, engine.StagePause1), "Climb", st.CreatedAt)
	st.Stage = engine.StagePause2
	st.FullText = "Second part."
	st.PendingChoices = []string{"a", "b", "c"}
	st.PendingChoiceAt = 2
	st.ChoiceHistory = []int{0}
	return st
}

func TestExportMarkdown(t *testing.T) {
	b, err := Export(exportStory(), FormatMarkdown)
	require.NoError(t, err)
	md := string(b)
	assert.Contains(t, md, "# The Tower")
	assert.Contains(t, md, "## Chapter 1 · Pause 1\n\nFirst part.")
	assert.Contains(t, md, "*Chosen: Climb*")
	assert.Contains(t, md, "## Chapter 1 · Current page\n\nSecond part.")
	assert.Contains(t, md, "3. c")
}

func TestExportYAML(t *testing.T) {
	b, err := Export(exportStory(), FormatYAML)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(b, &doc))
	assert.Equal(t, "The Tower", doc["title"])
	assert.Equal(t, 90, doc["stage"])
	assert.Len(t, doc["pages"], 1)
}

func TestExportUnknownFormat(t *testing.T) {
	_, err := Export(exportStory(), "pdf")
	assert.Error(t, err)
}

func TestWriteExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	st := exportStory()
	path, err := WriteExport(dir, st, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "story_"+st.ID+".yaml"), path)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
