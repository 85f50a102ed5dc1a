package text

import (
	"context"
	"net/http"
	"testing"

	"github.com/DaanHessen/storyloom/internal/engine"
	"github.com/DaanHessen/storyloom/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultBackendSurfacesServiceFailure(t *testing.T) {
	srv := chatServer(t, http.StatusServiceUnavailable, "", nil)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STORYLOOM_BASE_URL", srv.URL)
	cfg, err := util.LoadConfig()
	require.NoError(t, err)

	backend, err := New(cfg, "some-license", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "openai", backend.Name())

	seg, err := backend.GenerateSegment(context.Background(), testStory(), engine.StageRequested)
	require.ErrorIs(t, err, ErrGenerationFailed)
	assert.Empty(t, seg.Text)
	assert.Empty(t, seg.Choices)

	_, err = backend.ContinueGeneration(context.Background(), testStory(), engine.ReasonNeedFinish)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestConfiguredFallbackIsOptIn(t *testing.T) {
	srv := chatServer(t, http.StatusServiceUnavailable, "", nil)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STORYLOOM_BASE_URL", srv.URL)
	t.Setenv("STORYLOOM_FALLBACK_BACKEND", "template")
	cfg, err := util.LoadConfig()
	require.NoError(t, err)

	backend, err := New(cfg, "some-license", zap.NewNop())
	require.NoError(t, err)
	seg, err := backend.GenerateSegment(context.Background(), testStory(), engine.StageRequested)
	require.NoError(t, err)
	assert.NotEmpty(t, seg.Text)
}

func TestContinueGenerationRejectsUnknownReason(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"text":"More."}`, nil)
	g := newTestOpenAI(srv.URL, "key")
	_, err := g.ContinueGeneration(context.Background(), testStory(), engine.RepairReason("need_vibes"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown repair reason")
}
