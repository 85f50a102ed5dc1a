package text

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/DaanHessen/storyloom/internal/engine"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OllamaGenerator uses a local Ollama server. It needs no license.
type OllamaGenerator struct {
	client  *api.Client
	prompts *Prompter
	limiter *rate.Limiter
	log     *zap.Logger

	mu    sync.RWMutex
	model string
}

func NewOllama(base *url.URL, httpClient *http.Client, model string, perMinute int, prompts *Prompter, log *zap.Logger) *OllamaGenerator {
	return &OllamaGenerator{
		client:  api.NewClient(base, httpClient),
		prompts: prompts,
		limiter: newLimiter(perMinute),
		log:     log.With(zap.String("backend", "ollama")),
		model:   model,
	}
}

func (g *OllamaGenerator) Name() string          { return "ollama" }
func (g *OllamaGenerator) RequiresLicense() bool { return false }

func (g *OllamaGenerator) Configure(_, model string) {
	if model == "" {
		return
	}
	g.mu.Lock()
	g.model = model
	g.mu.Unlock()
}

func (g *OllamaGenerator) GenerateSegment(ctx context.Context, st engine.Story, from engine.Stage) (engine.Segment, error) {
	return generateSegment(ctx, g.prompts, g.complete, st, from)
}

func (g *OllamaGenerator) ContinueGeneration(ctx context.Context, st engine.Story, reason engine.RepairReason) (engine.Segment, error) {
	return continueGeneration(ctx, g.prompts, g.complete, st, reason)
}

func (g *OllamaGenerator) complete(ctx context.Context, kind, system, user string) (string, error) {
	g.mu.RLock()
	model := g.model
	g.mu.RUnlock()
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	stream := false
	req := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature": 0.9,
		},
	}

	log := g.log.With(zap.String("kind", kind), zap.String("model", model))
	start := time.Now()
	var resp api.ChatResponse
	err := g.client.Chat(ctx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	elapsed := time.Since(start)
	generationDuration.WithLabelValues(g.Name(), kind).Observe(elapsed.Seconds())

	if err != nil {
		generationRequests.WithLabelValues(g.Name(), kind, "error").Inc()
		log.Error("ollama chat failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	generationRequests.WithLabelValues(g.Name(), kind, "ok").Inc()
	log.Debug("ollama chat",
		zap.Duration("elapsed", elapsed),
		zap.Int("prompt_tokens", resp.PromptEvalCount),
		zap.Int("completion_tokens", resp.EvalCount),
	)
	return resp.Message.Content, nil
}
