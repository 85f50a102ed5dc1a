package text

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/DaanHessen/storyloom/internal/engine"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type OpenAIOptions struct {
	BaseURL           string
	Model             string
	License           string
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// OpenAIGenerator talks to any OpenAI compatible chat endpoint. The license
// is the API key.
type OpenAIGenerator struct {
	opts    OpenAIOptions
	prompts *Prompter
	limiter *rate.Limiter
	log     *zap.Logger

	mu      sync.RWMutex
	client  *openai.Client
	license string
	model   string
}

func NewOpenAI(opts OpenAIOptions, prompts *Prompter, log *zap.Logger) *OpenAIGenerator {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	g := &OpenAIGenerator{
		opts:    opts,
		prompts: prompts,
		limiter: newLimiter(opts.RequestsPerMinute),
		log:     log.With(zap.String("backend", "openai")),
		model:   opts.Model,
	}
	g.Configure(opts.License, opts.Model)
	return g
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

func (g *OpenAIGenerator) Name() string          { return "openai" }
func (g *OpenAIGenerator) RequiresLicense() bool { return true }

// Configure swaps the API key and model. An empty model keeps the current one.
func (g *OpenAIGenerator) Configure(license, model string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if model != "" {
		g.model = model
	}
	if license == g.license && g.client != nil {
		return
	}
	g.license = license
	cfg := openai.DefaultConfig(license)
	if g.opts.BaseURL != "" {
		cfg.BaseURL = g.opts.BaseURL
	}
	cfg.HTTPClient = g.opts.HTTPClient
	g.client = openai.NewClientWithConfig(cfg)
}

func (g *OpenAIGenerator) GenerateSegment(ctx context.Context, st engine.Story, from engine.Stage) (engine.Segment, error) {
	return generateSegment(ctx, g.prompts, g.complete, st, from)
}

func (g *OpenAIGenerator) ContinueGeneration(ctx context.Context, st engine.Story, reason engine.RepairReason) (engine.Segment, error) {
	return continueGeneration(ctx, g.prompts, g.complete, st, reason)
}

func (g *OpenAIGenerator) complete(ctx context.Context, kind, system, user string) (string, error) {
	g.mu.RLock()
	client, license, model := g.client, g.license, g.model
	g.mu.RUnlock()
	if license == "" {
		return "", ErrNoLicense
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if g.prompts.budget != nil {
		promptTokens.WithLabelValues(g.Name()).Observe(float64(g.prompts.budget.Count(system + user)))
	}

	log := g.log.With(zap.String("kind", kind), zap.String("model", model))
	start := time.Now()
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.9,
	})
	elapsed := time.Since(start)
	generationDuration.WithLabelValues(g.Name(), kind).Observe(elapsed.Seconds())

	if err != nil {
		generationRequests.WithLabelValues(g.Name(), kind, "error").Inc()
		log.Error("chat completion failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		generationRequests.WithLabelValues(g.Name(), kind, "empty").Inc()
		return "", fmt.Errorf("%w: no completion returned", ErrGenerationFailed)
	}
	generationRequests.WithLabelValues(g.Name(), kind, "ok").Inc()
	log.Debug("chat completion",
		zap.Duration("elapsed", elapsed),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
	)
	return resp.Choices[0].Message.Content, nil
}
