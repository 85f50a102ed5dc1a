package text

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/DaanHessen/storyloom/internal/engine"
	"github.com/DaanHessen/storyloom/internal/util"
	"go.uber.org/zap"
)

var (
	ErrGenerationFailed = errors.New("generation failed")
	ErrNoLicense        = errors.New("no license configured")
)

// Backend is a Generator whose license and model can change while the
// program runs.
type Backend interface {
	engine.Generator
	Name() string
	RequiresLicense() bool
	Configure(license, model string)
}

// New builds the configured backend, wrapped with the configured fallback.
func New(cfg util.Config, license string, log *zap.Logger) (Backend, error) {
	prompts := NewPrompter(NewBudget(cfg.Model, cfg.ContextTokens), cfg.ChapterCap)
	primary, err := newBackend(cfg.Backend, cfg, license, prompts, log)
	if err != nil {
		return nil, err
	}
	if cfg.Fallback == "" || cfg.Fallback == cfg.Backend {
		return primary, nil
	}
	fallback, err := newBackend(cfg.Fallback, cfg, license, prompts, log)
	if err != nil {
		log.Warn("fallback backend unavailable", zap.String("backend", cfg.Fallback), zap.Error(err))
		return primary, nil
	}
	return WithFallback(primary, fallback, log), nil
}

func newBackend(name string, cfg util.Config, license string, prompts *Prompter, log *zap.Logger) (Backend, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	switch name {
	case "openai":
		return NewOpenAI(OpenAIOptions{
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			License:           license,
			RequestsPerMinute: cfg.RequestsPerMinute,
			HTTPClient:        httpClient,
		}, prompts, log), nil
	case "ollama":
		base := strings.TrimSuffix(strings.TrimSuffix(cfg.OllamaURL, "/"), "/v1")
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse ollama url %q: %w", cfg.OllamaURL, err)
		}
		return NewOllama(u, httpClient, cfg.Model, cfg.RequestsPerMinute, prompts, log), nil
	case "template":
		return NewTemplate(), nil
	}
	return nil, fmt.Errorf("unknown backend %q", name)
}
