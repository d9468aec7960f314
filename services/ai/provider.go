// Package aisvc provides the LLM providers behind core.AIService.
package aisvc

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core"
)

type Provider string

const (
	ProviderClaude Provider = "anthropic"
	ProviderGemini Provider = "gemini"
	ProviderFake   Provider = "fake"
)

const (
	defaultClaudeModel    = "claude-sonnet-4-5"
	defaultGeminiModel    = "gemini-2.5-flash"
	defaultEmbeddingModel = "gemini-embedding-001"
	defaultMaxTokens      = 8192
)

var providerPrefixes = []string{"claude/", "anthropic/", "gemini/", "google/"}

// DetectProvider guesses the provider of a model name; fallback is returned for unknown names.
func DetectProvider(model string, fallback Provider) Provider {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "claude/"), strings.HasPrefix(m, "anthropic/"), strings.HasPrefix(m, "claude-"):
		return ProviderClaude
	case strings.HasPrefix(m, "gemini/"), strings.HasPrefix(m, "google/"), strings.HasPrefix(m, "gemini-"):
		return ProviderGemini
	}
	return fallback
}

// NormalizeModel strips the provider prefix of a model name.
func NormalizeModel(model string) string {
	model = strings.TrimSpace(model)
	for _, prefix := range providerPrefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// Router dispatches each completion to the provider owning the requested model.
type Router struct {
	fallback  Provider
	providers map[Provider]core.AIService
	embedder  core.Embedder
}

var _ core.AIService = (*Router)(nil)

// NewRouter configures every provider with an API key. It returns nil when none is available.
func NewRouter(ctx context.Context, conf *core.Config, logger core.Logger) (*Router, error) {
	r := &Router{
		fallback:  Provider(conf.AI.Provider),
		providers: make(map[Provider]core.AIService),
	}
	if r.fallback == ProviderFake {
		r.providers[ProviderFake] = Fake()
		return r, nil
	}

	if conf.AI.AnthropicAPIKey != "" {
		r.providers[ProviderClaude] = NewClaudeService(conf)
	}
	if conf.AI.GeminiAPIKey != "" {
		gemini, err := NewGeminiService(ctx, conf)
		if err != nil {
			return nil, err
		}
		r.providers[ProviderGemini] = gemini
		r.embedder = gemini
	}

	if len(r.providers) == 0 {
		logger.Warn("no AI provider is configured: AI features are disabled")
		return nil, nil
	}
	if _, ok := r.providers[r.fallback]; !ok {
		for p := range r.providers {
			logger.Warn("AI provider " + string(r.fallback) + " is not configured, falling back to " + string(p))
			r.fallback = p
			break
		}
	}
	return r, nil
}

// Embedder returns the provider used for semantic search, if any.
func (r *Router) Embedder() core.Embedder {
	if r == nil || r.embedder == nil {
		return nil
	}
	return r.embedder
}

func (r *Router) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	p := r.fallback
	if p != ProviderFake {
		p = DetectProvider(req.Model, r.fallback)
	}
	svc, ok := r.providers[p]
	if !ok {
		return "", errors.Errorf("model %q is not available", req.Model)
	}
	return svc.Complete(ctx, req)
}
