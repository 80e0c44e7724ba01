// Package llm sends explanation prompts to a chat-completion model.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/pastpapers-ai/explainer-api/config"
)

var ErrEmptyCompletion = errors.New("model returned an empty completion")

const (
	DefaultTemperature    = 0.2
	DefaultMaxTokens      = 800
	EnhancedMaxTokens     = 1200
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultInferenceModel = "openai-gpt-4o-mini"
	DefaultInferenceHost  = "https://inference.do-ai.run"
	completionsPath       = "/v1/chat/completions"
)

// Explainer turns a tutor prompt into explanation markdown
type Explainer interface {
	Explain(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Params are the sampling settings shared by every provider
type Params struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

func (p Params) withDefaults(model string) Params {
	if p.Model == "" {
		p.Model = model
	}
	if p.Temperature == 0 {
		p.Temperature = DefaultTemperature
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	return p
}

// New builds the explainer selected by LLM_PROVIDER
func New(cfg *config.Config) (Explainer, error) {
	params := Params{MaxTokens: DefaultMaxTokens}
	if cfg.EXPLAIN_ENHANCED {
		params.MaxTokens = EnhancedMaxTokens
	}

	switch cfg.LLM_PROVIDER {
	case config.ProviderOpenAI:
		params.Model = cfg.OPENAI_MODEL
		return NewOpenAIExplainer(cfg.OPENAI_API_KEY, cfg.OPENAI_BASE_URL, params), nil
	case config.ProviderInference:
		params.Model = cfg.INFERENCE_MODEL
		client := NewInferenceClient(InferenceConfig{
			APIKey:  cfg.MODEL_ACCESS_KEY,
			BaseURL: cfg.INFERENCE_BASE_URL,
			Timeout: cfg.LLM_TIMEOUT,
			Model:   cfg.INFERENCE_MODEL,
		})
		return NewInferenceExplainer(client, params), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM_PROVIDER)
	}
}
