package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIExplainer calls the OpenAI chat completions API (or any server that
// speaks it, via baseURL).
type OpenAIExplainer struct {
	client *openai.Client
	params Params
}

// NewOpenAIExplainer creates an OpenAI backed explainer
func NewOpenAIExplainer(apiKey, baseURL string, params Params) *OpenAIExplainer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIExplainer{
		client: openai.NewClientWithConfig(cfg),
		params: params.withDefaults(DefaultOpenAIModel),
	}
}

func (e *OpenAIExplainer) Name() string {
	return "openai:" + e.params.Model
}

// Explain sends the prompt as a single user message
func (e *OpenAIExplainer) Explain(ctx context.Context, prompt string) (string, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.params.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: e.params.Temperature,
		MaxTokens:   e.params.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
