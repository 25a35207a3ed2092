package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAICompatGenerator talks to any OpenAI-compatible /chat/completions API
// (OpenAI, vLLM, LiteLLM, OpenRouter, ...).
type OpenAICompatGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAICompatGenerator builds the generator. baseURL includes the /v1
// prefix; empty means api.openai.com. apiKey may be empty for local models.
func NewOpenAICompatGenerator(baseURL, apiKey, model string) (*OpenAICompatGenerator, error) {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAICompatGenerator{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: 2048,
	}, nil
}

func (g *OpenAICompatGenerator) Generate(ctx context.Context, prompt Prompt) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(prompt.History)+2)
	if strings.TrimSpace(prompt.System) != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: prompt.System})
	}
	for _, turn := range prompt.History {
		role := openai.ChatMessageRoleUser
		if normalizeRole(turn.Role) == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt.User})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     g.model,
		Messages:  messages,
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai-compat api error: %s", apiErr.Message)
		}
		return "", fmt.Errorf("openai-compat request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from openai-compat api")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty response from openai-compat api")
	}
	return text, nil
}
