// Package ai wraps the chat-completion providers behind one interface.
package ai

import (
	"context"
	"fmt"
	"strings"
)

// Turn is one prior exchange in the conversation.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Prompt is a provider-neutral generation request.
type Prompt struct {
	System  string
	History []Turn
	User    string
}

// ChatGenerator produces one assistant reply for a prompt.
// Implementations: OpenAICompatGenerator, OllamaGenerator, GeminiGenerator, EchoGenerator.
type ChatGenerator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// Provider config for NewGenerator.
type ProviderConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

// NewGenerator picks a provider by name. An empty provider yields the echo
// generator, which needs no network.
func NewGenerator(cfg ProviderConfig) (ChatGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "echo":
		return EchoGenerator{}, nil
	case "openai", "openai-compat":
		return NewOpenAICompatGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case "ollama":
		return NewOllamaGenerator(cfg.BaseURL, cfg.Model)
	case "gemini":
		return NewGeminiGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

// EchoGenerator answers without a model. Useful for local runs and tests.
type EchoGenerator struct{}

func (EchoGenerator) Generate(_ context.Context, prompt Prompt) (string, error) {
	user := strings.TrimSpace(prompt.User)
	if user == "" {
		return "", fmt.Errorf("empty prompt")
	}
	if first, _, _ := strings.Cut(strings.TrimSpace(prompt.System), "\n"); first != "" {
		return fmt.Sprintf("%s\n\nYou asked: %s", first, user), nil
	}
	return "You asked: " + user, nil
}

func normalizeRole(role string) string {
	if strings.EqualFold(strings.TrimSpace(role), "assistant") {
		return "assistant"
	}
	return "user"
}
