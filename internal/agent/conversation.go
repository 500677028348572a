package agent

import (
	"context"
	"fmt"

	"github.com/rohankatakam/reqtaker/internal/config"
	"github.com/rohankatakam/reqtaker/internal/llm"
)

// ToolCall is one function call requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Turn is one model response.
type Turn struct {
	Text      string
	ToolCalls []ToolCall
	Tokens    int
}

// ToolOutput answers one ToolCall.
type ToolOutput struct {
	Call    ToolCall
	Content string
}

// Conversation is a provider-specific multi-turn exchange with function
// calling. It keeps its own history.
type Conversation interface {
	// Next asks the model for its next turn; with allowTools false the
	// model must answer in text.
	Next(ctx context.Context, allowTools bool) (*Turn, error)
	AddToolOutputs(outputs []ToolOutput)
	AddUserMessage(text string)
}

// ConversationFactory opens conversations against one model.
type ConversationFactory interface {
	NewConversation(systemPrompt, userPrompt string, tools []Tool) Conversation
}

// NewConversationFactory returns the tool-calling backend for the configured
// provider.
func NewConversationFactory(ctx context.Context, cfg *config.Config, limiter llm.RateLimiter) (ConversationFactory, error) {
	provider := cfg.LLM.Provider
	if provider == "" {
		provider = config.ProviderForModel(cfg.LLM.Model)
	}
	key := cfg.APIKeyFor(provider)
	if key == "" {
		return nil, fmt.Errorf("no API key configured for provider %s", provider)
	}
	if limiter == nil {
		limiter = llm.Unlimited()
	}

	switch llm.Provider(provider) {
	case llm.ProviderOpenAI:
		return NewOpenAIConversations(key, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Temperature, limiter), nil
	case llm.ProviderGemini:
		return NewGeminiConversations(ctx, key, cfg.LLM.Model, cfg.LLM.Temperature, limiter)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}
