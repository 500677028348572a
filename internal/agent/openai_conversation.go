package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/rohankatakam/reqtaker/internal/llm"
)

// OpenAIConversations opens tool-calling conversations on the Chat
// Completions API.
type OpenAIConversations struct {
	client      openai.Client
	model       string
	temperature float32
	limiter     llm.RateLimiter
}

func NewOpenAIConversations(apiKey, baseURL, model string, temperature float32, limiter llm.RateLimiter) *OpenAIConversations {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIConversations{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temperature,
		limiter:     limiter,
	}
}

func (f *OpenAIConversations) NewConversation(systemPrompt, userPrompt string, tools []Tool) Conversation {
	c := &openAIConversation{factory: f}
	if systemPrompt != "" {
		c.messages = append(c.messages, openai.SystemMessage(systemPrompt))
	}
	c.messages = append(c.messages, openai.UserMessage(userPrompt))
	for _, t := range tools {
		c.tools = append(c.tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters:  openai.FunctionParameters(t.Parameters()),
		}))
	}
	return c
}

type openAIConversation struct {
	factory  *OpenAIConversations
	messages []openai.ChatCompletionMessageParamUnion
	tools    []openai.ChatCompletionToolUnionParam
}

func (c *openAIConversation) Next(ctx context.Context, allowTools bool) (*Turn, error) {
	if err := c.factory.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.factory.model),
		Messages:    c.messages,
		Temperature: openai.Float(float64(c.factory.temperature)),
	}
	if allowTools && len(c.tools) > 0 {
		params.Tools = c.tools
	}

	completion, err := c.factory.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	msg := completion.Choices[0].Message
	turn := &Turn{Text: msg.Content, Tokens: int(completion.Usage.TotalTokens)}

	// The assistant message must precede the tool responses that answer it.
	c.messages = append(c.messages, msg.ToParam())

	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{"_raw": tc.Function.Arguments}
			}
		}
		turn.ToolCalls = append(turn.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	return turn, nil
}

func (c *openAIConversation) AddToolOutputs(outputs []ToolOutput) {
	for _, o := range outputs {
		c.messages = append(c.messages, openai.ToolMessage(o.Content, o.Call.ID))
	}
}

func (c *openAIConversation) AddUserMessage(text string) {
	c.messages = append(c.messages, openai.UserMessage(text))
}
