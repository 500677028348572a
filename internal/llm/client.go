package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/rohankatakam/reqtaker/internal/config"
	rterrors "github.com/rohankatakam/reqtaker/internal/errors"
)

// Provider represents the LLM provider
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// ProviderForModel infers the provider from a model name ("gemini-*" is Gemini).
func ProviderForModel(model string) Provider {
	return Provider(config.ProviderForModel(model))
}

// Options configure a single-model client.
type Options struct {
	Provider    Provider
	Model       string
	APIKey      string
	BaseURL     string // OpenAI-compatible endpoint or Gemini API base
	Temperature float32
	MaxTokens   int
	Limiter     RateLimiter
}

// Client completes prompts against one model of one provider. Every call
// waits on the rate limiter first.
type Client struct {
	provider    Provider
	model       string
	temperature float32
	maxTokens   int
	openai      *openai.Client
	gemini      *genai.Client
	limiter     RateLimiter
	logger      *slog.Logger
}

// New creates a client from explicit options.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Model == "" {
		return nil, rterrors.ConfigError("llm model is required")
	}
	if opts.Provider == "" {
		opts.Provider = ProviderForModel(opts.Model)
	}
	if opts.APIKey == "" {
		return nil, rterrors.ConfigErrorf("no API key configured for provider %s", opts.Provider)
	}
	if opts.Limiter == nil {
		opts.Limiter = Unlimited()
	}

	c := &Client{
		provider:    opts.Provider,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		limiter:     opts.Limiter,
		logger:      slog.Default().With("component", "llm", "provider", string(opts.Provider), "model", opts.Model),
	}

	switch opts.Provider {
	case ProviderOpenAI:
		oc := openai.DefaultConfig(opts.APIKey)
		if opts.BaseURL != "" {
			oc.BaseURL = opts.BaseURL
		}
		c.openai = openai.NewClientWithConfig(oc)
	case ProviderGemini:
		gc := &genai.ClientConfig{APIKey: opts.APIKey, Backend: genai.BackendGeminiAPI}
		if opts.BaseURL != "" {
			gc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
		}
		client, err := genai.NewClient(ctx, gc)
		if err != nil {
			return nil, rterrors.ExternalError(err, "failed to create gemini client")
		}
		c.gemini = client
	default:
		return nil, rterrors.ConfigErrorf("unknown llm provider %q (expected openai or gemini)", opts.Provider)
	}

	c.logger.Debug("llm client initialized")
	return c, nil
}

// NewClient creates a client for the configured model.
func NewClient(ctx context.Context, cfg *config.Config, limiter RateLimiter) (*Client, error) {
	return NewClientForModel(ctx, cfg, cfg.LLM.Model, limiter)
}

// NewClientForModel creates a client for model, inferring the provider from
// its name. Used for evaluator and planning models that differ from the
// main one.
func NewClientForModel(ctx context.Context, cfg *config.Config, model string, limiter RateLimiter) (*Client, error) {
	provider := ProviderForModel(model)
	if model == cfg.LLM.Model && cfg.LLM.Provider != "" {
		provider = Provider(cfg.LLM.Provider)
	}
	opts := Options{
		Provider:    provider,
		Model:       model,
		APIKey:      cfg.APIKeyFor(string(provider)),
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Limiter:     limiter,
	}
	if provider == ProviderOpenAI {
		opts.BaseURL = cfg.LLM.BaseURL
	}
	return New(ctx, opts)
}

func (c *Client) Model() string { return c.model }

func (c *Client) Provider() Provider { return c.provider }

// Complete sends a system and user prompt and returns the text response.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, false)
}

// CompleteJSON is Complete with the provider's JSON response mode enabled.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, true)
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	switch c.provider {
	case ProviderGemini:
		return c.completeGemini(ctx, systemPrompt, userPrompt, jsonMode)
	default:
		return c.completeOpenAI(ctx, systemPrompt, userPrompt, jsonMode)
	}
}

func (c *Client) completeOpenAI(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	var messages []openai.ChatCompletionMessage
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userPrompt})

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.openai.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", rterrors.ExternalError(err, "openai completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", rterrors.New(rterrors.ErrorTypeExternal, rterrors.SeverityMedium, "openai returned no choices")
	}

	response := resp.Choices[0].Message.Content
	c.logger.Debug("openai completion",
		"prompt_length", len(userPrompt),
		"response_length", len(response),
		"tokens_used", resp.Usage.TotalTokens,
		"json", jsonMode,
	)
	return response, nil
}

func (c *Client) completeGemini(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	genConfig := &genai.GenerateContentConfig{
		Temperature: ptrFloat32(c.temperature),
	}
	if systemPrompt != "" {
		genConfig.SystemInstruction = genai.Text(systemPrompt)[0]
	}
	if c.maxTokens > 0 {
		genConfig.MaxOutputTokens = int32(c.maxTokens)
	}
	if jsonMode {
		genConfig.ResponseMIMEType = "application/json"
	}

	resp, err := c.gemini.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), genConfig)
	if err != nil {
		return "", rterrors.ExternalError(err, "gemini completion failed")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", rterrors.New(rterrors.ErrorTypeExternal, rterrors.SeverityMedium, "gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := sb.String()
	if text == "" {
		return "", fmt.Errorf("gemini returned no content parts")
	}

	c.logger.Debug("gemini completion",
		"prompt_length", len(userPrompt),
		"response_length", len(text),
		"json", jsonMode,
	)
	return text, nil
}

func ptrFloat32(f float32) *float32 {
	return &f
}
