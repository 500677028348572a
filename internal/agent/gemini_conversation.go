package agent

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/rohankatakam/reqtaker/internal/llm"
)

// GeminiConversations opens tool-calling conversations on the Gemini API.
type GeminiConversations struct {
	client      *genai.Client
	model       string
	temperature float32
	limiter     llm.RateLimiter
}

func NewGeminiConversations(ctx context.Context, apiKey, model string, temperature float32, limiter llm.RateLimiter) (*GeminiConversations, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiConversations{client: client, model: model, temperature: temperature, limiter: limiter}, nil
}

func (f *GeminiConversations) NewConversation(systemPrompt, userPrompt string, tools []Tool) Conversation {
	c := &geminiConversation{
		factory: f,
		history: []*genai.Content{genai.Text(userPrompt)[0]},
	}
	if systemPrompt != "" {
		c.system = genai.Text(systemPrompt)[0]
	}
	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  geminiSchema(t.Parameters()),
			})
		}
		c.tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return c
}

type geminiConversation struct {
	factory *GeminiConversations
	system  *genai.Content
	history []*genai.Content
	tools   []*genai.Tool
}

func (c *geminiConversation) Next(ctx context.Context, allowTools bool) (*Turn, error) {
	if err := c.factory.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: c.system,
		Temperature:       ptrFloat32(c.factory.temperature),
	}
	if allowTools {
		genConfig.Tools = c.tools
	}

	resp, err := c.factory.client.Models.GenerateContent(ctx, c.factory.model, c.history, genConfig)
	if err != nil {
		return nil, fmt.Errorf("Gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response from Gemini")
	}

	content := resp.Candidates[0].Content
	turn := &Turn{}
	if resp.UsageMetadata != nil {
		turn.Tokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	var text strings.Builder
	for _, part := range content.Parts {
		if part.FunctionCall != nil {
			turn.ToolCalls = append(turn.ToolCalls, ToolCall{
				ID:   part.FunctionCall.ID,
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
		text.WriteString(part.Text)
	}
	turn.Text = text.String()

	c.history = append(c.history, content)
	return turn, nil
}

func (c *geminiConversation) AddToolOutputs(outputs []ToolOutput) {
	if len(outputs) == 0 {
		return
	}
	parts := make([]*genai.Part, len(outputs))
	for i, o := range outputs {
		parts[i] = &genai.Part{
			FunctionResponse: &genai.FunctionResponse{
				ID:       o.Call.ID,
				Name:     o.Call.Name,
				Response: map[string]any{"result": o.Content},
			},
		}
	}
	c.history = append(c.history, &genai.Content{Role: "user", Parts: parts})
}

func (c *geminiConversation) AddUserMessage(text string) {
	c.history = append(c.history, genai.Text(text)[0])
}

// geminiSchema converts the JSON Schema subset tools use (type,
// description, properties, required, items) into a genai.Schema.
func geminiSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				s.Properties[name] = geminiSchema(pm)
			}
		}
	}
	switch req := m["required"].(type) {
	case []string:
		s.Required = req
	case []any:
		for _, r := range req {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = geminiSchema(items)
	}
	return s
}

func ptrFloat32(f float32) *float32 {
	return &f
}
