package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const finalAnswerPrompt = "You have used all available tool iterations. " +
	"Using the information gathered so far, give your complete final answer now."

// StepEvent reports progress inside one agent's execution.
type StepEvent struct {
	Agent     string
	Iteration int
	// Tool is set for a tool execution step, empty for a model turn.
	Tool   string
	Text   string
	Tokens int
}

// StepCallback receives every model turn and tool execution.
type StepCallback func(StepEvent)

// ToolLoop drives a conversation until the model answers in text or the
// iteration budget runs out, at which point a final answer is requested
// with tools disabled.
type ToolLoop struct {
	MaxIter int
	OnStep  StepCallback
	logger  *slog.Logger
}

func NewToolLoop(maxIter int, onStep StepCallback) *ToolLoop {
	if maxIter <= 0 {
		maxIter = 1
	}
	return &ToolLoop{
		MaxIter: maxIter,
		OnStep:  onStep,
		logger:  slog.Default().With("component", "tool_loop"),
	}
}

func (l *ToolLoop) step(ev StepEvent) {
	if l.OnStep != nil {
		l.OnStep(ev)
	}
}

// Run returns the model's final text answer.
func (l *ToolLoop) Run(ctx context.Context, agentName string, conv Conversation, tools Tools) (string, error) {
	for iter := 1; iter <= l.MaxIter; iter++ {
		turn, err := conv.Next(ctx, true)
		if err != nil {
			return "", fmt.Errorf("iteration %d: %w", iter, err)
		}
		l.step(StepEvent{Agent: agentName, Iteration: iter, Text: turn.Text, Tokens: turn.Tokens})

		if len(turn.ToolCalls) == 0 {
			if strings.TrimSpace(turn.Text) != "" {
				return turn.Text, nil
			}
			l.logger.Warn("empty answer without tool calls", "agent", agentName, "iteration", iter)
			conv.AddUserMessage("Your last response was empty. Continue the task.")
			continue
		}

		outputs := make([]ToolOutput, 0, len(turn.ToolCalls))
		for _, call := range turn.ToolCalls {
			content, err := l.callTool(ctx, tools, call)
			if err != nil {
				return "", err
			}
			l.step(StepEvent{Agent: agentName, Iteration: iter, Tool: call.Name, Text: content})
			outputs = append(outputs, ToolOutput{Call: call, Content: content})
		}
		conv.AddToolOutputs(outputs)
	}

	l.logger.Info("iteration budget exhausted, forcing final answer", "agent", agentName, "max_iter", l.MaxIter)
	conv.AddUserMessage(finalAnswerPrompt)
	turn, err := conv.Next(ctx, false)
	if err != nil {
		return "", fmt.Errorf("final answer: %w", err)
	}
	l.step(StepEvent{Agent: agentName, Iteration: l.MaxIter + 1, Text: turn.Text, Tokens: turn.Tokens})
	if strings.TrimSpace(turn.Text) == "" {
		return "", fmt.Errorf("agent %s returned an empty final answer", agentName)
	}
	return turn.Text, nil
}

// callTool runs one call. Unknown tools and tool failures become text for
// the model; only cancellation aborts the loop.
func (l *ToolLoop) callTool(ctx context.Context, tools Tools, call ToolCall) (string, error) {
	tool, ok := tools[call.Name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", call.Name), nil
	}
	l.logger.Info("🔧 tool executing", "tool", tool.Title())
	out, err := tool.Call(ctx, call.Args)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return fmt.Sprintf("Error: %v", err), nil
	}
	return out, nil
}
