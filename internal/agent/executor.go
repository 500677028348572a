package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Completer is a plain system+user prompt completion. *llm.Client
// implements it.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Request is one agent working on one task.
type Request struct {
	Agent       AgentSpec
	Task        TaskSpec
	Context     []TaskContext
	Plan        string
	Suggestions []string
	Memories    []string
}

// ErrExecutionTimeout is returned when an agent exceeds its max execution time.
var ErrExecutionTimeout = errors.New("agent exceeded max execution time")

// Executor runs agents. Agents with tools go through a ToolLoop on a
// Conversation; agents without tools use the Completer and are retried up
// to max_iter times on error or empty output.
type Executor struct {
	completer     Completer
	conversations ConversationFactory
	tools         Tools
	onStep        StepCallback
	logger        *slog.Logger
}

func NewExecutor(completer Completer, conversations ConversationFactory, tools Tools, onStep StepCallback) *Executor {
	return &Executor{
		completer:     completer,
		conversations: conversations,
		tools:         tools,
		onStep:        onStep,
		logger:        slog.Default().With("component", "executor"),
	}
}

// Execute returns the agent's final answer for the task.
func (e *Executor) Execute(ctx context.Context, req Request) (string, error) {
	if req.Agent.MaxExecutionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Agent.MaxExecutionTime)
		defer cancel()
	}

	system := SystemPrompt(req.Agent, req.Suggestions, req.Memories)
	user := TaskPrompt(req.Task, req.Context, req.Plan)

	tools, err := e.tools.For(req.Agent)
	if err != nil {
		return "", err
	}

	start := time.Now()
	var out string
	if len(tools) > 0 {
		out, err = e.executeWithTools(ctx, req, system, user, tools)
	} else {
		out, err = e.executePlain(ctx, req, system, user)
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && req.Agent.MaxExecutionTime > 0 {
			return "", fmt.Errorf("%w: %s after %s", ErrExecutionTimeout, req.Agent.Name, req.Agent.MaxExecutionTime)
		}
		return "", err
	}

	e.logger.Info("agent finished", "agent", req.Agent.Name, "task", req.Task.Name,
		"duration", time.Since(start).Round(time.Millisecond), "output_chars", len(out))
	return out, nil
}

func (e *Executor) executeWithTools(ctx context.Context, req Request, system, user string, tools []Tool) (string, error) {
	if e.conversations == nil {
		return "", fmt.Errorf("agent %s needs tools but no tool-calling backend is configured", req.Agent.Name)
	}
	conv := e.conversations.NewConversation(system, user, tools)
	loop := NewToolLoop(req.Agent.MaxIter, e.onStep)
	return loop.Run(ctx, req.Agent.Name, conv, NewTools(tools...))
}

func (e *Executor) executePlain(ctx context.Context, req Request, system, user string) (string, error) {
	attempts := req.Agent.MaxIter
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := e.completer.Complete(ctx, system, user)
		if e.onStep != nil {
			e.onStep(StepEvent{Agent: req.Agent.Name, Iteration: attempt, Text: out})
		}
		if err == nil && strings.TrimSpace(out) != "" {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if err == nil {
			err = fmt.Errorf("empty response")
		}
		lastErr = err
		e.logger.Warn("agent attempt failed", "agent", req.Agent.Name, "attempt", attempt, "max_iter", attempts, "error", err)
	}
	return "", fmt.Errorf("agent %s failed after %d attempt(s): %w", req.Agent.Name, attempts, lastErr)
}
