package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/rohankatakam/reqtaker/internal/agent"
	"github.com/rohankatakam/reqtaker/internal/config"
	"github.com/rohankatakam/reqtaker/internal/llm"
	"github.com/rohankatakam/reqtaker/internal/storage"
)

// Deps are the pieces the CLI constructs itself.
type Deps struct {
	Processor agent.Processor
	Store     storage.Store
	OnStep    agent.StepCallback
	OnTask    TaskCallback
}

// Built is a wired crew plus the clients behind it.
type Built struct {
	Crew    *Crew
	LLM     *llm.Client
	Limiter llm.RateLimiter
	Drive   *agent.DriveTool
}

// Build wires definitions, the LLM client, the tool-calling backend, the
// drive tool and trained suggestions into a crew according to cfg.
func Build(ctx context.Context, cfg *config.Config, deps Deps) (*Built, error) {
	defs, err := agent.LoadDefinitions(cfg.Pipeline.AgentsFile, cfg.Pipeline.TasksFile)
	if err != nil {
		return nil, fmt.Errorf("load crew definitions: %w", err)
	}

	b := &Built{Limiter: llm.NewLimiter(cfg)}
	client, err := llm.NewClient(ctx, cfg, b.Limiter)
	if err != nil {
		b.Close()
		return nil, err
	}
	conversations, err := agent.NewConversationFactory(ctx, cfg, b.Limiter)
	if err != nil {
		b.Close()
		return nil, err
	}

	drive := agent.NewDriveTool(deps.Processor, cfg.Extraction.MaxToolChars)
	executor := agent.NewExecutor(client, conversations, agent.NewTools(drive), deps.OnStep)

	suggestions, err := TrainedSuggestions(cfg.Pipeline.TrainedAgentsFile)
	if err != nil {
		b.Close()
		return nil, err
	}

	b.Crew = NewCrew(defs, executor, client, deps.Store, Options{
		Planning:    cfg.Pipeline.Planning,
		Memory:      cfg.Pipeline.Memory,
		OutputPath:  cfg.OutputPath,
		Suggestions: suggestions,
		OnTask:      deps.OnTask,
	})
	b.LLM = client
	b.Drive = drive
	return b, nil
}

// Close releases the rate limiter's connection when it holds one.
func (b *Built) Close() error {
	if c, ok := b.Limiter.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
