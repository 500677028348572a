// Package pipeline runs the crew: the three agent tasks in sequence, with
// optional planning, memory and trained guidance, persisting every task
// output so a run can be replayed from any task.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rohankatakam/reqtaker/internal/agent"
	"github.com/rohankatakam/reqtaker/internal/storage"
)

// Kickoff modes recorded with each run.
const (
	ModeRun    = "run"
	ModeTrain  = "train"
	ModeTest   = "test"
	ModeReplay = "replay"
)

const (
	memoryLimit     = 5
	memoryNoteChars = 1500
)

// Runner executes one agent on one task. *agent.Executor implements it.
type Runner interface {
	Execute(ctx context.Context, req agent.Request) (string, error)
}

// JSONCompleter answers with a JSON object. *llm.Client implements it.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// TaskEvent is passed to the task callback after every task finishes.
type TaskEvent struct {
	KickoffID  string
	TaskID     string
	Position   int
	Total      int
	Task       agent.TaskSpec
	Output     string
	OutputFile string
	Duration   time.Duration
}

// TaskCallback observes completed tasks.
type TaskCallback func(TaskEvent)

// Options toggles crew-level behavior.
type Options struct {
	Planning bool
	Memory   bool
	// OutputPath maps a task's output_file to where it is written.
	OutputPath func(name string) string
	// Suggestions are trained guidance per agent name.
	Suggestions map[string][]string
	OnTask      TaskCallback
}

// Crew runs the task list sequentially.
type Crew struct {
	defs   *agent.Definitions
	runner Runner
	llm    JSONCompleter
	store  storage.Store
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewCrew builds a crew. llm serves planning and training and may be nil
// when neither is used; store may be nil when nothing should be persisted.
func NewCrew(defs *agent.Definitions, runner Runner, llm JSONCompleter, store storage.Store, opts Options) *Crew {
	if opts.OutputPath == nil {
		opts.OutputPath = func(name string) string { return name }
	}
	return &Crew{
		defs:   defs,
		runner: runner,
		llm:    llm,
		store:  store,
		opts:   opts,
		logger: slog.Default().With("component", "crew"),
		now:    time.Now,
	}
}

// TaskResult is one finished task of a kickoff.
type TaskResult struct {
	TaskID     string
	Name       string
	Agent      string
	Output     string
	OutputFile string
	Duration   time.Duration
	// Reused is set for outputs carried over from an earlier kickoff by Replay.
	Reused bool
}

// Result is a finished kickoff.
type Result struct {
	KickoffID string
	Mode      string
	Inputs    map[string]string
	Tasks     []TaskResult
	Duration  time.Duration
}

// Final returns the output of the last task.
func (r *Result) Final() string {
	if len(r.Tasks) == 0 {
		return ""
	}
	return r.Tasks[len(r.Tasks)-1].Output
}

// OutputFiles lists the files written during the kickoff, in task order.
func (r *Result) OutputFiles() []string {
	var files []string
	for _, t := range r.Tasks {
		if t.OutputFile != "" && !t.Reused {
			files = append(files, t.OutputFile)
		}
	}
	return files
}

// Kickoff runs every task in order with inputs interpolated into the
// agent and task definitions.
func (c *Crew) Kickoff(ctx context.Context, inputs map[string]string) (*Result, error) {
	return c.run(ctx, ModeRun, inputs, 0, nil)
}

// run executes tasks[start:], seeding earlier outputs from prior.
func (c *Crew) run(ctx context.Context, mode string, inputs map[string]string, start int, prior []TaskResult) (*Result, error) {
	defs := c.defs.Interpolate(inputs)
	kickoffStart := c.now()
	res := &Result{KickoffID: uuid.NewString(), Mode: mode, Inputs: inputs}

	if c.store != nil {
		err := c.store.CreateKickoff(ctx, &storage.Kickoff{
			ID:        res.KickoffID,
			Mode:      mode,
			Inputs:    storage.EncodeInputs(inputs),
			StartedAt: kickoffStart.UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("record kickoff: %w", err)
		}
	}
	c.logger.Info("crew kickoff", "kickoff_id", res.KickoffID, "mode", mode, "tasks", len(defs.Tasks), "start", start)

	outputs := map[string]string{}
	for i, t := range prior {
		if i >= start {
			break
		}
		t.Reused = true
		t.TaskID = uuid.NewString()
		res.Tasks = append(res.Tasks, t)
		outputs[t.Name] = t.Output
		if err := c.persist(ctx, res.KickoffID, i, defs.Tasks[i], t, kickoffStart); err != nil {
			return nil, c.fail(ctx, res.KickoffID, err)
		}
	}

	var plans map[string]string
	if c.opts.Planning && c.llm != nil {
		plans = c.plan(ctx, defs.Tasks[start:])
	}

	for i := start; i < len(defs.Tasks); i++ {
		task := defs.Tasks[i]
		spec := defs.Agents[task.Agent]

		req := agent.Request{
			Agent:       spec,
			Task:        task,
			Plan:        plans[task.Name],
			Suggestions: c.opts.Suggestions[spec.Name],
			Memories:    c.memories(ctx, spec.Name),
		}
		for _, name := range task.Context {
			req.Context = append(req.Context, agent.TaskContext{TaskName: name, Output: outputs[name]})
		}

		c.logger.Info("task started", "task", task.Name, "agent", spec.Name, "position", i+1, "total", len(defs.Tasks))
		taskStart := c.now()
		out, err := c.runner.Execute(ctx, req)
		if err != nil {
			return nil, c.fail(ctx, res.KickoffID, fmt.Errorf("task %s: %w", task.Name, err))
		}
		elapsed := c.now().Sub(taskStart)

		tr := TaskResult{
			TaskID:   uuid.NewString(),
			Name:     task.Name,
			Agent:    spec.Name,
			Output:   out,
			Duration: elapsed,
		}
		if task.OutputFile != "" {
			path := c.opts.OutputPath(task.OutputFile)
			if err := writeOutput(path, out); err != nil {
				return nil, c.fail(ctx, res.KickoffID, err)
			}
			tr.OutputFile = path
		}
		if err := c.persist(ctx, res.KickoffID, i, task, tr, taskStart); err != nil {
			return nil, c.fail(ctx, res.KickoffID, err)
		}
		c.remember(ctx, res.KickoffID, spec.Name, task.Name, out)

		res.Tasks = append(res.Tasks, tr)
		outputs[task.Name] = out

		if c.opts.OnTask != nil {
			c.opts.OnTask(TaskEvent{
				KickoffID:  res.KickoffID,
				TaskID:     tr.TaskID,
				Position:   i + 1,
				Total:      len(defs.Tasks),
				Task:       task,
				Output:     out,
				OutputFile: tr.OutputFile,
				Duration:   elapsed,
			})
		}
	}

	if c.store != nil {
		if err := c.store.FinishKickoff(ctx, res.KickoffID, storage.StatusCompleted); err != nil {
			c.logger.Warn("failed to mark kickoff completed", "kickoff_id", res.KickoffID, "error", err)
		}
	}
	res.Duration = c.now().Sub(kickoffStart)
	c.logger.Info("crew finished", "kickoff_id", res.KickoffID, "duration", res.Duration.Round(time.Second))
	return res, nil
}

func (c *Crew) persist(ctx context.Context, kickoffID string, position int, task agent.TaskSpec, tr TaskResult, started time.Time) error {
	if c.store == nil {
		return nil
	}
	out := &storage.TaskOutput{
		TaskID:      tr.TaskID,
		KickoffID:   kickoffID,
		Position:    position,
		TaskName:    task.Name,
		Agent:       tr.Agent,
		Description: task.Description,
		Output:      tr.Output,
		OutputFile:  tr.OutputFile,
		StartedAt:   started.UTC(),
		CompletedAt: started.Add(tr.Duration).UTC(),
	}
	if err := c.store.SaveTaskOutput(ctx, out); err != nil {
		return fmt.Errorf("save output of %s: %w", task.Name, err)
	}
	return nil
}

// fail marks the kickoff failed and returns err. The status update uses a
// fresh context so a cancelled run is still recorded.
func (c *Crew) fail(ctx context.Context, kickoffID string, err error) error {
	if c.store != nil {
		updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if uerr := c.store.FinishKickoff(updateCtx, kickoffID, storage.StatusFailed); uerr != nil {
			c.logger.Warn("failed to mark kickoff failed", "kickoff_id", kickoffID, "error", uerr)
		}
	}
	c.logger.Error("crew failed", "kickoff_id", kickoffID, "error", err)
	return err
}

func (c *Crew) memories(ctx context.Context, agentName string) []string {
	if !c.opts.Memory || c.store == nil {
		return nil
	}
	mems, err := c.store.RecentMemories(ctx, agentName, memoryLimit)
	if err != nil {
		c.logger.Warn("memory lookup failed", "agent", agentName, "error", err)
		return nil
	}
	notes := make([]string, 0, len(mems))
	for _, m := range mems {
		notes = append(notes, fmt.Sprintf("[%s, %s] %s", m.TaskName, m.CreatedAt.Format("2006-01-02"), m.Content))
	}
	return notes
}

func (c *Crew) remember(ctx context.Context, kickoffID, agentName, taskName, output string) {
	if !c.opts.Memory || c.store == nil {
		return
	}
	err := c.store.SaveMemory(ctx, &storage.Memory{
		Agent:     agentName,
		TaskName:  taskName,
		KickoffID: kickoffID,
		Content:   excerpt(output, memoryNoteChars),
	})
	if err != nil {
		c.logger.Warn("memory save failed", "agent", agentName, "error", err)
	}
}

func excerpt(s string, maxChars int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	return string([]rune(s)[:maxChars]) + "..."
}

func writeOutput(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
