package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rohankatakam/reqtaker/internal/storage"
)

// ErrNoKickoffs is returned by Replay and LatestTasks before any run has
// produced task outputs.
var ErrNoKickoffs = errors.New("no previous crew run found")

// LatestTasks returns the latest kickoff and its task outputs in order.
func (c *Crew) LatestTasks(ctx context.Context) (*storage.Kickoff, []*storage.TaskOutput, error) {
	if c.store == nil {
		return nil, nil, ErrNoKickoffs
	}
	k, err := c.store.LatestKickoff(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrNoKickoffs
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load latest kickoff: %w", err)
	}
	outputs, err := c.store.TaskOutputs(ctx, k.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load task outputs: %w", err)
	}
	return k, outputs, nil
}

// Replay re-runs the latest kickoff from taskID onward with the same
// inputs. Outputs of the tasks before it are reused as context.
func (c *Crew) Replay(ctx context.Context, taskID string) (*Result, error) {
	k, outputs, err := c.LatestTasks(ctx)
	if err != nil {
		return nil, err
	}

	var target *storage.TaskOutput
	for _, o := range outputs {
		if o.TaskID == taskID {
			target = o
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("task %s not found in the latest run (kickoff %s); list ids with `reqtaker tasks`", taskID, k.ID)
	}

	_, start, ok := c.defs.Task(target.TaskName)
	if !ok {
		return nil, fmt.Errorf("task %s (%s) is no longer defined", taskID, target.TaskName)
	}

	byName := make(map[string]*storage.TaskOutput, len(outputs))
	for _, o := range outputs {
		byName[o.TaskName] = o
	}
	prior := make([]TaskResult, 0, start)
	for _, t := range c.defs.Tasks[:start] {
		o, ok := byName[t.Name]
		if !ok {
			return nil, fmt.Errorf("cannot replay from %s: no stored output for earlier task %s", target.TaskName, t.Name)
		}
		prior = append(prior, TaskResult{
			TaskID:     o.TaskID,
			Name:       o.TaskName,
			Agent:      o.Agent,
			Output:     o.Output,
			OutputFile: o.OutputFile,
			Duration:   o.Duration(),
		})
	}

	c.logger.Info("replaying crew", "from_task", target.TaskName, "task_id", taskID, "kickoff_id", k.ID)
	return c.run(ctx, ModeReplay, k.InputsMap(), start, prior)
}
