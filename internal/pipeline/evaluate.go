package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const evaluatorSystemPrompt = "You are a strict evaluator of AI agent work. You score " +
	"how well an output meets its task description and expected output. Respond with JSON only."

// TestReport holds the evaluator's scores for every task of every iteration.
type TestReport struct {
	Iterations int
	// Tasks are task names in execution order.
	Tasks []string
	// Scores[task][iteration] is a 1-10 quality score.
	Scores map[string][]float64
	// Durations are per-iteration kickoff wall times.
	Durations  []time.Duration
	KickoffIDs []string
}

// TaskAverage is the mean score of one task across iterations.
func (r *TestReport) TaskAverage(task string) float64 {
	return mean(r.Scores[task])
}

// IterationAverage is the mean score of all tasks in one iteration (0-based).
func (r *TestReport) IterationAverage(i int) float64 {
	var vals []float64
	for _, t := range r.Tasks {
		if i < len(r.Scores[t]) {
			vals = append(vals, r.Scores[t][i])
		}
	}
	return mean(vals)
}

// CrewAverage is the mean over every score.
func (r *TestReport) CrewAverage() float64 {
	var vals []float64
	for _, t := range r.Tasks {
		vals = append(vals, r.Scores[t]...)
	}
	return mean(vals)
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

type evaluation struct {
	Quality float64 `json:"quality"`
	Reason  string  `json:"reason"`
}

// Test runs the crew n times and has evaluator score each task output.
func (c *Crew) Test(ctx context.Context, inputs map[string]string, n int, evaluator JSONCompleter) (*TestReport, error) {
	if n <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", n)
	}
	if evaluator == nil {
		return nil, fmt.Errorf("testing needs an evaluator llm")
	}

	report := &TestReport{Iterations: n, Scores: map[string][]float64{}}
	for _, t := range c.defs.Tasks {
		report.Tasks = append(report.Tasks, t.Name)
	}
	defs := c.defs.Interpolate(inputs)

	for iter := 1; iter <= n; iter++ {
		c.logger.Info("test iteration", "iteration", iter, "of", n)
		res, err := c.run(ctx, ModeTest, inputs, 0, nil)
		if err != nil {
			return report, fmt.Errorf("test iteration %d: %w", iter, err)
		}
		report.KickoffIDs = append(report.KickoffIDs, res.KickoffID)
		report.Durations = append(report.Durations, res.Duration)

		for i, t := range res.Tasks {
			task := defs.Tasks[i]
			prompt := fmt.Sprintf("Task description:\n%s\n\nExpected output:\n%s\n\nActual output:\n%s\n\n"+
				`Return {"quality": <number from 1 to 10>, "reason": "<one sentence>"}.`,
				strings.TrimSpace(task.Description), strings.TrimSpace(task.ExpectedOutput), t.Output)

			score, err := c.score(ctx, evaluator, prompt)
			if err != nil {
				c.logger.Warn("evaluation failed, scoring 0", "task", t.Name, "iteration", iter, "error", err)
			}
			report.Scores[t.Name] = append(report.Scores[t.Name], score)
		}
	}
	return report, nil
}

func (c *Crew) score(ctx context.Context, evaluator JSONCompleter, prompt string) (float64, error) {
	raw, err := evaluator.CompleteJSON(ctx, evaluatorSystemPrompt, prompt)
	if err != nil {
		return 0, err
	}
	var ev evaluation
	if err := json.Unmarshal([]byte(stripFences(raw)), &ev); err != nil {
		return 0, fmt.Errorf("decode evaluation: %w", err)
	}
	switch {
	case ev.Quality < 1:
		ev.Quality = 1
	case ev.Quality > 10:
		ev.Quality = 10
	}
	return ev.Quality, nil
}
