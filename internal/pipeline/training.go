package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FeedbackSource collects human feedback on a finished task. The CLI reads
// it from the terminal.
type FeedbackSource interface {
	Feedback(ctx context.Context, ev TaskEvent) (string, error)
}

// TrainingSample is one task output together with the feedback it got.
type TrainingSample struct {
	Iteration     int       `json:"iteration"`
	Task          string    `json:"task"`
	InitialOutput string    `json:"initial_output"`
	HumanFeedback string    `json:"human_feedback"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// AgentTraining is the consolidated guidance for one agent.
type AgentTraining struct {
	Suggestions  []string  `json:"suggestions"`
	Quality      float64   `json:"quality"`
	FinalSummary string    `json:"final_summary"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TrainingReport summarizes a Train call.
type TrainingReport struct {
	Iterations  int
	KickoffIDs  []string
	Samples     map[string][]TrainingSample
	Consolidate map[string]AgentTraining
}

const trainerSystemPrompt = "You are an expert coach for AI agents. You turn human " +
	"feedback on an agent's work into concrete instructions the agent can follow " +
	"next time. Respond with JSON only."

// Train runs the crew n times, asks for human feedback after every task,
// writes the raw samples to filename and merges consolidated suggestions
// per agent into trainedPath.
func (c *Crew) Train(ctx context.Context, inputs map[string]string, n int, filename, trainedPath string, feedback FeedbackSource) (*TrainingReport, error) {
	if n <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", n)
	}
	if c.llm == nil {
		return nil, fmt.Errorf("training needs an llm to consolidate feedback")
	}
	if feedback == nil {
		return nil, fmt.Errorf("training needs a feedback source")
	}

	report := &TrainingReport{
		Iterations:  n,
		Samples:     map[string][]TrainingSample{},
		Consolidate: map[string]AgentTraining{},
	}

	for iter := 1; iter <= n; iter++ {
		c.logger.Info("training iteration", "iteration", iter, "of", n)
		res, err := c.run(ctx, ModeTrain, inputs, 0, nil)
		if err != nil {
			return report, fmt.Errorf("training iteration %d: %w", iter, err)
		}
		report.KickoffIDs = append(report.KickoffIDs, res.KickoffID)

		for i, t := range res.Tasks {
			fb, err := feedback.Feedback(ctx, TaskEvent{
				KickoffID:  res.KickoffID,
				TaskID:     t.TaskID,
				Position:   i + 1,
				Total:      len(res.Tasks),
				Task:       c.defs.Tasks[i],
				Output:     t.Output,
				OutputFile: t.OutputFile,
				Duration:   t.Duration,
			})
			if err != nil {
				return report, fmt.Errorf("feedback for %s: %w", t.Name, err)
			}
			report.Samples[t.Agent] = append(report.Samples[t.Agent], TrainingSample{
				Iteration:     iter,
				Task:          t.Name,
				InitialOutput: t.Output,
				HumanFeedback: strings.TrimSpace(fb),
				RecordedAt:    c.now().UTC(),
			})
		}
		if err := writeJSON(filename, report.Samples); err != nil {
			return report, err
		}
	}

	trained, err := LoadTrainedAgents(trainedPath)
	if err != nil {
		return report, err
	}
	for agentName, samples := range report.Samples {
		at, err := c.consolidate(ctx, agentName, samples)
		if err != nil {
			c.logger.Warn("could not consolidate feedback", "agent", agentName, "error", err)
			continue
		}
		report.Consolidate[agentName] = at
		trained[agentName] = at
	}
	if err := writeJSON(trainedPath, trained); err != nil {
		return report, err
	}
	c.logger.Info("training complete", "iterations", n, "agents", len(report.Consolidate), "file", trainedPath)
	return report, nil
}

func (c *Crew) consolidate(ctx context.Context, agentName string, samples []TrainingSample) (AgentTraining, error) {
	var withFeedback []TrainingSample
	for _, s := range samples {
		if s.HumanFeedback != "" {
			withFeedback = append(withFeedback, s)
		}
	}
	if len(withFeedback) == 0 {
		return AgentTraining{}, fmt.Errorf("no feedback given")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Agent: %s\n", agentName)
	if spec, ok := c.defs.Agents[agentName]; ok {
		fmt.Fprintf(&sb, "Role: %s\nGoal: %s\n", spec.Role, strings.TrimSpace(spec.Goal))
	}
	for _, s := range withFeedback {
		fmt.Fprintf(&sb, "\n--- Iteration %d, task %s ---\nOutput (excerpt):\n%s\n\nHuman feedback:\n%s\n",
			s.Iteration, s.Task, excerpt(s.InitialOutput, 4000), s.HumanFeedback)
	}
	sb.WriteString("\nReturn a JSON object " +
		`{"suggestions": ["<actionable instruction>", ...], "quality": <0-10>, "final_summary": "<one paragraph>"}` +
		" where quality rates the outputs above in light of the feedback.")

	raw, err := c.llm.CompleteJSON(ctx, trainerSystemPrompt, sb.String())
	if err != nil {
		return AgentTraining{}, err
	}
	var at AgentTraining
	if err := json.Unmarshal([]byte(stripFences(raw)), &at); err != nil {
		return AgentTraining{}, fmt.Errorf("decode training result: %w", err)
	}
	at.UpdatedAt = c.now().UTC()
	return at, nil
}

// LoadTrainedAgents reads consolidated training data; a missing file is
// an empty set.
func LoadTrainedAgents(path string) (map[string]AgentTraining, error) {
	out := map[string]AgentTraining{}
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

// TrainedSuggestions returns the suggestions per agent for Options.Suggestions.
func TrainedSuggestions(path string) (map[string][]string, error) {
	trained, err := LoadTrainedAgents(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(trained))
	for name, at := range trained {
		if len(at.Suggestions) > 0 {
			out[name] = at.Suggestions
		}
	}
	return out, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
