package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/reqtaker/internal/agent"
	"github.com/rohankatakam/reqtaker/internal/storage"
)

type fakeRunner struct {
	mu       sync.Mutex
	requests []agent.Request
	failOn   string
}

func (r *fakeRunner) Execute(_ context.Context, req agent.Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if req.Task.Name == r.failOn {
		return "", errors.New("model unavailable")
	}
	return fmt.Sprintf("output of %s #%d", req.Task.Name, len(r.requests)), nil
}

func (r *fakeRunner) tasks() []string {
	var names []string
	for _, req := range r.requests {
		names = append(names, req.Task.Name)
	}
	return names
}

// fakeJSON answers by matching the system prompt.
type fakeJSON struct {
	plan    string
	train   string
	eval    []string
	evalIdx int
	err     error
	prompts []string
}

func (f *fakeJSON) CompleteJSON(_ context.Context, system, user string) (string, error) {
	f.prompts = append(f.prompts, user)
	if f.err != nil {
		return "", f.err
	}
	switch system {
	case plannerSystemPrompt:
		return f.plan, nil
	case trainerSystemPrompt:
		return f.train, nil
	default:
		if f.evalIdx >= len(f.eval) {
			return `{"quality": 5}`, nil
		}
		out := f.eval[f.evalIdx]
		f.evalIdx++
		return out, nil
	}
}

func newStore(t *testing.T) storage.Store {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	s, err := storage.NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func loadDefs(t *testing.T) *agent.Definitions {
	t.Helper()
	defs, err := agent.LoadDefinitions("", "")
	require.NoError(t, err)
	return defs
}

var testInputs = map[string]string{"folder_id": "F123", "current_year": "2026"}

func TestKickoff_RunsTasksInOrder(t *testing.T) {
	dir := t.TempDir()
	store := newStore(t)
	runner := &fakeRunner{}
	var events []TaskEvent

	crew := NewCrew(loadDefs(t), runner, nil, store, Options{
		OutputPath: func(name string) string { return filepath.Join(dir, "out", name) },
		OnTask:     func(ev TaskEvent) { events = append(events, ev) },
	})
	res, err := crew.Kickoff(context.Background(), testInputs)
	require.NoError(t, err)

	assert.Equal(t, []string{"document_analysis_task", "requirements_synthesis_task", "quality_review_task"}, runner.tasks())
	assert.Contains(t, runner.requests[0].Task.Description, "folder F123")
	assert.Empty(t, runner.requests[0].Context)

	review := runner.requests[2]
	require.Len(t, review.Context, 2)
	assert.Equal(t, "output of document_analysis_task #1", review.Context[0].Output)
	assert.Equal(t, "output of requirements_synthesis_task #2", review.Context[1].Output)
	assert.Equal(t, "quality_assurance_reviewer", review.Agent.Name)

	assert.Equal(t, "output of quality_review_task #3", res.Final())
	files := res.OutputFiles()
	require.Len(t, files, 2)
	data, err := os.ReadFile(filepath.Join(dir, "out", "final_requirements_analysis_report.md"))
	require.NoError(t, err)
	assert.Equal(t, res.Final(), string(data))

	require.Len(t, events, 3)
	assert.Equal(t, 3, events[2].Total)
	assert.Equal(t, files[1], events[2].OutputFile)

	k, outputs, err := crew.LatestTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.KickoffID, k.ID)
	assert.Equal(t, storage.StatusCompleted, k.Status)
	assert.Equal(t, "F123", k.InputsMap()["folder_id"])
	require.Len(t, outputs, 3)
	assert.Equal(t, res.Tasks[1].TaskID, outputs[1].TaskID)
}

func TestKickoff_FailureMarksKickoff(t *testing.T) {
	store := newStore(t)
	runner := &fakeRunner{failOn: "requirements_synthesis_task"}
	crew := NewCrew(loadDefs(t), runner, nil, store, Options{OutputPath: func(n string) string { return filepath.Join(t.TempDir(), n) }})

	_, err := crew.Kickoff(context.Background(), testInputs)
	assert.ErrorContains(t, err, "task requirements_synthesis_task: model unavailable")
	assert.Len(t, runner.requests, 2)

	k, _, err := crew.LatestTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, k.Status)
}

func TestKickoff_PlanningMemoryAndSuggestions(t *testing.T) {
	store := newStore(t)
	runner := &fakeRunner{}
	planner := &fakeJSON{plan: "```json\n" + `{"plans": [{"task": "document_analysis_task", "plan": "1. Call the drive tool"}]}` + "\n```"}

	crew := NewCrew(loadDefs(t), runner, planner, store, Options{
		Planning:    true,
		Memory:      true,
		OutputPath:  func(n string) string { return filepath.Join(t.TempDir(), n) },
		Suggestions: map[string][]string{"requirements_synthesizer": {"Use tables"}},
	})

	_, err := crew.Kickoff(context.Background(), testInputs)
	require.NoError(t, err)
	assert.Equal(t, "1. Call the drive tool", runner.requests[0].Plan)
	assert.Empty(t, runner.requests[1].Plan)
	assert.Equal(t, []string{"Use tables"}, runner.requests[1].Suggestions)
	assert.Empty(t, runner.requests[0].Memories)
	require.Len(t, planner.prompts, 1)
	assert.Contains(t, planner.prompts[0], "Task 3: quality_review_task")

	_, err = crew.Kickoff(context.Background(), testInputs)
	require.NoError(t, err)
	mems := runner.requests[3].Memories
	require.Len(t, mems, 1)
	assert.Contains(t, mems[0], "[document_analysis_task, ")
	assert.Contains(t, mems[0], "output of document_analysis_task #1")
}

func TestKickoff_PlanningFailureIsNotFatal(t *testing.T) {
	runner := &fakeRunner{}
	crew := NewCrew(loadDefs(t), runner, &fakeJSON{err: errors.New("quota")}, nil, Options{
		Planning:   true,
		OutputPath: func(n string) string { return filepath.Join(t.TempDir(), n) },
	})
	_, err := crew.Kickoff(context.Background(), testInputs)
	require.NoError(t, err)
	assert.Len(t, runner.requests, 3)
}

func TestReplay_FromMiddleTask(t *testing.T) {
	store := newStore(t)
	runner := &fakeRunner{}
	crew := NewCrew(loadDefs(t), runner, nil, store, Options{OutputPath: func(n string) string { return filepath.Join(t.TempDir(), n) }})

	first, err := crew.Kickoff(context.Background(), testInputs)
	require.NoError(t, err)

	res, err := crew.Replay(context.Background(), first.Tasks[1].TaskID)
	require.NoError(t, err)

	assert.Equal(t, []string{"document_analysis_task", "requirements_synthesis_task", "quality_review_task",
		"requirements_synthesis_task", "quality_review_task"}, runner.tasks())
	assert.Contains(t, runner.requests[3].Task.Description, "folder F123", "inputs come from the stored kickoff")
	assert.Equal(t, "output of document_analysis_task #1", runner.requests[3].Context[0].Output)

	require.Len(t, res.Tasks, 3)
	assert.True(t, res.Tasks[0].Reused)
	assert.NotEqual(t, first.Tasks[0].TaskID, res.Tasks[0].TaskID)
	assert.Len(t, res.OutputFiles(), 2)

	k, outputs, err := crew.LatestTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.KickoffID, k.ID)
	assert.Equal(t, ModeReplay, k.Mode)
	assert.Len(t, outputs, 3)

	_, err = crew.Replay(context.Background(), first.Tasks[0].TaskID)
	assert.ErrorContains(t, err, "not found in the latest run")
}

func TestReplay_NoRuns(t *testing.T) {
	crew := NewCrew(loadDefs(t), &fakeRunner{}, nil, newStore(t), Options{})
	_, err := crew.Replay(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrNoKickoffs)
}

type scriptedFeedback struct{ calls int }

func (f *scriptedFeedback) Feedback(_ context.Context, ev TaskEvent) (string, error) {
	f.calls++
	if ev.Task.Name == "quality_review_task" {
		return "", nil
	}
	return " Cite the source file for every finding ", nil
}

func TestTrain(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "training.json")
	trainedPath := filepath.Join(dir, "trained_agents_data.json")
	llm := &fakeJSON{train: `{"suggestions": ["Cite source files"], "quality": 7.5, "final_summary": "Good coverage."}`}
	fb := &scriptedFeedback{}

	crew := NewCrew(loadDefs(t), &fakeRunner{}, llm, newStore(t), Options{OutputPath: func(n string) string { return filepath.Join(dir, n) }})
	report, err := crew.Train(context.Background(), testInputs, 2, rawPath, trainedPath, fb)
	require.NoError(t, err)

	assert.Equal(t, 6, fb.calls)
	assert.Len(t, report.KickoffIDs, 2)
	assert.Len(t, report.Samples["document_analyzer"], 2)
	assert.Equal(t, "Cite the source file for every finding", report.Samples["document_analyzer"][0].HumanFeedback)
	assert.NotContains(t, report.Consolidate, "quality_assurance_reviewer", "no feedback, nothing to consolidate")

	raw, err := os.ReadFile(rawPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"human_feedback": "Cite the source file for every finding"`)

	suggestions, err := TrainedSuggestions(trainedPath)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"document_analyzer":        {"Cite source files"},
		"requirements_synthesizer": {"Cite source files"},
	}, suggestions)

	trained, err := LoadTrainedAgents(trainedPath)
	require.NoError(t, err)
	assert.InDelta(t, 7.5, trained["document_analyzer"].Quality, 0.001)
}

func TestTrain_Validation(t *testing.T) {
	crew := NewCrew(loadDefs(t), &fakeRunner{}, nil, nil, Options{})
	_, err := crew.Train(context.Background(), testInputs, 0, "a.json", "b.json", &scriptedFeedback{})
	assert.ErrorContains(t, err, "iterations must be positive")
	_, err = crew.Train(context.Background(), testInputs, 1, "a.json", "b.json", &scriptedFeedback{})
	assert.ErrorContains(t, err, "needs an llm")
}

func TestLoadTrainedAgents_Missing(t *testing.T) {
	got, err := LoadTrainedAgents(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, got)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = LoadTrainedAgents(bad)
	assert.Error(t, err)
}

func TestCrewTest_Scores(t *testing.T) {
	evaluator := &fakeJSON{eval: []string{
		`{"quality": 8}`, `{"quality": 6}`, `{"quality": 12}`,
		`{"quality": 9}`, `not json`, `{"quality": 7}`,
	}}
	crew := NewCrew(loadDefs(t), &fakeRunner{}, nil, newStore(t), Options{OutputPath: func(n string) string { return filepath.Join(t.TempDir(), n) }})

	report, err := crew.Test(context.Background(), testInputs, 2, evaluator)
	require.NoError(t, err)

	assert.Equal(t, []float64{8, 9}, report.Scores["document_analysis_task"])
	assert.Equal(t, []float64{6, 0}, report.Scores["requirements_synthesis_task"])
	assert.Equal(t, []float64{10, 7}, report.Scores["quality_review_task"], "scores are clamped to 10")
	assert.InDelta(t, 8.5, report.TaskAverage("document_analysis_task"), 0.001)
	assert.InDelta(t, 8.0, report.IterationAverage(0), 0.001)
	assert.InDelta(t, 40.0/6, report.CrewAverage(), 0.001)
	assert.Len(t, report.Durations, 2)
	assert.True(t, strings.Contains(evaluator.prompts[0], "folder F123"))
}

func TestParsePlans(t *testing.T) {
	_, err := parsePlans(`{"plans": []}`)
	assert.ErrorContains(t, err, "no entries")

	plans, err := parsePlans("```\n{\"plans\": [{\"task\": \"a\", \"plan\": \" step \"}]}\n```")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "step"}, plans)
}
