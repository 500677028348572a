package output

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/reqtaker/internal/drive"
	"github.com/rohankatakam/reqtaker/internal/pipeline"
	"github.com/rohankatakam/reqtaker/internal/storage"
)

func init() {
	color.NoColor = true
}

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		KickoffID: "k-1",
		Mode:      pipeline.ModeReplay,
		Duration:  95 * time.Second,
		Tasks: []pipeline.TaskResult{
			{TaskID: "t-1", Name: "document_analysis_task", Output: "analysis", Reused: true},
			{TaskID: "t-2", Name: "requirements_synthesis_task", Output: "draft", OutputFile: "comprehensive_requirements_analysis.md", Duration: 61 * time.Second},
			{TaskID: "t-3", Name: "quality_review_task", Output: "final report", OutputFile: "final_requirements_analysis_report.md", Duration: 30 * time.Second},
		},
	}
}

func TestQuietFormatter(t *testing.T) {
	tests := []struct {
		name     string
		result   *pipeline.Result
		expected string
	}{
		{
			name:     "with report",
			result:   sampleResult(),
			expected: "✅ 3 tasks completed (kickoff k-1): final_requirements_analysis_report.md\n",
		},
		{
			name:     "no files",
			result:   &pipeline.Result{KickoffID: "k-2", Tasks: []pipeline.TaskResult{{Name: "a"}}},
			expected: "✅ 1 tasks completed (kickoff k-2): (no report file)\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, (&QuietFormatter{}).Format(tt.result, &buf))
			assert.Equal(t, tt.expected, buf.String())
		})
	}
}

func TestStandardFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(VerbosityStandard).Format(sampleResult(), &buf))
	out := buf.String()

	assert.Contains(t, out, "Kickoff: k-1 (replay)\n")
	assert.Contains(t, out, "1. document_analysis_task [reused] t-1\n")
	assert.Contains(t, out, "2. requirements_synthesis_task [1m1s] t-2\n   → comprehensive_requirements_analysis.md\n")
	assert.NotContains(t, out, "final report")

	buf.Reset()
	require.NoError(t, NewFormatter(VerbosityVerbose).Format(sampleResult(), &buf))
	assert.True(t, strings.HasSuffix(buf.String(), ruler+"\nfinal report\n"))
}

func TestGetDefaultVerbosity(t *testing.T) {
	t.Setenv("CI", "")
	assert.Equal(t, VerbosityVerbose, GetDefaultVerbosity(true))
	assert.Equal(t, VerbosityStandard, GetDefaultVerbosity(false))
	t.Setenv("CI", "true")
	assert.Equal(t, VerbosityQuiet, GetDefaultVerbosity(true))
}

func TestBanners(t *testing.T) {
	var buf bytes.Buffer
	StartupBanner(&buf, StartupInfo{FolderID: "F1", CredentialsFile: "credentials.json", Year: "2026", Model: "gpt-4o"})
	assert.Contains(t, buf.String(), "📁 Google Drive Folder: F1\n")
	assert.Contains(t, buf.String(), "🤖 Model:               gpt-4o\n")
	assert.NotContains(t, buf.String(), "Mode:")

	buf.Reset()
	CompletionBanner(&buf, sampleResult())
	out := buf.String()
	assert.Contains(t, out, "✅ Requirements analysis completed successfully!")
	assert.Contains(t, out, "   • comprehensive_requirements_analysis.md\n   • final_requirements_analysis_report.md\n")
	assert.Contains(t, out, "Total time: 1m35s")

	buf.Reset()
	FailureBanner(&buf, errors.New("boom"))
	assert.Contains(t, buf.String(), "❌ Requirements analysis failed: boom")
	assert.Contains(t, buf.String(), "💡 Troubleshooting tips:")
}

func TestTips(t *testing.T) {
	tips := Tips(fmt.Errorf("extract: %w", drive.ErrFolderNotFound))
	assert.Contains(t, tips[0], "folder ID")

	tips = Tips(errors.New("openai: 401 Unauthorized"))
	assert.Contains(t, tips[0], "OPENAI_API_KEY")

	tips = Tips(nil)
	assert.Len(t, tips, 3)
}

func TestScoreTable(t *testing.T) {
	r := &pipeline.TestReport{
		Iterations: 2,
		Tasks:      []string{"analysis", "review"},
		Scores:     map[string][]float64{"analysis": {8, 9}, "review": {6, 7}},
		Durations:  []time.Duration{90 * time.Second, 80400 * time.Millisecond},
	}
	var buf bytes.Buffer
	require.NoError(t, ScoreTable(&buf, r))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"Tasks/Scores", "Run", "1", "Run", "2", "Avg.", "Total"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"analysis", "8.0", "9.0", "8.5"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"Crew", "7.00", "8.00", "7.50"}, strings.Fields(lines[3]))
	assert.Equal(t, []string{"Execution", "Time", "(s)", "90", "80"}, strings.Fields(lines[4]))
}

func TestTaskList(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	k := &storage.Kickoff{ID: "k-9", Mode: "run", Status: storage.StatusCompleted, StartedAt: start}
	outs := []*storage.TaskOutput{
		{TaskID: "abc", Position: 0, TaskName: "document_analysis_task", Agent: "document_analyzer", StartedAt: start, CompletedAt: start.Add(2 * time.Minute)},
	}
	var buf bytes.Buffer
	require.NoError(t, TaskList(&buf, k, outs))
	assert.Contains(t, buf.String(), "Latest kickoff k-9 (run, completed, started ")
	assert.Equal(t, []string{"1", "abc", "document_analysis_task", "document_analyzer", "2m0s"},
		strings.Fields(strings.Split(buf.String(), "\n")[3]))
	assert.Contains(t, buf.String(), "reqtaker replay <task_id>")
}
