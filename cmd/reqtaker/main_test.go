package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/reqtaker/internal/agent"
	"github.com/rohankatakam/reqtaker/internal/config"
	rterrors "github.com/rohankatakam/reqtaker/internal/errors"
	"github.com/rohankatakam/reqtaker/internal/extract"
	"github.com/rohankatakam/reqtaker/internal/pipeline"
)

func TestResolveFolder(t *testing.T) {
	cfg = config.Default()
	cfg.Drive.FolderID = "from-env"

	assert.Equal(t, "from-env", resolveFolder(nil))
	assert.Equal(t, "from-env", resolveFolder([]string{"  "}))
	assert.Equal(t, "1ABC", resolveFolder([]string{" 1ABC "}))
	assert.Equal(t, "1ABC", cfg.Drive.FolderID)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "(calling tools)", preview(" \n ", 10))
	assert.Equal(t, "a b c", preview("a\n b\t c", 10))
	assert.Equal(t, "héll…", preview("héllo world", 4))
}

func TestParseIterations(t *testing.T) {
	n, err := parseIterations("3")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, bad := range []string{"0", "-1", "three", ""} {
		_, err := parseIterations(bad)
		assert.Error(t, err, bad)
	}
}

func TestExactArgs(t *testing.T) {
	check := exactArgs(2, "reqtaker x <a> <b>")
	assert.NoError(t, check(nil, []string{"a", "b"}))

	err := check(nil, []string{"a"})
	require.Error(t, err)
	assert.Equal(t, rterrors.ErrorTypeValidation, rterrors.GetType(err))
	assert.Contains(t, err.Error(), "expected 2 argument(s), got 1")
	assert.Contains(t, err.Error(), "Usage: reqtaker x <a> <b>")
}

func TestCrewInputs(t *testing.T) {
	in := crewInputs("1ABC")
	assert.Equal(t, "1ABC", in["folder_id"])
	assert.Len(t, in["current_year"], 4)
}

func TestTerminalFeedback(t *testing.T) {
	var out bytes.Buffer
	fb := &terminalFeedback{
		in:  bufio.NewReader(strings.NewReader("needs more detail\n")),
		out: &out,
	}
	ev := pipeline.TaskEvent{Position: 1, Total: 3, Task: agent.TaskSpec{Name: "document_analysis_task"}, Output: "summary"}

	got, err := fb.Feedback(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, "needs more detail", got)
	assert.Contains(t, out.String(), "Task 1/3: document_analysis_task")
	assert.Contains(t, out.String(), "summary")

	// input exhausted counts as no feedback
	got, err = fb.Feedback(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "train", "replay", "test", "tasks", "configure", "login", "logout", "drive", "serve-mcp"} {
		assert.True(t, names[want], want)
	}
}

func TestDriveProcessorOutlivesToolCallContext(t *testing.T) {
	sessionCtx, stop := context.WithCancel(context.Background())
	defer stop()

	var built context.Context
	d := newDriveProcessor(sessionCtx)
	d.build = func(ctx context.Context) (*extract.Extractor, *extract.Cache, error) {
		built = ctx
		return nil, nil, errors.New("no credentials")
	}

	callCtx, cancel := context.WithCancel(context.Background())
	_, err := d.Process(callCtx, "1ABC")
	assert.EqualError(t, err, "no credentials")
	cancel()

	require.NotNil(t, built)
	assert.NoError(t, built.Err(), "drive client context must survive the tool call")

	_, err = d.Process(context.Background(), "1ABC")
	assert.EqualError(t, err, "no credentials", "build runs once")
}

func TestFailLogsErrorDetail(t *testing.T) {
	var logs, stderr bytes.Buffer
	logger = logrus.New()
	logger.SetOutput(&logs)
	logger.SetFormatter(&logrus.JSONFormatter{})

	cmd := &cobra.Command{}
	cmd.SetErr(&stderr)
	cause := rterrors.NetworkError(errors.New("connection refused"), "list files")

	err := fail(cmd, cause)
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr.String(), "list files: connection refused")
	assert.Contains(t, logs.String(), `"detail":"[HIGH] [NETWORK] list files\nCaused by: connection refused`)

	logs.Reset()
	fail(cmd, errors.New("plain"))
	assert.Contains(t, logs.String(), `"error":"plain"`)
	assert.NotContains(t, logs.String(), "detail")
}
