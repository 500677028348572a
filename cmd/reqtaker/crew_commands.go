package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/reqtaker/internal/config"
	rterrors "github.com/rohankatakam/reqtaker/internal/errors"
	"github.com/rohankatakam/reqtaker/internal/llm"
	"github.com/rohankatakam/reqtaker/internal/output"
	"github.com/rohankatakam/reqtaker/internal/pipeline"
)

var trainCmd = &cobra.Command{
	Use:   "train <folder_id> <iterations> <filename>",
	Short: "Run the crew repeatedly and learn from your feedback",
	Long: `Run the crew <iterations> times on the folder. After every task you are asked
for feedback; the raw feedback is written to <filename> and consolidated
suggestions per agent are merged into trained_agents_data.json, which later
runs add to each agent's instructions.`,
	Args: exactArgs(3, "reqtaker train <folder_id> <iterations> <filename>"),
	RunE: runTrain,
}

var replayCmd = &cobra.Command{
	Use:   "replay <task_id>",
	Short: "Re-run the last crew run from a given task",
	Long: `Re-run the latest crew run starting at <task_id>, reusing the stored
outputs of the tasks before it. List task ids with 'reqtaker tasks'.`,
	Args: exactArgs(1, "reqtaker replay <task_id>"),
	RunE: runReplay,
}

var testCmd = &cobra.Command{
	Use:   "test <folder_id> <iterations> <eval_llm>",
	Short: "Run the crew repeatedly and score every task with an evaluator model",
	Args:  exactArgs(3, "reqtaker test <folder_id> <iterations> <eval_llm>"),
	RunE:  runTest,
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the task ids of the latest crew run",
	Args:  cobra.NoArgs,
	RunE:  runTasks,
}

func init() {
	rootCmd.AddCommand(trainCmd, replayCmd, testCmd, tasksCmd)
}

// exactArgs is cobra.ExactArgs with the usage line in the error.
func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return rterrors.ValidationErrorf("expected %d argument(s), got %d\nUsage: %s", n, len(args), usage)
		}
		return nil
	}
}

func parseIterations(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, rterrors.ValidationErrorf("iterations must be a positive integer, got %q", s)
	}
	return n, nil
}

func runTrain(cmd *cobra.Command, args []string) error {
	folderID := resolveFolder(args[:1])
	n, err := parseIterations(args[1])
	if err != nil {
		return err
	}
	filename := args[2]
	if err := requireConfig(config.ValidationContextRun); err != nil {
		return err
	}
	if !config.IsInteractive() {
		return errors.New("training asks for feedback and needs an interactive terminal")
	}

	ctx, cancel := signalContext()
	defer cancel()

	output.StartupBanner(cmd.OutOrStdout(), output.StartupInfo{
		FolderID:        folderID,
		CredentialsFile: cfg.Drive.CredentialsFile,
		Year:            currentYear(),
		Model:           cfg.LLM.Model,
		Mode:            pipeline.ModeTrain,
	})

	s, err := openSession(ctx)
	if err != nil {
		return fail(cmd, err)
	}
	defer s.Close()

	fb := &terminalFeedback{in: bufio.NewReader(os.Stdin), out: cmd.OutOrStdout()}
	report, err := s.built.Crew.Train(ctx, crewInputs(folderID), n, filename, cfg.Pipeline.TrainedAgentsFile, fb)
	if err != nil {
		return fail(cmd, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n🎯 Training complete: %d iteration(s)\n", report.Iterations)
	fmt.Fprintf(out, "   Raw feedback:   %s\n", filename)
	fmt.Fprintf(out, "   Trained agents: %s\n", cfg.Pipeline.TrainedAgentsFile)
	for name, at := range report.Consolidate {
		fmt.Fprintf(out, "   • %s: %d suggestion(s), quality %.1f\n", name, len(at.Suggestions), at.Quality)
	}
	return nil
}

// terminalFeedback prompts after each task. An empty line means no feedback.
type terminalFeedback struct {
	in  *bufio.Reader
	out io.Writer
}

func (t *terminalFeedback) Feedback(ctx context.Context, ev pipeline.TaskEvent) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(t.out, "\n%s\n", strings.Repeat("─", 60))
	fmt.Fprintf(t.out, "📝 Task %d/%d: %s\n", ev.Position, ev.Total, ev.Task.Name)
	if ev.OutputFile != "" {
		fmt.Fprintf(t.out, "   Output written to %s\n", ev.OutputFile)
	} else {
		fmt.Fprintf(t.out, "%s\n", preview(ev.Output, 600))
	}
	fmt.Fprint(t.out, "Your feedback (Enter to skip): ")
	line, err := config.ReadLine(t.in)
	if errors.Is(err, io.EOF) {
		return "", nil
	}
	return line, err
}

func runReplay(cmd *cobra.Command, args []string) error {
	if err := requireConfig(config.ValidationContextReplay); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return fail(cmd, err)
	}
	defer s.Close()

	res, err := s.built.Crew.Replay(ctx, strings.TrimSpace(args[0]))
	if errors.Is(err, pipeline.ErrNoKickoffs) {
		return fmt.Errorf("%w; run 'reqtaker run <folder_id>' first", err)
	}
	if err != nil {
		return fail(cmd, err)
	}
	return report(cmd, res)
}

func runTest(cmd *cobra.Command, args []string) error {
	folderID := resolveFolder(args[:1])
	n, err := parseIterations(args[1])
	if err != nil {
		return err
	}
	evalModel := strings.TrimSpace(args[2])
	if err := requireConfig(config.ValidationContextRun); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	output.StartupBanner(cmd.OutOrStdout(), output.StartupInfo{
		FolderID:        folderID,
		CredentialsFile: cfg.Drive.CredentialsFile,
		Year:            currentYear(),
		Model:           cfg.LLM.Model + " (evaluated by " + evalModel + ")",
		Mode:            pipeline.ModeTest,
	})

	s, err := openSession(ctx)
	if err != nil {
		return fail(cmd, err)
	}
	defer s.Close()

	evaluator, err := llm.NewClientForModel(ctx, cfg, evalModel, s.built.Limiter)
	if err != nil {
		return fail(cmd, err)
	}
	rep, err := s.built.Crew.Test(ctx, crewInputs(folderID), n, evaluator)
	if err != nil {
		return fail(cmd, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "\n📊 Task scores (1-10 higher is better)")
	return output.ScoreTable(cmd.OutOrStdout(), rep)
}

func runTasks(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openStoreOnly()
	if err != nil {
		return err
	}
	defer s.Close()

	k, outputs, err := pipeline.NewCrew(nil, nil, nil, s, pipeline.Options{}).LatestTasks(ctx)
	if errors.Is(err, pipeline.ErrNoKickoffs) {
		fmt.Fprintln(cmd.OutOrStdout(), "No crew runs recorded yet. Run 'reqtaker run <folder_id>' first.")
		return nil
	}
	if err != nil {
		return err
	}
	return output.TaskList(cmd.OutOrStdout(), k, outputs)
}
