package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/reqtaker/internal/config"
	rterrors "github.com/rohankatakam/reqtaker/internal/errors"
	"github.com/rohankatakam/reqtaker/internal/output"
	"github.com/rohankatakam/reqtaker/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run [folder_id]",
	Short: "Analyze a Google Drive folder and write the requirements reports",
	Long: `Extract every document in the folder and run the requirements crew.

The folder ID comes from the argument, or GOOGLE_DRIVE_FOLDER_ID when no
argument is given. The first run opens a browser to authorize read-only
access to your Google Drive; the token is saved to token.json.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// signalContext is cancelled on Ctrl-C so the current request aborts and
// the kickoff is recorded as failed.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func currentYear() string {
	return strconv.Itoa(time.Now().Year())
}

func runRun(cmd *cobra.Command, args []string) error {
	folderID := resolveFolder(args)
	if err := requireConfig(config.ValidationContextRun); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	out := cmd.OutOrStdout()
	if !quiet {
		output.StartupBanner(out, output.StartupInfo{
			FolderID:        folderID,
			CredentialsFile: cfg.Drive.CredentialsFile,
			Year:            currentYear(),
			Model:           cfg.LLM.Model,
		})
	}

	s, err := openSession(ctx)
	if err != nil {
		return fail(cmd, err)
	}
	defer s.Close()

	res, err := s.built.Crew.Kickoff(ctx, crewInputs(folderID))
	if err != nil {
		return fail(cmd, err)
	}
	return report(cmd, res)
}

func report(cmd *cobra.Command, res *pipeline.Result) error {
	out := cmd.OutOrStdout()
	level := output.GetDefaultVerbosity(verbose)
	if quiet {
		level = output.VerbosityQuiet
	}
	if level != output.VerbosityQuiet {
		output.CompletionBanner(out, res)
	}
	return output.NewFormatter(level).Format(res, out)
}

func fail(cmd *cobra.Command, err error) error {
	entry := logger.WithError(err)
	var re *rterrors.Error
	if errors.As(err, &re) {
		entry = entry.WithField("detail", re.DetailedString())
	}
	entry.Error("crew run failed")
	output.FailureBanner(cmd.ErrOrStderr(), err)
	return errReported
}
