package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/reqtaker/internal/config"
	"github.com/rohankatakam/reqtaker/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	quiet   bool
	logger  *logrus.Logger
	cfg     *config.Config
)

// errReported marks a failure whose details were already printed.
var errReported = errors.New("reported")

func main() {
	err := rootCmd.Execute()
	logging.Close()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reqtaker [folder_id]",
	Short: "Requirements Taker - turn a Google Drive folder into a requirements analysis",
	Long: `Requirements Taker reads every document in a Google Drive folder (Docs,
Sheets, Slides, PDF, Word, Excel, PowerPoint, text) and runs a three-agent crew
over the extracted content: a document analyzer, a requirements synthesizer and
a quality reviewer. The result is two Markdown reports:

  comprehensive_requirements_analysis.md
  final_requirements_analysis_report.md

Running reqtaker with no subcommand is the same as 'reqtaker run'.`,
	Version:           Version,
	Args:              cobra.MaximumNArgs(1),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runRun,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .reqtaker/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logs, full report)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "print only a one-line summary")

	rootCmd.SetVersionTemplate(`Requirements Taker {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)
	rootCmd.SetHelpTemplate(rootCmd.HelpTemplate() + helpFooter)
}

// setup loads configuration and installs the run log before any command.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	loadErr := err
	if err != nil {
		cfg = config.Default()
	}

	logCfg := logging.DefaultConfig(verbose)
	if !verbose {
		logCfg.Level = logging.ParseLevel(cfg.Logging.Level)
	}
	if cfg.Logging.File != "" {
		logCfg.OutputFile = cfg.Logging.File
	}
	logCfg.JSONFormat = cfg.Logging.JSON
	logCfg.Console = os.Stderr
	if quiet || cmd.Name() == "serve-mcp" {
		logCfg.Console = io.Discard
	}
	l, err := logging.Initialize(logCfg)
	if err != nil {
		return err
	}

	logger = logrus.New()
	logger.SetOutput(l.Writer())
	logger.SetLevel(logrus.InfoLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if loadErr != nil {
		logger.WithError(loadErr).Warn("Failed to load config, using defaults")
	}
	if verbose {
		cfg.Pipeline.Verbose = true
	}
	return nil
}

const helpFooter = `
Examples:
  reqtaker 1AbCdEfGhIjKlMnOp                 analyze a folder
  reqtaker run                               use GOOGLE_DRIVE_FOLDER_ID
  reqtaker train 1AbCdEf 3 training.json     3 training runs with your feedback
  reqtaker replay 5f0c...                    re-run from a task of the last run
  reqtaker test 1AbCdEf 2 gpt-4o-mini        score 2 runs with an evaluator model
  reqtaker drive check 1AbCdEf               list what the crew will see

Environment:
  OPENAI_API_KEY           OpenAI key (or store it with 'reqtaker configure')
  GEMINI_API_KEY           Gemini key, used when MODEL starts with "gemini"
  MODEL                    model name (default gpt-4o)
  GOOGLE_DRIVE_FOLDER_ID   default folder
  GOOGLE_CREDENTIALS_FILE  OAuth client file (default credentials.json)
  GOOGLE_TOKEN_FILE        saved token (default token.json)
  CREW_VERBOSE, CREW_MEMORY, CREW_PLANNING, MAX_RPM, OUTPUT_DIR
  RATE_LIMIT_REDIS_ADDR    share the request budget across processes
`
