package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rohankatakam/reqtaker/internal/pipeline"
)

// Formatter renders a finished crew run.
type Formatter interface {
	Format(result *pipeline.Result, w io.Writer) error
}

// VerbosityLevel determines output detail
type VerbosityLevel int

const (
	VerbosityQuiet    VerbosityLevel = iota // one line
	VerbosityStandard                       // task list and report files
	VerbosityVerbose                        // plus the final report text
)

// NewFormatter creates appropriate formatter based on level
func NewFormatter(level VerbosityLevel) Formatter {
	switch level {
	case VerbosityQuiet:
		return &QuietFormatter{}
	case VerbosityVerbose:
		return &StandardFormatter{ShowReport: true}
	default:
		return &StandardFormatter{}
	}
}

// GetDefaultVerbosity returns appropriate default based on environment
func GetDefaultVerbosity(verbose bool) VerbosityLevel {
	if os.Getenv("CI") == "true" {
		return VerbosityQuiet
	}
	if verbose {
		return VerbosityVerbose
	}
	return VerbosityStandard
}

// QuietFormatter prints the kickoff id and the final report path.
type QuietFormatter struct{}

func (f *QuietFormatter) Format(result *pipeline.Result, w io.Writer) error {
	files := result.OutputFiles()
	final := "(no report file)"
	if len(files) > 0 {
		final = files[len(files)-1]
	}
	_, err := fmt.Fprintf(w, "✅ %d tasks completed (kickoff %s): %s\n", len(result.Tasks), result.KickoffID, final)
	return err
}

// StandardFormatter lists every task with its id, duration and output file.
type StandardFormatter struct {
	ShowReport bool
}

func (f *StandardFormatter) Format(result *pipeline.Result, w io.Writer) error {
	fmt.Fprintf(w, "Kickoff: %s (%s)\n", result.KickoffID, result.Mode)
	fmt.Fprintf(w, "Tasks:\n")
	for i, t := range result.Tasks {
		status := result.Tasks[i].Duration.Round(time.Second).String()
		if t.Reused {
			status = "reused"
		}
		fmt.Fprintf(w, "%d. %s [%s] %s\n", i+1, t.Name, status, t.TaskID)
		if t.OutputFile != "" && !t.Reused {
			fmt.Fprintf(w, "   → %s\n", t.OutputFile)
		}
	}
	if f.ShowReport && result.Final() != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", ruler, result.Final())
	}
	return nil
}
