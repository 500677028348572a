// Package output renders everything the CLI prints besides log lines:
// banners, run summaries, task listings and score tables.
package output

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/rohankatakam/reqtaker/internal/drive"
	"github.com/rohankatakam/reqtaker/internal/pipeline"
)

const ruler = "============================================================"

var (
	heading = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	failure = color.New(color.FgRed, color.Bold)
	dim     = color.New(color.Faint)
)

// StartupInfo is shown before a kickoff.
type StartupInfo struct {
	FolderID        string
	CredentialsFile string
	Year            string
	Model           string
	Mode            string
}

// StartupBanner prints what is about to run.
func StartupBanner(w io.Writer, info StartupInfo) {
	fmt.Fprintln(w, ruler)
	heading.Fprintln(w, "🚀 Requirements Taker Crew")
	fmt.Fprintln(w, ruler)
	fmt.Fprintf(w, "📁 Google Drive Folder: %s\n", info.FolderID)
	fmt.Fprintf(w, "🔑 Credentials File:    %s\n", info.CredentialsFile)
	fmt.Fprintf(w, "📅 Analysis Year:       %s\n", info.Year)
	fmt.Fprintf(w, "🤖 Model:               %s\n", info.Model)
	if info.Mode != "" && info.Mode != pipeline.ModeRun {
		fmt.Fprintf(w, "🎯 Mode:                %s\n", info.Mode)
	}
	fmt.Fprintln(w, ruler)
}

// CompletionBanner prints the output files and next steps after a run.
func CompletionBanner(w io.Writer, result *pipeline.Result) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, ruler)
	success.Fprintln(w, "✅ Requirements analysis completed successfully!")
	fmt.Fprintln(w, ruler)
	if files := result.OutputFiles(); len(files) > 0 {
		fmt.Fprintln(w, "📄 Generated files:")
		for _, f := range files {
			fmt.Fprintf(w, "   • %s\n", f)
		}
	}
	fmt.Fprintf(w, "⏱  Total time: %s\n", result.Duration.Round(time.Second))
	dim.Fprintf(w, "Replay any task with `reqtaker replay <task_id>`; list ids with `reqtaker tasks`.\n")
	fmt.Fprintln(w, ruler)
}

// FailureBanner prints the error and troubleshooting tips matched to it.
func FailureBanner(w io.Writer, err error) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, ruler)
	failure.Fprintf(w, "❌ Requirements analysis failed: %v\n", err)
	fmt.Fprintln(w, ruler)
	fmt.Fprintln(w, "💡 Troubleshooting tips:")
	for _, tip := range Tips(err) {
		fmt.Fprintf(w, "   • %s\n", tip)
	}
	fmt.Fprintln(w, ruler)
}

// Tips returns troubleshooting hints, most specific first.
func Tips(err error) []string {
	msg := ""
	if err != nil {
		msg = strings.ToLower(err.Error())
	}
	var tips []string
	switch {
	case errors.Is(err, drive.ErrFolderNotFound) || strings.Contains(msg, "not found"):
		tips = append(tips, "Check the folder ID and that your Google account can open the folder")
	case strings.Contains(msg, "credentials") || strings.Contains(msg, "token") || strings.Contains(msg, "oauth"):
		tips = append(tips, "Run `reqtaker login` again, or delete token.json to force re-authentication")
	case strings.Contains(msg, "api key") || strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized"):
		tips = append(tips, "Verify OPENAI_API_KEY (or GEMINI_API_KEY) is valid, or run `reqtaker configure`")
	case strings.Contains(msg, "rate") || strings.Contains(msg, "429") || strings.Contains(msg, "quota"):
		tips = append(tips, "Lower MAX_RPM or wait for your provider quota to reset")
	case strings.Contains(msg, "max execution time"):
		tips = append(tips, "The folder may be too large; try a smaller folder or raise max_execution_time in agents.yaml")
	}
	return append(tips,
		"Ensure credentials.json is a Desktop OAuth client downloaded from Google Cloud Console",
		"Make sure the Google Drive API is enabled for that project",
		"Check "+logHint+" for the full log",
	)
}

const logHint = "requirements_analysis.log"
