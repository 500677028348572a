package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/reqtaker/internal/agent"
	"github.com/rohankatakam/reqtaker/internal/config"
	"github.com/rohankatakam/reqtaker/internal/mcp"
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the Google Drive folder processor as an MCP tool on stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout exposing the
google_drive_file_processor tool. Run 'reqtaker login' first; the server
cannot open a browser while a client owns its terminal.

Logs go to the log file only, since stdout carries the protocol.`,
	Args: cobra.NoArgs,
	RunE: runServeMCP,
}

func init() {
	rootCmd.AddCommand(serveMCPCmd)
}

func runServeMCP(cmd *cobra.Command, args []string) error {
	if err := cfg.Require(config.ValidationContextDrive); err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	ext, cache, err := newExtractor(ctx, false)
	if err != nil {
		return fmt.Errorf("%w (run 'reqtaker login' first)", err)
	}
	if cache != nil {
		defer cache.Close()
	}

	h := mcp.NewHandler()
	h.RegisterDriveTool(agent.NewDriveTool(ext, cfg.Extraction.MaxToolChars))
	logger.WithField("log_file", cfg.Logging.File).Info("serving MCP on stdio")
	return h.ServeStdio(ctx)
}
