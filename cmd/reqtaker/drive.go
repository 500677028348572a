package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/reqtaker/internal/config"
	"github.com/rohankatakam/reqtaker/internal/drive"
)

var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Google Drive diagnostics",
}

var driveCheckCmd = &cobra.Command{
	Use:   "check [folder_id]",
	Short: "List the files the crew will see in a folder",
	Long: `Authenticate, resolve the folder and list every file under it, including
subfolders, without extracting content or calling an LLM.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDriveCheck,
}

func init() {
	driveCmd.AddCommand(driveCheckCmd)
	rootCmd.AddCommand(driveCmd)
}

func runDriveCheck(cmd *cobra.Command, args []string) error {
	folderID := resolveFolder(args)
	if folderID == "" {
		return fmt.Errorf("no folder ID: pass one or set GOOGLE_DRIVE_FOLDER_ID")
	}
	if err := requireConfig(config.ValidationContextDrive); err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	ext, cache, err := newExtractor(ctx, true)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}

	folder, files, err := ext.Collect(ctx, folderID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📁 %s (%s)\n", folder.Name, folder.ID)
	if len(files) == 0 {
		fmt.Fprintln(out, "   No files found.")
		return nil
	}

	var total int64
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tSIZE\tMODIFIED\tMIME TYPE")
	for _, f := range files {
		name := f.Name
		if f.Subfolder != "" {
			name = f.Subfolder + "/" + f.Name
		}
		size := "-"
		if f.Size > 0 {
			size = humanize.Bytes(uint64(f.Size))
			total += f.Size
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, drive.TypeLabel(f.MimeType), size, modified(f.ModifiedTime), f.MimeType)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d file(s), %s of binary content\n", len(files), humanize.Bytes(uint64(total)))
	return nil
}

// modified renders Drive's RFC 3339 timestamp relative to now.
func modified(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}
