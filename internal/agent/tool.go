package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rohankatakam/reqtaker/internal/extract"
)

// Tool is a function the model may call during a tool loop.
type Tool interface {
	// Name is the function name sent to the provider ([a-zA-Z0-9_-]).
	Name() string
	// Title is the human-readable name used in logs.
	Title() string
	Description() string
	// Parameters is a JSON Schema object describing the arguments.
	Parameters() map[string]any
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Tools indexes tools by function name.
type Tools map[string]Tool

func NewTools(tools ...Tool) Tools {
	t := make(Tools, len(tools))
	for _, tool := range tools {
		t[tool.Name()] = tool
	}
	return t
}

// For returns the tools named in spec, in name order.
func (t Tools) For(spec AgentSpec) ([]Tool, error) {
	var out []Tool
	for _, name := range spec.Tools {
		tool, ok := t[name]
		if !ok {
			return nil, fmt.Errorf("agent %s: unknown tool %q", spec.Name, name)
		}
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// DriveErrorPrefix starts every failure message the drive tool returns.
const DriveErrorPrefix = "💥 Error processing Google Drive folder: "

// Processor extracts a Drive folder into a text corpus.
type Processor interface {
	Process(ctx context.Context, folderID string) (*extract.Result, error)
}

// DriveTool exposes folder extraction to the document analyzer. Failures
// are returned to the model as text, never as a tool error, so the agent
// can report them.
type DriveTool struct {
	processor Processor
	// MaxChars truncates the corpus handed to the model; 0 disables.
	MaxChars int
	// LastResult holds the most recent successful extraction.
	LastResult *extract.Result
}

func NewDriveTool(p Processor, maxChars int) *DriveTool {
	return &DriveTool{processor: p, MaxChars: maxChars}
}

func (d *DriveTool) Name() string  { return "google_drive_file_processor" }
func (d *DriveTool) Title() string { return "Google Drive Comprehensive File Processor" }

func (d *DriveTool) Description() string {
	return "Advanced Google Drive tool that comprehensively processes ALL files in a specified folder. " +
		"Handles PDF, DOCX, TXT, MD, CSV, Google Docs, Google Sheets, Google Slides, and more. " +
		"Ensures complete content extraction from all pages and sections of each document for " +
		"thorough requirements analysis. Processes files recursively and provides detailed progress tracking."
}

func (d *DriveTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"folder_id": map[string]any{
				"type":        "string",
				"description": "Google Drive folder ID to process for comprehensive analysis",
			},
		},
		"required": []string{"folder_id"},
	}
}

func (d *DriveTool) Call(ctx context.Context, args map[string]any) (string, error) {
	folderID, _ := args["folder_id"].(string)
	folderID = strings.TrimSpace(folderID)
	if folderID == "" {
		return DriveErrorPrefix + "folder_id is required", nil
	}

	res, err := d.processor.Process(ctx, folderID)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return DriveErrorPrefix + err.Error(), nil
	}
	d.LastResult = res
	return truncate(res.Content, d.MaxChars), nil
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars]) +
		fmt.Sprintf("\n\n[... content truncated: %d of %d characters shown ...]", maxChars, len(runes))
}
