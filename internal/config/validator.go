package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rohankatakam/reqtaker/internal/errors"
)

// ValidationContext specifies what configuration a command needs.
type ValidationContext string

const (
	// ValidationContextRun covers run, train and test: Drive access plus an LLM key.
	ValidationContextRun ValidationContext = "run"
	// ValidationContextReplay needs only the LLM key; task outputs come from storage.
	ValidationContextReplay ValidationContext = "replay"
	// ValidationContextDrive covers login, drive check and serve-mcp.
	ValidationContextDrive ValidationContext = "drive"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
	Hints    []string
}

func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

func (vr *ValidationResult) addHint(hint string) {
	for _, h := range vr.Hints {
		if h == hint {
			return
		}
	}
	vr.Hints = append(vr.Hints, hint)
}

func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error renders the failures, warnings and setup hints for the console.
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  ❌ %s\n", err))
	}
	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  ⚠️  %s\n", warn))
		}
	}
	if len(vr.Hints) > 0 {
		sb.WriteString("\nTo fix:\n")
		for _, hint := range vr.Hints {
			sb.WriteString(fmt.Sprintf("  • %s\n", hint))
		}
	}
	return sb.String()
}

// Validate checks the configuration required by ctx.
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextRun:
		c.validateCredentialsFile(result)
		c.validateAPI(result)
		c.validateFolder(result)
		c.validatePipeline(result)
	case ValidationContextReplay:
		c.validateAPI(result)
		c.validatePipeline(result)
	case ValidationContextDrive:
		c.validateCredentialsFile(result)
	}
	return result
}

// Require returns a critical ConfigError when validation fails, nil otherwise.
func (c *Config) Require(ctx ValidationContext) error {
	result := c.Validate(ctx)
	if result.HasErrors() {
		return errors.ConfigError(result.Error())
	}
	return nil
}

func (c *Config) validateCredentialsFile(result *ValidationResult) {
	info, err := os.Stat(c.Drive.CredentialsFile)
	switch {
	case os.IsNotExist(err):
		result.AddError("Google credentials file not found: %s", c.Drive.CredentialsFile)
		result.addHint("Download an OAuth client (Desktop app) from Google Cloud Console and save it as " + c.Drive.CredentialsFile)
		result.addHint("Use credentials.json.example as a template")
	case err != nil:
		result.AddError("Cannot read credentials file %s: %v", c.Drive.CredentialsFile, err)
	case info.IsDir():
		result.AddError("Credentials path %s is a directory", c.Drive.CredentialsFile)
	}
}

func (c *Config) validateAPI(result *ValidationResult) {
	switch c.LLM.Provider {
	case "gemini":
		if c.LLM.GeminiKey == "" {
			result.AddError("GEMINI_API_KEY is required for model %s", c.LLM.Model)
			result.addHint("export GEMINI_API_KEY=... (or add it to .env)")
		}
	case "openai":
		if c.LLM.OpenAIKey == "" {
			result.AddError("OPENAI_API_KEY is not set")
			result.addHint("export OPENAI_API_KEY=sk-... (or add it to .env, or run: reqtaker configure)")
		}
	default:
		result.AddError("Unknown LLM_PROVIDER %q (expected openai or gemini)", c.LLM.Provider)
	}

	if c.LLM.Model == "" {
		result.AddWarning("MODEL is not set, using provider default")
	}
}

func (c *Config) validateFolder(result *ValidationResult) {
	if strings.TrimSpace(c.Drive.FolderID) == "" {
		result.AddError("GOOGLE_DRIVE_FOLDER_ID is not set and no folder ID was given")
		result.addHint("Pass the folder ID as an argument: reqtaker run <folder_id>")
		result.addHint("Or export GOOGLE_DRIVE_FOLDER_ID=<folder_id>")
	}
}

func (c *Config) validatePipeline(result *ValidationResult) {
	if c.Pipeline.MaxRPM <= 0 {
		result.AddWarning("MAX_RPM is %d, requests will not be rate limited", c.Pipeline.MaxRPM)
	}
}
