package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/reqtaker/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Interactive setup: OpenAI key in the OS keychain, model and defaults",
	Long: `Walk through reqtaker setup.

1. OpenAI API key (stored in the OS keychain, never in the config file)
2. Model (gpt-4o by default)
3. Default Google Drive folder and credentials file

Settings are written to .reqtaker/reqtaker.yaml unless --config is given.`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	reader := bufio.NewReader(os.Stdin)
	ask := func(prompt, current string) string {
		if current != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, current)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		line, err := config.ReadLine(reader)
		if err != nil || line == "" {
			return current
		}
		return line
	}

	fmt.Fprintln(out, "🔧 Requirements Taker setup")
	fmt.Fprintln(out, strings.Repeat("━", 32))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Step 1/3: OpenAI API key")
	km := config.NewKeyringManager()
	source := km.GetAPIKeySource(cfg)
	fmt.Fprintf(out, "Current: %s (%s)\n", config.MaskAPIKey(cfg.LLM.OpenAIKey), source.Recommended)

	if !km.IsAvailable() {
		fmt.Fprintln(out, "⚠️  OS keychain not available; export OPENAI_API_KEY instead.")
	} else {
		key, err := config.ReadSecret(out, "New key (Enter to keep): ")
		if err != nil {
			return err
		}
		if key != "" {
			if err := config.ValidateOpenAIKey(key); err != nil {
				return err
			}
			if err := km.SaveAPIKey(key); err != nil {
				return err
			}
			fmt.Fprintln(out, "✅ API key saved to OS keychain")
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Step 2/3: Model")
	cfg.LLM.Model = ask("Model", cfg.LLM.Model)
	cfg.LLM.Provider = config.ProviderForModel(cfg.LLM.Model)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Step 3/3: Google Drive")
	cfg.Drive.FolderID = ask("Default folder ID", cfg.Drive.FolderID)
	cfg.Drive.CredentialsFile = ask("OAuth credentials file", cfg.Drive.CredentialsFile)

	path := cfgFile
	if path == "" {
		path = filepath.Join(".reqtaker", "reqtaker.yaml")
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n✅ Configuration saved to %s\n", path)
	fmt.Fprintln(out, "   Next: reqtaker login")
	return nil
}
