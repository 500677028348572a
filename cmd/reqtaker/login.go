package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/reqtaker/internal/auth"
	"github.com/rohankatakam/reqtaker/internal/config"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize read-only access to Google Drive",
	Long: `Open the browser to grant read-only Google Drive access and save the token
to GOOGLE_TOKEN_FILE (token.json by default). Later runs refresh it silently.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved Google token",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	if err := requireConfig(config.ValidationContextDrive); err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	a, err := auth.NewAuthenticator(cfg.Drive.CredentialsFile, cfg.Drive.TokenFile, cmd.ErrOrStderr(), cfg.Drive.AuthTimeout)
	if err != nil {
		return err
	}
	tok, err := a.Login(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Google Drive authorized; token saved to %s\n", cfg.Drive.TokenFile)
	if !tok.Expiry.IsZero() {
		fmt.Fprintf(cmd.OutOrStdout(), "   Access token valid until %s\n", tok.Expiry.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := auth.NewTokenStore(cfg.Drive.TokenFile).Delete(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Removed %s\n", cfg.Drive.TokenFile)
	return nil
}
