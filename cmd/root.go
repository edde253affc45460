package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"authkit/pkg/oauth"
)

// Exit codes for CLI commands. These follow common conventions so scripts
// can branch on the outcome.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the sign-in flow failed or was cancelled.
	ExitCodeAuthFailed = 3
)

// Root-level flags shared by all subcommands.
var (
	configPath string
	debugMode  bool
)

// rootCmd represents the base command for the authkit application.
var rootCmd = &cobra.Command{
	Use:   "authkit",
	Short: "Manage a local authentication session for a WorkOS-backed application",
	Long: `authkit signs you in through the browser using the OAuth 2.0
Authorization Code flow with PKCE, keeps the session fresh with rotating
refresh tokens, and persists it locally so you stay signed in across
restarts, even offline.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "authkit version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps the error taxonomy to semantic exit codes.
func getExitCode(err error) int {
	if errors.Is(err, oauth.ErrNotAuthenticated) {
		return ExitCodeAuthRequired
	}
	if errors.Is(err, oauth.ErrUserCancelled) || errors.Is(err, oauth.ErrFlowInProgress) {
		return ExitCodeAuthFailed
	}

	var netErr *oauth.NetworkError
	var respErr *oauth.InvalidResponseError
	var refreshErr *oauth.TokenRefreshError
	if errors.As(err, &netErr) || errors.As(err, &respErr) || errors.As(err, &refreshErr) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/authkit/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newOrgsCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newVersionCmd())
}
