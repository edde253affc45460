package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"authkit/internal/session"
	"authkit/pkg/oauth"
)

var loginForce bool

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser",
		Long: `Sign in using the OAuth browser flow.

An existing session is restored first; the browser only opens when no
usable session exists (or --force is given).

Examples:
  authkit login            # Restore the session or sign in
  authkit login --force    # Always run the browser flow`,
		RunE: runLogin,
	}
	cmd.Flags().BoolVar(&loginForce, "force", false, "Sign in again even if a session exists")
	return cmd
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, _, err := buildManager()
	if err != nil {
		return err
	}
	defer manager.Close()

	manager.Bootstrap(cmd.Context())

	if !loginForce && manager.State() == session.StateAuthenticated {
		user := manager.CurrentUser()
		fmt.Fprintf(cmd.OutOrStdout(), "Already signed in as %s\n", user.Email)
		return nil
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Waiting for the browser sign-in to complete..."
	s.Start()

	err = manager.SignIn(cmd.Context())
	s.Stop()

	if errors.Is(err, oauth.ErrUserCancelled) {
		fmt.Fprintln(cmd.OutOrStdout(), "Sign-in cancelled.")
		return err
	}
	if err != nil {
		return err
	}

	user := manager.CurrentUser()
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", user.Email)
	return nil
}
