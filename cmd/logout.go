package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and delete the persisted session",
		Long: `Sign out of the current session.

This clears the in-memory session and deletes all persisted credentials,
including the offline session snapshot. It succeeds even when no session
exists.`,
		RunE: runLogout,
	}
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, _, err := buildManager()
	if err != nil {
		return err
	}
	defer manager.Close()

	manager.SignOut()
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
	return nil
}
