package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token",
		Long: `Print an access token guaranteed to be valid for at least a minute,
refreshing it first when needed. Intended for piping into other tools:

  curl -H "Authorization: Bearer $(authkit token)" ...`,
		RunE: runToken,
	}
}

func runToken(cmd *cobra.Command, args []string) error {
	manager, _, err := buildManager()
	if err != nil {
		return err
	}
	defer manager.Close()

	manager.Bootstrap(cmd.Context())

	token, err := manager.ValidAccessToken(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
