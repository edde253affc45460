package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"authkit/pkg/oauth"
)

func newOrgsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orgs",
		Short: "Manage the active organization context",
	}
	cmd.AddCommand(newOrgsSwitchCmd())
	cmd.AddCommand(newOrgsRefreshCmd())
	return cmd
}

func newOrgsSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <workos-org-id>",
		Short: "Switch to an organization",
		Long: `Switch the session to an organization.

The backend exchanges your identity for an organization-scoped role and
permission set. Requires a configured backendUrl and an active session.`,
		Args: cobra.ExactArgs(1),
		RunE: runOrgsSwitch,
	}
}

func runOrgsSwitch(cmd *cobra.Command, args []string) error {
	manager, _, err := buildManager()
	if err != nil {
		return err
	}
	defer manager.Close()

	manager.Bootstrap(cmd.Context())

	org, err := manager.SwitchOrganization(cmd.Context(), oauth.Organization{WorkOSOrgID: args[0]})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Switched to organization %s (role: %s)\n", org.OrgID, org.Role)
	return nil
}

func newOrgsRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the active organization session",
		Long: `Re-run the organization exchange for the active organization,
picking up role or permission changes made on the backend.`,
		RunE: runOrgsRefresh,
	}
}

func runOrgsRefresh(cmd *cobra.Command, args []string) error {
	manager, _, err := buildManager()
	if err != nil {
		return err
	}
	defer manager.Close()

	manager.Bootstrap(cmd.Context())

	org, err := manager.RefreshOrgSession(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Refreshed organization %s (role: %s)\n", org.OrgID, org.Role)
	return nil
}
