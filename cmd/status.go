package cmd

import (
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"authkit/internal/session"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session status",
		Long: `Show the current session: who is signed in, when the access token
expires, and which organization context is active.`,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	manager, _, err := buildManager()
	if err != nil {
		return err
	}
	defer manager.Close()

	manager.Bootstrap(cmd.Context())
	snap := manager.Snapshot()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)

	t.AppendRow(table.Row{text.FgHiCyan.Sprint("State"), formatState(snap.State)})

	if snap.User != nil {
		t.AppendRow(table.Row{text.FgHiCyan.Sprint("User"), snap.User.Sub})
		if snap.User.Email != "" {
			t.AppendRow(table.Row{text.FgHiCyan.Sprint("Email"), snap.User.Email})
		}
	}

	if !snap.TokensExpireAt.IsZero() {
		t.AppendRow(table.Row{text.FgHiCyan.Sprint("Token expires"), formatExpiry(snap.TokensExpireAt)})
	}

	if snap.Org != nil {
		t.AppendRow(table.Row{text.FgHiCyan.Sprint("Organization"), snap.Org.OrgID})
		t.AppendRow(table.Row{text.FgHiCyan.Sprint("Role"), snap.Org.Role})
		perms := make([]string, 0, len(snap.Org.Permissions))
		for _, p := range snap.Org.Permissions {
			perms = append(perms, string(p))
		}
		if len(perms) > 0 {
			t.AppendRow(table.Row{text.FgHiCyan.Sprint("Permissions"), joinLines(perms)})
		}
	}

	t.Render()
	return nil
}

func formatState(s session.State) string {
	switch s {
	case session.StateAuthenticated:
		return text.FgGreen.Sprint("Authenticated")
	case session.StateUnauthenticated:
		return text.FgYellow.Sprint("Not authenticated")
	default:
		return s.String()
	}
}

func formatExpiry(at time.Time) string {
	remaining := time.Until(at).Round(time.Second)
	if remaining <= 0 {
		return text.FgYellow.Sprintf("expired (%s)", at.Local().Format(time.RFC1123))
	}
	return at.Local().Format(time.RFC1123) + " (in " + remaining.String() + ")"
}

func joinLines(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += "\n"
		}
		out += item
	}
	return out
}
