package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) newAuthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with the bridge admin API",
		Long: `Authenticate with the bridge admin API and print a JWT token for later requests.
The token carries admin rights when --admin-secret matches the bridge's secret.`,
		Args: cobra.NoArgs,
		RunE: a.runAuth,
	}
}

func (a *app) runAuth(cmd *cobra.Command, _ []string) error {
	ctx, cancel := a.context(cmd)
	defer cancel()

	if err := a.client.Authenticate(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if a.jsonOutput {
		return writeJSON(out, map[string]any{
			"token":   a.client.GetToken(),
			"isAdmin": a.client.IsAdmin(),
		})
	}

	role := "viewer"
	if a.client.IsAdmin() {
		role = "admin"
	}
	fmt.Fprintf(out, "Authenticated with %s as %s (%s)\n", a.serverURL, a.clientID, role)
	fmt.Fprintf(out, "Token: %s\n", a.client.GetToken())
	fmt.Fprintf(out, "\nReuse it with:\n  export BRIDGE_TOKEN=%q\n", a.client.GetToken())
	return nil
}
