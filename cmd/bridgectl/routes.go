package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (a *app) newRoutesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the bridge's routes",
		Long:  "List every route between the DDS bus and the overlay, with its state and endpoint count",
		Args:  cobra.NoArgs,
		RunE:  a.runRoutes,
	}
}

func (a *app) runRoutes(cmd *cobra.Command, _ []string) error {
	ctx, cancel := a.context(cmd)
	defer cancel()

	if err := a.ensureAuthenticated(ctx); err != nil {
		return err
	}
	resp, err := a.client.ListRoutes(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if a.jsonOutput {
		return writeJSON(out, resp)
	}
	if len(resp.Routes) == 0 {
		fmt.Fprintln(out, "No routes")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DIRECTION\tKEY\tTYPE\tSTATE\tENDPOINTS")
	for _, r := range resp.Routes {
		state := r.State
		if r.Error != "" {
			state += ": " + r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", r.Direction, r.Key, r.Type, state, r.Endpoints)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d publication(s), %d subscription(s)\n", resp.Publications, resp.Subscriptions)
	return nil
}
