package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show control loop counters (requires admin privileges)",
		Args:  cobra.NoArgs,
		RunE:  a.runStats,
	}
}

func (a *app) runStats(cmd *cobra.Command, _ []string) error {
	ctx, cancel := a.context(cmd)
	defer cancel()

	if err := a.ensureAuthenticated(ctx); err != nil {
		return err
	}
	stats, err := a.client.AdminGetStats(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if a.jsonOutput {
		return writeJSON(out, stats)
	}
	fmt.Fprintf(out, "Uptime: %s\n", stats.Uptime)
	fmt.Fprintf(out, "Events Processed: %d\n", stats.EventsProcessed)
	fmt.Fprintf(out, "Routes Created: %d\n", stats.RoutesCreated)
	fmt.Fprintf(out, "Routes Removed: %d\n", stats.RoutesRemoved)
	fmt.Fprintf(out, "Route Errors: %d\n", stats.RouteErrors)
	fmt.Fprintf(out, "Route Failures: %d\n", stats.RouteFailures)
	fmt.Fprintf(out, "Allow Rejected: %d\n", stats.AllowRejected)
	fmt.Fprintf(out, "Duplicate Discoveries: %d\n", stats.DuplicateDiscoveries)
	return nil
}
