package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/httpclient"
)

func (a *app) newEventsCommand() *cobra.Command {
	var query httpclient.EventsQuery
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the route journal",
		Long:  "Show route creations, removals, failures and --allow rejections, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runEvents(cmd, query)
		},
	}
	cmd.Flags().StringVar(&query.Key, "key", "", "only show events for this route key")
	cmd.Flags().Int64Var(&query.Offset, "offset", 0, "first journal offset to show")
	cmd.Flags().IntVar(&query.Limit, "limit", 0, "maximum number of events (server default when 0)")
	return cmd
}

func (a *app) runEvents(cmd *cobra.Command, query httpclient.EventsQuery) error {
	if query.Offset < 0 || query.Limit < 0 {
		return fmt.Errorf("--offset and --limit cannot be negative")
	}
	ctx, cancel := a.context(cmd)
	defer cancel()

	if err := a.ensureAuthenticated(ctx); err != nil {
		return err
	}
	resp, err := a.client.ListEvents(ctx, query)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if a.jsonOutput {
		return writeJSON(out, resp)
	}
	if len(resp.Events) == 0 {
		fmt.Fprintln(out, "No events")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFSET\tTIME\tKIND\tDIRECTION\tKEY\tMESSAGE")
	for _, e := range resp.Events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Offset, e.Time.Format(time.RFC3339), e.Kind, e.Direction, e.Key, e.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nnext offset: %d\n", resp.NextOffset)
	return nil
}
