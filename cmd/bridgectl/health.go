package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errUnhealthy makes bridgectl exit non-zero for an unhealthy bridge
var errUnhealthy = errors.New("bridge is not healthy")

func (a *app) newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check bridge health",
		Long:  "Check the health of the bridge. Exits non-zero when it is unhealthy.",
		Args:  cobra.NoArgs,
		RunE:  a.runHealth,
	}
}

func (a *app) runHealth(cmd *cobra.Command, _ []string) error {
	ctx, cancel := a.context(cmd)
	defer cancel()

	health, err := a.client.GetHealth(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if a.jsonOutput {
		if err := writeJSON(out, health); err != nil {
			return err
		}
	} else {
		status := "healthy"
		if !health.Healthy {
			status = "NOT healthy"
		}
		fmt.Fprintf(out, "Bridge is %s\n", status)
		fmt.Fprintf(out, "Running: %t\n", health.Running)
		fmt.Fprintf(out, "Session: %s\n", health.SessionID)
		fmt.Fprintf(out, "Domain: %d\n", health.DomainID)
		fmt.Fprintf(out, "Connected Peers: %d\n", health.ConnectedPeers)
		fmt.Fprintf(out, "Routes: %d publication(s), %d subscription(s), %d failed\n",
			health.Publications, health.Subscriptions, health.FailedRoutes)
		if health.Message != "" {
			fmt.Fprintf(out, "Message: %s\n", health.Message)
		}
	}

	if !health.Healthy {
		return errUnhealthy
	}
	return nil
}
