// Command bridgectl queries the admin API of a running zenoh-bridge-dds.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/httpclient"
)

// app holds the global flags and the client built from them
type app struct {
	serverURL   string
	clientID    string
	adminSecret string
	token       string
	timeout     time.Duration
	jsonOutput  bool

	client *httpclient.Client
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "bridgectl",
		Short: "zenoh-bridge-dds admin API command line interface",
		Long: `bridgectl is a command line interface for the zenoh-bridge-dds admin API.
It lists the bridge's routes and reports its health and control loop counters.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.initializeClient,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.serverURL, "server", "http://localhost:8000", "bridge admin API URL")
	pf.StringVar(&a.clientID, "client-id", "bridgectl", "client ID for authentication")
	pf.StringVar(&a.adminSecret, "admin-secret", os.Getenv("BRIDGE_ADMIN_SECRET"), "admin secret, required for stats (default $BRIDGE_ADMIN_SECRET)")
	pf.StringVar(&a.token, "token", os.Getenv("BRIDGE_TOKEN"), "JWT token from a previous 'bridgectl auth' (default $BRIDGE_TOKEN)")
	pf.DurationVar(&a.timeout, "timeout", 10*time.Second, "request timeout")
	pf.BoolVar(&a.jsonOutput, "json", false, "print responses as JSON")

	rootCmd.AddCommand(a.newAuthCommand())
	rootCmd.AddCommand(a.newRoutesCommand())
	rootCmd.AddCommand(a.newEventsCommand())
	rootCmd.AddCommand(a.newHealthCommand())
	rootCmd.AddCommand(a.newStatsCommand())
	return rootCmd
}

// initializeClient sets up the HTTP client with global configuration
func (a *app) initializeClient(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "help" || cmd.Parent() == nil {
		return nil
	}

	client, err := httpclient.NewClient(httpclient.Config{
		ServerURL:   a.serverURL,
		ClientID:    a.clientID,
		AdminSecret: a.adminSecret,
		Timeout:     a.timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	if a.token != "" {
		client.SetToken(a.token)
	}
	a.client = client
	return nil
}

// ensureAuthenticated logs in unless a token was provided
func (a *app) ensureAuthenticated(ctx context.Context) error {
	if a.client.IsAuthenticated() {
		return nil
	}
	return a.client.Authenticate(ctx)
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, a.timeout)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
