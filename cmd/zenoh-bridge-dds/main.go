// Command zenoh-bridge-dds bridges DDS publications and subscriptions onto
// the overlay network.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/internal/bridge"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/internal/bus/memory"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/internal/coders"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/internal/config"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/internal/discovery"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/internal/eventlog"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/internal/httpapi"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/internal/overlay/grpclink"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bus"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/coder"
)

const (
	appName    = "zenoh-bridge-dds"
	appVersion = "0.1.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	cmd := newRootCmd(os.Args[0], inProcessParticipant)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// participantFunc joins a DDS domain. A build linking a DDS binding passes
// one backed by that binding to newRootCmd.
type participantFunc func(domainID uint32) (bus.Participant, error)

// inProcessParticipant joins a domain that exists only inside this process.
// Participants of other processes are never discovered through it.
func inProcessParticipant(domainID uint32) (bus.Participant, error) {
	p, err := memory.NewDomain(domainID).CreateParticipant()
	if err != nil {
		return nil, err
	}
	return p, nil
}

const longHelp = `Bridge DDS publications and subscriptions to the overlay.

Every DDS publication discovered on the domain gets an overlay resource
under "{scope}/{partition}/{topic}", and every DDS subscription gets an
overlay subscriber on the same key.

This build joins DDS domains through the in-process bus runtime: only
entities created inside this process are discovered, and DDS participants
of other processes are not visible. Bridging an external DDS network needs
a build that links a DDS binding implementing the bus participant
interface.`

func newRootCmd(argv0 string, newParticipant participantFunc) *cobra.Command {
	opts := config.NewOptions()
	var joinPubs, joinSubs string

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Bridge DDS publications and subscriptions to the overlay",
		Long:          longHelp,
		Version:       appVersion,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.Peers = config.SplitList(opts.Peers)
			opts.Listeners = config.SplitList(opts.Listeners)
			opts.JoinPublications = config.SplitList([]string{joinPubs})
			opts.JoinSubscriptions = config.SplitList([]string{joinSubs})
			return run(cmd.Context(), opts, argv0, newParticipant, cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&opts.Peers, "peer", "e", nil, "peer locator to connect to, repeatable or comma-separated (e.g. tcp/10.0.0.1:7447)")
	f.StringArrayVarP(&opts.Listeners, "listener", "l", nil, "locator to listen on, repeatable or comma-separated (e.g. tcp/0.0.0.0:7447)")
	f.StringVarP(&opts.ConfigFile, "config", "c", "", "YAML session configuration file")
	f.StringVarP(&opts.Scope, "scope", "s", "", "prefix prepended to every overlay key")
	f.StringVarP(&joinPubs, "generalise-pub", "w", "", "comma-separated key expressions used to generalise publications")
	f.StringVarP(&joinSubs, "generalise-sub", "r", "", "comma-separated key expressions used to generalise subscriptions")
	f.StringVarP(&opts.Mode, "mode", "m", "", "overlay session mode: peer or client (default peer)")
	f.BoolVar(&opts.NoMulticastScouting, "no-multicast-scouting", false, "disable multicast scouting")
	f.StringVarP(&opts.Domain, "domain", "d", "", "DDS domain id (default $ROS_DOMAIN_ID, else the runtime default)")
	f.StringVarP(&opts.Allow, "allow", "a", "", "regular expression a route key must match to be bridged")
	f.StringVar(&opts.CodersFile, "coders", "", "YAML coder configuration file")
	f.StringVar(&opts.AdminListen, "admin-listen", "", "admin HTTP API address (e.g. :8000); empty disables it")
	f.StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn or error (default $BRIDGE_LOG_LEVEL, else info)")

	return cmd
}

// deprecationWarning returns the warning printed when the binary runs under
// its former name
func deprecationWarning(argv0 string) string {
	if filepath.Base(argv0) != "dzd" {
		return ""
	}
	return "'dzd' is deprecated, please use '" + appName + "' instead"
}

// run wires the bridge and blocks until ctx is done or a component fails.
// Option errors are returned before anything is opened.
func run(ctx context.Context, opts *config.Options, argv0 string, newParticipant participantFunc, stderr io.Writer) error {
	if err := opts.ParseEnv(); err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	overlayCfg, err := opts.Overlay()
	if err != nil {
		return err
	}
	bridgeCfg := bridge.NewConfig(opts.Scope)
	bridgeCfg.Allow = opts.AllowRE
	if err := bridgeCfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: opts.Level}))
	slog.SetDefault(logger)
	if msg := deprecationWarning(argv0); msg != "" {
		logger.Warn(msg)
	}

	registry := coder.NewRegistry()
	if opts.CodersFile != "" {
		codersCfg, err := coders.LoadConfig(opts.CodersFile)
		if err != nil {
			return err
		}
		if err := coders.Apply(registry, codersCfg, logger); err != nil {
			return err
		}
	}

	participant, err := newParticipant(opts.DomainID)
	if err != nil {
		return fmt.Errorf("create participant: %w", err)
	}
	defer participant.Close()

	linkCfg := grpclink.NewConfig(overlayCfg)
	linkCfg.Logger = logger
	session, err := grpclink.Open(ctx, linkCfg)
	if err != nil {
		return fmt.Errorf("open overlay session: %w", err)
	}
	defer session.Close()

	metrics := bridge.NewMetrics()
	journal := eventlog.NewInMemoryEventLog(eventlog.DefaultRetention)
	defer journal.Close()

	events := discovery.NewEventChannel(discovery.DefaultChannelCapacity)
	controller, err := bridge.NewController(*bridgeCfg, bridge.Dependencies{
		Participant: participant,
		Session:     session,
		Coders:      registry,
		Events:      events.C(),
		Logger:      logger,
		Metrics:     metrics,
		Journal:     journal,
	})
	if err != nil {
		return err
	}

	observer := discovery.NewObserver(participant, events, logger, discovery.WithLostCounter(metrics.DiscoveryLost))
	if err := observer.Start(); err != nil {
		return fmt.Errorf("start discovery: %w", err)
	}
	defer func() {
		_ = observer.Close()
		events.Close()
	}()

	logger.Info("bridge started",
		"version", appVersion,
		"session", session.ID(),
		"domain", participant.DomainID(),
		"scope", opts.Scope,
		"mode", string(overlayCfg.Mode))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := controller.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if opts.AdminListen != "" {
		admin := httpapi.NewServer(controller, metrics.Registry(), httpapi.Config{
			Addr:        opts.AdminListen,
			AdminSecret: opts.AdminSecret,
			Logger:      logger,
		})
		g.Go(func() error { return admin.ListenAndServe(gctx) })
	}

	err = g.Wait()
	logger.Info("bridge stopped", "error", err)
	return err
}
