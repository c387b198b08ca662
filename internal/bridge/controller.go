// Package bridge runs the control loop that turns discovery events into
// routes between the DDS bus and the overlay.
//
// The Controller owns the route table. Every table read and mutation, entity
// creation and teardown happens on the goroutine running Run; introspection
// calls are sent to that goroutine over a request channel.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/internal/datapath"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/internal/discovery"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/internal/eventlog"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/internal/qos"
	rtable "github.com/rmacdonaldsmith/zenoh-bridge-dds/internal/routingtable"
	bridgepkg "github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bridge"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bus"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/coder"
	eventlogpkg "github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/eventlog"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/overlay"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/routingtable"
)

var (
	// ErrAlreadyRunning is returned by a second call to Run
	ErrAlreadyRunning = errors.New("controller already running")
	// ErrNotRunning is returned by introspection calls after Run returned
	ErrNotRunning = errors.New("controller not running")
)

// subInfo is used for every overlay subscriber the bridge declares
var subInfo = overlay.SubInfo{Reliability: overlay.ReliabilityReliable, Mode: overlay.SubModePush}

// Controller is the bridge control loop
type Controller struct {
	config      Config
	participant bus.Participant
	session     overlay.Session
	coders      *coder.Registry
	events      <-chan discovery.Event
	logger      *slog.Logger
	metrics     *Metrics
	journal     eventlogpkg.EventLog

	table    *rtable.InMemoryRoutingTable
	requests chan request
	failures chan taskFailure
	started  atomic.Bool
	stopped  chan struct{}

	eventsProcessed atomic.Uint64
	routesCreated   atomic.Uint64
	routesRemoved   atomic.Uint64
	routeErrors     atomic.Uint64
	routeFailures   atomic.Uint64
	allowRejected   atomic.Uint64
	duplicates      atomic.Uint64
}

var _ bridgepkg.Bridge = (*Controller)(nil)

type request struct {
	fn   func()
	done chan struct{}
}

type taskFailure struct {
	key  string
	task *forwardTask
	err  error
}

// forwardTask is the handle on one overlay-to-bus goroutine
type forwardTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop cancels the task and waits for it to return
func (t *forwardTask) Stop() {
	t.cancel()
	<-t.done
}

// NewController creates a controller. The config is copied.
func NewController(cfg Config, deps Dependencies) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bridge config: %w", err)
	}
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bridge dependencies: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	journal := deps.Journal
	if journal == nil {
		journal = eventlog.NewInMemoryEventLog(eventlog.DefaultRetention)
	}

	return &Controller{
		config:      cfg,
		participant: deps.Participant,
		session:     deps.Session,
		coders:      deps.Coders,
		events:      deps.Events,
		logger:      logger.With("component", "bridge"),
		metrics:     metrics,
		journal:     journal,
		table:       rtable.NewInMemoryRoutingTable(),
		requests:    make(chan request),
		failures:    make(chan taskFailure),
		stopped:     make(chan struct{}),
	}, nil
}

// Metrics returns the controller's collectors
func (c *Controller) Metrics() *Metrics {
	return c.metrics
}

// Run processes discovery events until the event channel closes, returning
// nil, or ctx is cancelled, returning ctx.Err(). Every route is torn down
// before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	c.logger.Info("bridge started", "scope", c.config.Scope, "domain", c.participant.DomainID(),
		"session", c.session.ID())

	defer func() {
		c.teardownAll()
		close(c.stopped)
		c.logger.Info("bridge stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-c.events:
			if !ok {
				return nil
			}
			c.handle(ctx, e)
		case req := <-c.requests:
			req.fn()
			close(req.done)
		case f := <-c.failures:
			c.onTaskFailure(f)
		}
	}
}

func (c *Controller) handle(ctx context.Context, e discovery.Event) {
	c.eventsProcessed.Add(1)
	c.metrics.DiscoveryEvents.WithLabelValues(e.Kind.String()).Inc()

	switch e.Kind {
	case discovery.DiscoveredPublication:
		c.onDiscovered(ctx, routingtable.Publication, e)
	case discovery.DiscoveredSubscription:
		c.onDiscovered(ctx, routingtable.Subscription, e)
	case discovery.UndiscoveredPublication:
		c.onUndiscovered(ctx, routingtable.Publication, e)
	case discovery.UndiscoveredSubscription:
		c.onUndiscovered(ctx, routingtable.Subscription, e)
	}
}

func (c *Controller) onDiscovered(ctx context.Context, dir routingtable.Direction, e discovery.Event) {
	key := RouteKey(c.config.Scope, e.Partition, e.TopicName)
	logger := c.logger.With("key", key, "topic", e.TopicName, "type", e.TypeName, "partition", e.PartitionName())

	if !c.config.Allowed(key) {
		c.allowRejected.Add(1)
		c.metrics.AllowRejected.Inc()
		logger.Info("ignoring "+dir.String()+" not matching --allow")
		c.record(eventlogpkg.AllowRejected, dir, key, e, "")
		return
	}

	if r, ok := c.table.Lookup(dir, key); ok {
		r.AddEndpoint(e.Endpoint)
		c.duplicates.Add(1)
		c.metrics.Duplicates.Inc()
		logger.Debug("already forwarding", "direction", dir.String(), "endpoints", r.EndpointCount())
		return
	}

	var (
		route *routingtable.Route
		err   error
	)
	if dir == routingtable.Publication {
		route, err = c.createPublication(ctx, key, e)
	} else {
		route, err = c.createSubscription(ctx, key, e)
	}
	if err != nil {
		c.routeErrors.Add(1)
		c.metrics.RouteErrors.WithLabelValues(dir.String()).Inc()
		logger.Error("failed to create route", "direction", dir.String(), "error", err)
		c.record(eventlogpkg.RouteError, dir, key, e, err.Error())
		return
	}

	route.AddEndpoint(e.Endpoint)
	if err := c.table.Insert(route); err != nil {
		// Lookup above makes this unreachable; undo rather than leak.
		c.teardown(route)
		logger.Error("failed to record route", "error", err)
		return
	}
	c.routesCreated.Add(1)
	c.updateRouteGauge()
	c.record(eventlogpkg.RouteCreated, dir, key, e, "")

	if dir == routingtable.Publication {
		logger.Info("new route: DDS => overlay")
	} else {
		logger.Info("new route: overlay => DDS")
	}
}

// undoStack runs cleanups in reverse order
type undoStack []func()

func (u *undoStack) push(f func()) { *u = append(*u, f) }

func (u undoStack) run() {
	for i := len(u) - 1; i >= 0; i-- {
		u[i]()
	}
}

func discoveredQoS(e discovery.Event) bus.QoS {
	if e.QoS == nil {
		return bus.DefaultQoS()
	}
	return *e.QoS
}

func (c *Controller) createPublication(ctx context.Context, key string, e discovery.Event) (*routingtable.Route, error) {
	route := routingtable.NewRoute(routingtable.Publication, key, e.TopicName, e.TypeName, e.Partition)
	var undo undoStack
	fail := func(err error) (*routingtable.Route, error) {
		undo.run()
		return nil, err
	}

	rid, err := c.session.DeclareResource(ctx, key)
	if err != nil {
		return fail(fmt.Errorf("declare resource: %w", err))
	}
	route.Resource = rid
	undo.push(func() { _ = c.session.UndeclareResource(context.Background(), rid) })

	pub, err := c.session.DeclarePublisher(ctx, rid)
	if err != nil {
		return fail(fmt.Errorf("declare publisher: %w", err))
	}
	route.Publisher = pub
	undo.push(func() { _ = pub.Close() })

	enc, err := c.coders.NewEncoder(e.TopicName, e.TypeName, datapath.NewOverlayWriter(c.session, rid))
	if err != nil {
		return fail(fmt.Errorf("create encoder: %w", err))
	}
	route.Encoder = enc
	undo.push(func() { _ = enc.Close() })

	topic, err := c.participant.CreateBlobTopic(e.TopicName, e.TypeName, e.Keyless)
	if err != nil {
		return fail(fmt.Errorf("create topic: %w", err))
	}
	q := qos.ForReader(discoveredQoS(e))
	reader, err := c.participant.CreateReader(topic, &q, datapath.NewBusToOverlay(key, enc, c.metrics, c.logger))
	if err != nil {
		return fail(fmt.Errorf("create reader: %w", err))
	}
	route.Reader = reader
	return route, nil
}

func (c *Controller) createSubscription(ctx context.Context, key string, e discovery.Event) (*routingtable.Route, error) {
	route := routingtable.NewRoute(routingtable.Subscription, key, e.TopicName, e.TypeName, e.Partition)
	var undo undoStack
	fail := func(err error) (*routingtable.Route, error) {
		undo.run()
		return nil, err
	}

	topic, err := c.participant.CreateBlobTopic(e.TopicName, e.TypeName, e.Keyless)
	if err != nil {
		return fail(fmt.Errorf("create topic: %w", err))
	}
	q := qos.ForWriter(discoveredQoS(e))
	writer, err := c.participant.CreateWriter(topic, &q)
	if err != nil {
		return fail(fmt.Errorf("create writer: %w", err))
	}
	route.Writer = writer
	undo.push(func() { _ = writer.Close() })

	dec, err := c.coders.NewDecoder(e.TopicName, e.TypeName, datapath.NewBusWriter(writer))
	if err != nil {
		return fail(fmt.Errorf("create decoder: %w", err))
	}
	route.Decoder = dec
	undo.push(func() { _ = dec.Close() })

	sub, err := c.session.DeclareSubscriber(ctx, key, subInfo)
	if err != nil {
		return fail(fmt.Errorf("declare subscriber: %w", err))
	}
	route.Subscriber = sub

	task := datapath.NewOverlayToBus(key, sub, dec, c.metrics, c.logger)
	route.Task = c.startTask(ctx, key, task)
	return route, nil
}

func (c *Controller) startTask(ctx context.Context, key string, task *datapath.OverlayToBus) *forwardTask {
	taskCtx, cancel := context.WithCancel(ctx)
	ft := &forwardTask{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(ft.done)
		err := task.Run(taskCtx)
		if err == nil {
			return
		}
		select {
		case c.failures <- taskFailure{key: key, task: ft, err: err}:
		case <-taskCtx.Done():
		}
	}()
	return ft
}

func (c *Controller) onTaskFailure(f taskFailure) {
	route, ok := c.table.Lookup(routingtable.Subscription, f.key)
	if !ok || route.Task != f.task {
		return
	}
	route.MarkFailed(f.err)
	c.routeFailures.Add(1)
	c.metrics.RouteFailures.Inc()
	c.updateRouteGauge()
	c.logger.Error("forwarding task ended, route failed", "key", f.key, "topic", route.TopicName,
		"type", route.TypeName, "partition", route.PartitionName(), "error", f.err)
	c.recordRoute(eventlogpkg.RouteFailed, route, f.err.Error())
}

// record appends a journal entry for a discovery event
func (c *Controller) record(kind eventlogpkg.Kind, dir routingtable.Direction, key string, e discovery.Event, msg string) {
	c.appendJournal(eventlogpkg.Event{
		Kind:      kind,
		Key:       key,
		Direction: dir.String(),
		Topic:     e.TopicName,
		Type:      e.TypeName,
		Partition: e.PartitionName(),
		Message:   msg,
	})
}

// recordRoute appends a journal entry for an existing route
func (c *Controller) recordRoute(kind eventlogpkg.Kind, r *routingtable.Route, msg string) {
	c.appendJournal(eventlogpkg.Event{
		Kind:      kind,
		Key:       r.Key,
		Direction: r.Direction.String(),
		Topic:     r.TopicName,
		Type:      r.TypeName,
		Partition: r.PartitionName(),
		Message:   msg,
	})
}

func (c *Controller) appendJournal(e eventlogpkg.Event) {
	if _, err := c.journal.AppendEvent(context.Background(), e); err != nil {
		c.logger.Debug("journal append failed", "kind", string(e.Kind), "key", e.Key, "error", err)
	}
}

func (c *Controller) onUndiscovered(ctx context.Context, dir routingtable.Direction, e discovery.Event) {
	key := RouteKey(c.config.Scope, e.Partition, e.TopicName)
	logger := c.logger.With("key", key, "topic", e.TopicName, "type", e.TypeName, "partition", e.PartitionName())

	route, ok := c.table.Lookup(dir, key)
	if !ok || !route.RemoveEndpoint(e.Endpoint) {
		logger.Debug("undiscovered endpoint without route", "direction", dir.String())
		return
	}
	logger.Debug("endpoint undiscovered", "direction", dir.String(), "remaining", route.EndpointCount())
	if route.EndpointCount() > 0 {
		return
	}

	c.table.Delete(dir, key)
	c.teardown(route)
	c.routesRemoved.Add(1)
	c.updateRouteGauge()
	c.recordRoute(eventlogpkg.RouteRemoved, route, "")
	logger.Info("route removed", "direction", dir.String())
}

// teardown releases a route's entities in dependency order
func (c *Controller) teardown(r *routingtable.Route) {
	var errs []error
	closeIt := func(what string, f func() error) {
		if err := f(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}

	switch r.Direction {
	case routingtable.Publication:
		if r.Reader != nil {
			closeIt("reader", r.Reader.Close)
		}
		if r.Encoder != nil {
			closeIt("encoder", r.Encoder.Close)
		}
		if r.Publisher != nil {
			closeIt("publisher", r.Publisher.Close)
		}
		closeIt("resource", func() error {
			return c.session.UndeclareResource(context.Background(), r.Resource)
		})
	case routingtable.Subscription:
		if r.Task != nil {
			r.Task.Stop()
		}
		if r.Subscriber != nil {
			closeIt("subscriber", r.Subscriber.Close)
		}
		if r.Decoder != nil {
			closeIt("decoder", r.Decoder.Close)
		}
		if r.Writer != nil {
			closeIt("writer", r.Writer.Close)
		}
	}

	if err := errors.Join(errs...); err != nil {
		c.logger.Warn("route teardown incomplete", "key", r.Key, "direction", r.Direction.String(), "error", err)
	}
}

func (c *Controller) teardownAll() {
	for _, dir := range []routingtable.Direction{routingtable.Subscription, routingtable.Publication} {
		for _, r := range c.table.Routes(dir) {
			c.table.Delete(dir, r.Key)
			c.teardown(r)
		}
	}
	c.updateRouteGauge()
}

func (c *Controller) updateRouteGauge() {
	for _, dir := range []routingtable.Direction{routingtable.Publication, routingtable.Subscription} {
		counts := map[routingtable.State]int{}
		for _, r := range c.table.Routes(dir) {
			counts[r.State]++
		}
		for _, st := range []routingtable.State{routingtable.StateActive, routingtable.StateFailed} {
			c.metrics.Routes.WithLabelValues(dir.String(), st.String()).Set(float64(counts[st]))
		}
	}
}

// call runs fn on the control loop
func (c *Controller) call(ctx context.Context, fn func()) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case c.requests <- req:
	case <-c.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Routes returns every route, publications first, each sorted by key
func (c *Controller) Routes(ctx context.Context) ([]bridgepkg.RouteInfo, error) {
	var out []bridgepkg.RouteInfo
	err := c.call(ctx, func() {
		out = c.routeInfos()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Controller) routeInfos() []bridgepkg.RouteInfo {
	out := make([]bridgepkg.RouteInfo, 0, c.table.Count(routingtable.Publication)+c.table.Count(routingtable.Subscription))
	for _, dir := range []routingtable.Direction{routingtable.Publication, routingtable.Subscription} {
		for _, r := range c.table.Routes(dir) {
			info := bridgepkg.RouteInfo{
				Key:       r.Key,
				Direction: r.Direction.String(),
				Topic:     r.TopicName,
				Type:      r.TypeName,
				Partition: r.PartitionName(),
				State:     r.State.String(),
				Endpoints: r.EndpointCount(),
				CreatedAt: r.CreatedAt,
			}
			if r.Err != nil {
				info.Error = r.Err.Error()
			}
			out = append(out, info)
		}
	}
	return out
}

// Events reads the route journal. It does not go through the control loop
// and keeps working after Run returns.
func (c *Controller) Events(ctx context.Context, key string, offset int64, limit int) ([]eventlogpkg.Event, error) {
	return c.journal.ReadEvents(ctx, key, offset, limit)
}

// Health returns the bridge health. A stopped controller is reported
// unhealthy rather than as an error.
func (c *Controller) Health(ctx context.Context) (bridgepkg.HealthStatus, error) {
	status := bridgepkg.HealthStatus{
		SessionID:      c.session.ID(),
		DomainID:       c.participant.DomainID(),
		ConnectedPeers: len(c.session.Info().Peers),
	}

	err := c.call(ctx, func() {
		status.Publications = c.table.Count(routingtable.Publication)
		status.Subscriptions = c.table.Count(routingtable.Subscription)
		for _, dir := range []routingtable.Direction{routingtable.Publication, routingtable.Subscription} {
			for _, r := range c.table.Routes(dir) {
				if r.State == routingtable.StateFailed {
					status.FailedRoutes++
				}
			}
		}
	})
	switch {
	case errors.Is(err, ErrNotRunning):
		status.Message = "control loop stopped"
		return status, nil
	case err != nil:
		return bridgepkg.HealthStatus{}, err
	}

	status.Running = true
	status.Healthy = status.FailedRoutes == 0
	if !status.Healthy {
		status.Message = fmt.Sprintf("%d route(s) failed", status.FailedRoutes)
	}
	return status, nil
}

// Stats returns the control loop counters
func (c *Controller) Stats() bridgepkg.Stats {
	return bridgepkg.Stats{
		EventsProcessed:      c.eventsProcessed.Load(),
		RoutesCreated:        c.routesCreated.Load(),
		RoutesRemoved:        c.routesRemoved.Load(),
		RouteErrors:          c.routeErrors.Load(),
		RouteFailures:        c.routeFailures.Load(),
		AllowRejected:        c.allowRejected.Load(),
		DuplicateDiscoveries: c.duplicates.Load(),
	}
}
