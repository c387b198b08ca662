// Package discovery turns the bus's built-in discovery samples into bridge
// events.
//
// The Observer listens on the built-in publication and subscription topics
// of the bridge's own participant. It runs on the bus dispatch goroutine, so
// it never blocks: events go through EventChannel.TrySend and are counted as
// lost when the channel is full.
package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bus"
)

// MaxSamples is the number of discovery samples taken per read
const MaxSamples = 32

// ErrAlreadyStarted is returned by a second call to Start
var ErrAlreadyStarted = errors.New("observer already started")

// ObserverOption configures an Observer
type ObserverOption func(*Observer)

// WithLostCounter counts lost events on c as well as internally
func WithLostCounter(c prometheus.Counter) ObserverOption {
	return func(o *Observer) { o.lostCounter = c }
}

// Observer classifies discovery samples into Events
type Observer struct {
	participant bus.Participant
	events      *EventChannel
	logger      *slog.Logger
	lostCounter prometheus.Counter

	mu      sync.Mutex
	readers []bus.DiscoveryReader
	started bool
	// alive holds the last alive sample per endpoint, used to fill in the
	// key-only samples that announce disposal.
	alive map[bus.EndpointKey]bus.DiscoverySample

	lost     atomic.Uint64
	lostLog  rate.Sometimes
	observed atomic.Uint64
}

// NewObserver creates an observer publishing into events
func NewObserver(participant bus.Participant, events *EventChannel, logger *slog.Logger, opts ...ObserverOption) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Observer{
		participant: participant,
		events:      events,
		logger:      logger.With("component", "discovery"),
		alive:       make(map[bus.EndpointKey]bus.DiscoverySample),
		lostLog:     rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type builtinListener struct {
	observer *Observer
	topic    bus.BuiltinTopic
}

func (l *builtinListener) OnDiscoveryAvailable(r bus.DiscoveryReader) {
	l.observer.onDiscoveryAvailable(l.topic, r)
}

// Start attaches the observer to both built-in discovery topics
func (o *Observer) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return ErrAlreadyStarted
	}

	for _, topic := range []bus.BuiltinTopic{bus.BuiltinPublications, bus.BuiltinSubscriptions} {
		r, err := o.participant.CreateDiscoveryReader(topic, &builtinListener{observer: o, topic: topic})
		if err != nil {
			for _, r := range o.readers {
				_ = r.Close()
			}
			o.readers = nil
			return fmt.Errorf("create %s reader: %w", topic, err)
		}
		o.readers = append(o.readers, r)
	}
	o.started = true
	return nil
}

// Close detaches the observer. It is safe to call multiple times.
func (o *Observer) Close() error {
	o.mu.Lock()
	readers := o.readers
	o.readers = nil
	o.mu.Unlock()

	var errs []error
	for _, r := range readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Lost returns the number of events dropped on a full or closed channel
func (o *Observer) Lost() uint64 {
	return o.lost.Load()
}

// Observed returns the number of discovery samples examined
func (o *Observer) Observed() uint64 {
	return o.observed.Load()
}

func (o *Observer) onDiscoveryAvailable(topic bus.BuiltinTopic, r bus.DiscoveryReader) {
	for {
		samples, err := r.TakeDiscovery(MaxSamples)
		if err != nil {
			o.logger.Debug("discovery take failed", "topic", topic.String(), "error", err)
			return
		}
		if len(samples) == 0 {
			return
		}
		for _, s := range samples {
			o.observed.Add(1)
			for _, e := range o.Classify(topic, s) {
				o.emit(e)
			}
		}
	}
}

func (o *Observer) emit(e Event) {
	if o.events.TrySend(e) {
		return
	}
	n := o.lost.Add(1)
	if o.lostCounter != nil {
		o.lostCounter.Inc()
	}
	o.lostLog.Do(func() {
		o.logger.Warn("discovery event lost", "event", e.String(), "lost_total", n)
	})
}

// Classify turns one discovery sample into zero or more events: none for
// filtered samples, one per partition otherwise, and a single event without
// partition when the entity has none.
func (o *Observer) Classify(topic bus.BuiltinTopic, s bus.DiscoverySample) []Event {
	alive := s.Info.InstanceState == bus.InstanceAlive

	var dropped []*string
	o.mu.Lock()
	if alive && s.Info.ValidData {
		if prev, ok := o.alive[s.Key]; ok {
			dropped = droppedPartitions(partitionsOf(prev.QoS), partitionsOf(s.QoS))
		}
		o.alive[s.Key] = s
	} else if !alive {
		if prev, ok := o.alive[s.Key]; ok {
			delete(o.alive, s.Key)
			if s.TopicName == "" {
				s.TopicName = prev.TopicName
				s.TypeName = prev.TypeName
			}
			if s.QoS == nil {
				s.QoS = prev.QoS
			}
			if s.ParticipantHandle == 0 {
				s.ParticipantHandle = prev.ParticipantHandle
			}
		}
	}
	o.mu.Unlock()

	if alive && !s.Info.ValidData {
		return nil
	}
	if s.TopicName == "" {
		o.logger.Debug("ignoring discovery sample without topic", "state", s.Info.InstanceState.String())
		return nil
	}
	if strings.Contains(s.TopicName, "DCPS") {
		return nil
	}
	if o.participant != nil && s.ParticipantHandle == o.participant.InstanceHandle() {
		return nil
	}

	kind := classifyKind(topic, alive)
	keyless := IsKeyless(s.Key)

	partitions := partitionsOf(s.QoS)

	base := Event{
		Kind:        kind,
		TopicName:   s.TopicName,
		TypeName:    s.TypeName,
		Endpoint:    s.Key,
		Participant: s.ParticipantHandle,
	}
	if kind.IsDiscovered() {
		base.Keyless = keyless
	}

	o.logger.Debug("discovered entity", "kind", kind.String(), "topic", s.TopicName, "type", s.TypeName,
		"partitions", partitions, "keyless", keyless)

	events := make([]Event, 0, len(dropped)+max(len(partitions), 1))
	if len(dropped) > 0 {
		// The endpoint left these partitions.
		gone := base
		gone.Kind = classifyKind(topic, false)
		gone.Keyless = false
		for _, p := range dropped {
			events = append(events, withQoS(gone, nil, p))
		}
		o.logger.Debug("entity left partitions", "kind", gone.Kind.String(), "topic", s.TopicName, "count", len(dropped))
	}
	if len(partitions) == 0 {
		return append(events, withQoS(base, s.QoS, nil))
	}
	for _, p := range partitions {
		events = append(events, withQoS(base, s.QoS, &p))
	}
	return events
}

func partitionsOf(q *bus.QoS) []string {
	if q == nil {
		return nil
	}
	return q.Partition
}

// droppedPartitions returns the partitions of prev missing from next. A nil
// entry stands for an endpoint that had no partition.
func droppedPartitions(prev, next []string) []*string {
	if len(prev) == 0 {
		if len(next) == 0 {
			return nil
		}
		return []*string{nil}
	}
	var dropped []*string
	for _, p := range prev {
		if !slices.Contains(next, p) {
			dropped = append(dropped, &p)
		}
	}
	return dropped
}

func classifyKind(topic bus.BuiltinTopic, alive bool) Kind {
	switch {
	case topic == bus.BuiltinPublications && alive:
		return DiscoveredPublication
	case topic == bus.BuiltinPublications:
		return UndiscoveredPublication
	case alive:
		return DiscoveredSubscription
	default:
		return UndiscoveredSubscription
	}
}

// withQoS gives each event its own partition string and, for discovered
// events, its own deep copy of the QoS.
func withQoS(e Event, q *bus.QoS, partition *string) Event {
	if partition != nil {
		p := *partition
		e.Partition = &p
	}
	if e.Kind.IsDiscovered() && q != nil {
		c := q.Clone()
		e.QoS = &c
	}
	return e
}
