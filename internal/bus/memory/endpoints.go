package memory

import (
	"sync"
	"sync/atomic"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bus"
)

type reader struct {
	participant *Participant
	topic       *blobTopic
	qos         bus.QoS
	listener    bus.DataListener
	key         bus.EndpointKey

	mu      sync.Mutex
	queue   []bus.Sample
	loans   int
	closed  bool
	pending atomic.Bool
}

// enqueue stores a copy of data and schedules the listener.
func (r *reader) enqueue(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, bus.Sample{
		Info:    bus.SampleInfo{ValidData: true, InstanceState: bus.InstanceAlive},
		Payload: bus.NewPayload(buf, true),
	})
	if r.qos.History.Kind == bus.KeepLast {
		depth := max(r.qos.History.Depth, 1)
		if over := len(r.queue) - depth; over > 0 {
			r.queue = append(r.queue[:0:0], r.queue[over:]...)
		}
	}
	r.mu.Unlock()

	r.notify()
}

func (r *reader) notify() {
	if r.listener == nil || !r.pending.CompareAndSwap(false, true) {
		return
	}
	r.participant.dispatcher.post(func() {
		r.pending.Store(false)
		r.mu.Lock()
		closed := r.closed
		r.mu.Unlock()
		if !closed {
			r.listener.OnDataAvailable(r)
		}
	})
}

// Take removes up to max samples without blocking
func (r *reader) Take(max int) (*bus.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	n := min(max, len(r.queue))
	if n <= 0 {
		return bus.NewLoan(nil, nil), nil
	}
	samples := make([]bus.Sample, n)
	copy(samples, r.queue[:n])
	r.queue = r.queue[n:]
	r.loans++
	return bus.NewLoan(samples, func() {
		r.mu.Lock()
		r.loans--
		r.mu.Unlock()
	}), nil
}

func (r *reader) outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loans
}

// QoS returns the reader's policy
func (r *reader) QoS() bus.QoS {
	return r.qos.Clone()
}

// Close deletes the reader and announces its disposal
func (r *reader) Close() error {
	d := r.participant.domain
	d.mu.Lock()
	defer d.mu.Unlock()
	r.closeLocked()
	return nil
}

// closeLocked must be called with domain.mu held.
func (r *reader) closeLocked() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.queue = nil
	r.mu.Unlock()

	d := r.participant.domain
	delete(d.readers, r)
	d.announce(bus.BuiltinSubscriptions, dispose(r.key, r.participant.handle))
}

type writer struct {
	participant *Participant
	topic       *blobTopic
	qos         bus.QoS
	key         bus.EndpointKey

	// guarded by domain.mu
	closed bool
}

// WriteRaw delivers a copy of payload to every matched reader
func (w *writer) WriteRaw(payload []byte) error {
	d := w.participant.domain
	d.mu.Lock()
	defer d.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	for r := range d.readers {
		if matches(w, r) {
			r.enqueue(payload)
		}
	}
	return nil
}

// QoS returns the writer's policy
func (w *writer) QoS() bus.QoS {
	return w.qos.Clone()
}

// Close deletes the writer and announces its disposal
func (w *writer) Close() error {
	d := w.participant.domain
	d.mu.Lock()
	defer d.mu.Unlock()
	w.closeLocked()
	return nil
}

func (w *writer) closeLocked() {
	if w.closed {
		return
	}
	w.closed = true
	d := w.participant.domain
	delete(d.writers, w)
	d.announce(bus.BuiltinPublications, dispose(w.key, w.participant.handle))
}

type discoveryReader struct {
	participant *Participant
	kind        bus.BuiltinTopic
	listener    bus.DiscoveryListener

	mu      sync.Mutex
	queue   []bus.DiscoverySample
	closed  bool
	pending atomic.Bool
}

func (dr *discoveryReader) enqueue(s bus.DiscoverySample) {
	if s.QoS != nil {
		q := s.QoS.Clone()
		s.QoS = &q
	}
	dr.mu.Lock()
	if dr.closed {
		dr.mu.Unlock()
		return
	}
	dr.queue = append(dr.queue, s)
	dr.mu.Unlock()

	if dr.listener == nil || !dr.pending.CompareAndSwap(false, true) {
		return
	}
	dr.participant.dispatcher.post(func() {
		dr.pending.Store(false)
		dr.mu.Lock()
		closed := dr.closed
		dr.mu.Unlock()
		if !closed {
			dr.listener.OnDiscoveryAvailable(dr)
		}
	})
}

// TakeDiscovery removes up to max discovery samples without blocking
func (dr *discoveryReader) TakeDiscovery(max int) ([]bus.DiscoverySample, error) {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	if dr.closed {
		return nil, ErrClosed
	}
	n := min(max, len(dr.queue))
	if n <= 0 {
		return nil, nil
	}
	out := make([]bus.DiscoverySample, n)
	copy(out, dr.queue[:n])
	dr.queue = dr.queue[n:]
	return out, nil
}

// Close detaches the discovery reader
func (dr *discoveryReader) Close() error {
	d := dr.participant.domain
	d.mu.Lock()
	defer d.mu.Unlock()
	dr.closeLocked()
	return nil
}

func (dr *discoveryReader) closeLocked() {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	if dr.closed {
		return
	}
	dr.closed = true
	dr.queue = nil
	delete(dr.participant.domain.discovery, dr)
}

var (
	_ bus.Reader          = (*reader)(nil)
	_ bus.Writer          = (*writer)(nil)
	_ bus.DiscoveryReader = (*discoveryReader)(nil)
)
