package grpclink

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/overlay"
)

// PeerHealthState represents the health state of a linked peer
type PeerHealthState int32

const (
	PeerHealthy PeerHealthState = iota
	PeerUnhealthy
	PeerDisconnected
)

func (s PeerHealthState) String() string {
	switch s {
	case PeerHealthy:
		return "Healthy"
	case PeerUnhealthy:
		return "Unhealthy"
	case PeerDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// PeerMetrics is a snapshot of one link
type PeerMetrics struct {
	PeerID       string
	Address      string
	Inbound      bool
	HealthState  PeerHealthState
	ConnectedAt  time.Time
	Sent         uint64
	Received     uint64
	Dropped      uint64
	Interests    []string
	Publications []string
}

// frameStream is the part of grpc.ClientStream and grpc.ServerStream a link uses
type frameStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

type link struct {
	peerID      string
	address     string
	inbound     bool
	connectedAt time.Time
	queue       chan *frame
	done        chan struct{}
	closeOnce   sync.Once

	// guarded by Session.mu
	interests    map[string]struct{}
	publications map[string]struct{}

	health   atomic.Int32
	sent     atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
}

func newLink(peerID, address string, inbound bool, queueSize int) *link {
	return &link{
		peerID:       peerID,
		address:      address,
		inbound:      inbound,
		connectedAt:  time.Now(),
		queue:        make(chan *frame, queueSize),
		done:         make(chan struct{}),
		interests:    make(map[string]struct{}),
		publications: make(map[string]struct{}),
	}
}

// close stops the link's stream loop. It is safe to call multiple times.
func (l *link) close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// enqueue never blocks. A full queue drops the frame and marks the peer
// unhealthy until the next frame is accepted.
func (l *link) enqueue(f *frame) bool {
	select {
	case l.queue <- f:
		l.health.Store(int32(PeerHealthy))
		return true
	default:
		l.dropped.Add(1)
		l.health.Store(int32(PeerUnhealthy))
		return false
	}
}

// wants must be called with Session.mu held.
func (l *link) wants(key string) bool {
	for expr := range l.interests {
		if overlay.Intersects(expr, key) {
			return true
		}
	}
	return false
}

// metrics must be called with Session.mu held.
func (l *link) metrics() PeerMetrics {
	m := PeerMetrics{
		PeerID:      l.peerID,
		Address:     l.address,
		Inbound:     l.inbound,
		HealthState: PeerHealthState(l.health.Load()),
		ConnectedAt: l.connectedAt,
		Sent:        l.sent.Load(),
		Received:    l.received.Load(),
		Dropped:     l.dropped.Load(),
	}
	for e := range l.interests {
		m.Interests = append(m.Interests, e)
	}
	for e := range l.publications {
		m.Publications = append(m.Publications, e)
	}
	sort.Strings(m.Interests)
	sort.Strings(m.Publications)
	return m
}

// runStreamLoop pumps the link's send queue into stream and dispatches
// received frames until either direction fails, ctx is done, the link is
// replaced or the session closes.
func (s *Session) runStreamLoop(ctx context.Context, l *link, stream frameStream) error {
	errc := make(chan error, 1)
	go func() {
		for {
			f := new(frame)
			if err := stream.RecvMsg(f); err != nil {
				errc <- err
				return
			}
			l.received.Add(1)
			s.handleFrame(l, f)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return context.Canceled
		case <-l.done:
			return errLinkReplaced
		case err := <-errc:
			return err
		case f := <-l.queue:
			if err := stream.SendMsg(f); err != nil {
				return err
			}
			l.sent.Add(1)
		}
	}
}

func (s *Session) handleFrame(l *link, f *frame) {
	switch f.Kind {
	case frameDeclareSub:
		s.mu.Lock()
		l.interests[f.Key] = struct{}{}
		s.mu.Unlock()
	case frameUndeclareSub:
		s.mu.Lock()
		delete(l.interests, f.Key)
		s.mu.Unlock()
	case frameDeclarePub:
		s.mu.Lock()
		l.publications[f.Key] = struct{}{}
		s.mu.Unlock()
	case frameUndeclarePub:
		s.mu.Lock()
		delete(l.publications, f.Key)
		s.mu.Unlock()
	case frameData:
		s.deliverLocal(f.Key, f.Payload)
	case frameHello:
	default:
		s.logger.Debug("ignoring frame", "peer", l.peerID, "kind", f.Kind)
	}
}
