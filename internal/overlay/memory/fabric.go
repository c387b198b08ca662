// Package memory implements the overlay session capability in-process.
//
// Sessions opened on the same Fabric see each other's publications the way
// peers on one network segment would. There is no routing table: every write
// is matched against every remote subscriber's key expression.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/overlay"
)

// DefaultStreamSize is the buffer of each subscriber stream
const DefaultStreamSize = 256

// Fabric connects in-process sessions
type Fabric struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

// NewFabric creates an empty fabric
func NewFabric() *Fabric {
	return &Fabric{sessions: make(map[*Session]struct{})}
}

// Open attaches a new session to the fabric. A nil cfg uses overlay.NewConfig.
func (f *Fabric) Open(cfg *overlay.Config) (*Session, error) {
	if cfg == nil {
		cfg = overlay.NewConfig()
	}
	c := *cfg
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		fabric:      f,
		id:          uuid.NewString(),
		config:      c,
		resources:   make(map[overlay.ResourceID]string),
		publishers:  make(map[overlay.ResourceID]*publisher),
		subscribers: make(map[*subscriber]struct{}),
	}
	f.mu.Lock()
	f.sessions[s] = struct{}{}
	f.mu.Unlock()
	return s, nil
}

func (f *Fabric) deliver(from *Session, key string, payload []byte) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for s := range f.sessions {
		if s == from && !s.config.LocalRouting {
			continue
		}
		s.offer(key, payload)
	}
}

func (f *Fabric) peersOf(s *Session) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var peers []string
	for other := range f.sessions {
		if other != s {
			peers = append(peers, other.id)
		}
	}
	return peers
}

func (f *Fabric) detach(s *Session) {
	f.mu.Lock()
	delete(f.sessions, s)
	f.mu.Unlock()
}

// Session is an overlay session attached to a Fabric
type Session struct {
	fabric *Fabric
	id     string
	config overlay.Config

	mu          sync.RWMutex
	nextRID     overlay.ResourceID
	resources   map[overlay.ResourceID]string
	publishers  map[overlay.ResourceID]*publisher
	subscribers map[*subscriber]struct{}
	closed      bool

	dropped atomic.Uint64
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// DeclareResource registers key and returns its id
func (s *Session) DeclareResource(ctx context.Context, key string) (overlay.ResourceID, error) {
	if err := overlay.ValidateKeyExpr(key); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, overlay.ErrSessionClosed
	}
	s.nextRID++
	s.resources[s.nextRID] = key
	return s.nextRID, nil
}

// UndeclareResource releases rid and its publisher
func (s *Session) UndeclareResource(ctx context.Context, rid overlay.ResourceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return overlay.ErrSessionClosed
	}
	if _, ok := s.resources[rid]; !ok {
		return fmt.Errorf("%w: %d", overlay.ErrUnknownResource, rid)
	}
	delete(s.resources, rid)
	delete(s.publishers, rid)
	return nil
}

// DeclarePublisher declares a publication on rid
func (s *Session) DeclarePublisher(ctx context.Context, rid overlay.ResourceID) (overlay.Publisher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, overlay.ErrSessionClosed
	}
	if _, ok := s.resources[rid]; !ok {
		return nil, fmt.Errorf("%w: %d", overlay.ErrUnknownResource, rid)
	}
	p := &publisher{session: s, rid: rid}
	s.publishers[rid] = p
	return p, nil
}

// Write publishes payload to every intersecting subscriber of the fabric
func (s *Session) Write(ctx context.Context, rid overlay.ResourceID, payload []byte) error {
	s.mu.RLock()
	closed := s.closed
	key, ok := s.resources[rid]
	s.mu.RUnlock()
	if closed {
		return overlay.ErrSessionClosed
	}
	if !ok {
		return fmt.Errorf("%w: %d", overlay.ErrUnknownResource, rid)
	}
	s.fabric.deliver(s, key, payload)
	return nil
}

// DeclareSubscriber subscribes to keyExpr
func (s *Session) DeclareSubscriber(ctx context.Context, keyExpr string, info overlay.SubInfo) (overlay.Subscriber, error) {
	if err := overlay.ValidateKeyExpr(keyExpr); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, overlay.ErrSessionClosed
	}
	sub := &subscriber{
		session: s,
		expr:    keyExpr,
		stream:  make(chan overlay.Sample, DefaultStreamSize),
	}
	s.subscribers[sub] = struct{}{}
	return sub, nil
}

// Info reports the session id, mode and the other sessions on the fabric
func (s *Session) Info() overlay.SessionInfo {
	s.mu.RLock()
	n := len(s.resources)
	s.mu.RUnlock()
	return overlay.SessionInfo{
		ID:        s.id,
		Mode:      s.config.Mode,
		Peers:     s.fabric.peersOf(s),
		Resources: n,
	}
}

// Dropped returns the number of samples dropped on full subscriber streams
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the session and closes every subscriber stream
func (s *Session) Close() error {
	s.fabric.detach(s)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subscribers
	s.subscribers = make(map[*subscriber]struct{})
	s.resources = make(map[overlay.ResourceID]string)
	s.publishers = make(map[overlay.ResourceID]*publisher)
	s.mu.Unlock()

	for sub := range subs {
		sub.shutdown()
	}
	return nil
}

func (s *Session) offer(key string, payload []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for sub := range s.subscribers {
		if overlay.Intersects(sub.expr, key) && !sub.offer(overlay.Sample{Key: key, Payload: payload}) {
			s.dropped.Add(1)
		}
	}
}

type publisher struct {
	session *Session
	rid     overlay.ResourceID
}

func (p *publisher) Resource() overlay.ResourceID { return p.rid }

func (p *publisher) Close() error {
	p.session.mu.Lock()
	defer p.session.mu.Unlock()
	if p.session.publishers[p.rid] == p {
		delete(p.session.publishers, p.rid)
	}
	return nil
}

type subscriber struct {
	session *Session
	expr    string

	mu     sync.Mutex
	stream chan overlay.Sample
	closed bool
}

func (sub *subscriber) KeyExpr() string { return sub.expr }

func (sub *subscriber) Stream() <-chan overlay.Sample { return sub.stream }

// offer never blocks; it reports false when the sample was dropped.
func (sub *subscriber) offer(sample overlay.Sample) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return true
	}
	select {
	case sub.stream <- sample:
		return true
	default:
		return false
	}
}

func (sub *subscriber) Close() error {
	s := sub.session
	s.mu.Lock()
	delete(s.subscribers, sub)
	s.mu.Unlock()
	sub.shutdown()
	return nil
}

func (sub *subscriber) shutdown() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.stream)
}

var _ overlay.Session = (*Session)(nil)
