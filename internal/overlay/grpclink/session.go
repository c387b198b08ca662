// Package grpclink implements the overlay session capability on top of gRPC.
//
// Every pair of linked sessions shares one bidirectional stream carrying
// frames. Subscriptions are announced to peers as declarations and data is
// only sent over links whose declared interest intersects the written key.
// Peer-mode sessions accept links on their listener locators, and sessions in
// either mode dial the configured peer locators and, when multicast scouting
// is enabled, the peers they scout.
package grpclink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/overlay"
)

// Session is an overlay session linked to its peers over gRPC
type Session struct {
	config *Config
	ov     overlay.Config
	id     string
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.RWMutex
	started     bool
	closed      bool
	nextRID     overlay.ResourceID
	resources   map[overlay.ResourceID]string
	publishers  map[overlay.ResourceID]*publisher
	subscribers map[*subscriber]struct{}
	subInterest map[string]int
	pubInterest map[string]int
	links       map[string]*link
	dialing     map[string]struct{}

	server    *grpc.Server
	health    *health.Server
	listeners []net.Listener
	scout     *scout

	dropped atomic.Uint64
}

// NewSession creates a session from config. Nothing is opened until Start.
func NewSession(config *Config) (*Session, error) {
	if config == nil {
		return nil, ErrNilOverlayConfig
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Make a copy and set defaults
	configCopy := *config
	ov := *config.Overlay
	configCopy.Overlay = &ov
	configCopy.SetDefaults()

	id := configCopy.NodeID
	if id == "" {
		id = uuid.NewString()
	}
	logger := configCopy.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		config:      &configCopy,
		ov:          ov,
		id:          id,
		logger:      logger.With("component", "overlay", "session", id),
		ctx:         ctx,
		cancel:      cancel,
		resources:   make(map[overlay.ResourceID]string),
		publishers:  make(map[overlay.ResourceID]*publisher),
		subscribers: make(map[*subscriber]struct{}),
		subInterest: make(map[string]int),
		pubInterest: make(map[string]int),
		links:       make(map[string]*link),
		dialing:     make(map[string]struct{}),
	}, nil
}

// Open creates and starts a session
func Open(ctx context.Context, config *Config) (*Session, error) {
	s, err := NewSession(config)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Start binds the listeners, dials the configured peers and starts scouting.
// Calling Start again is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return overlay.ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if s.ov.Mode == overlay.ModePeer {
		if err := s.listen(ctx); err != nil {
			return err
		}
	} else if len(s.ov.Listeners) > 0 {
		s.logger.Warn("client mode ignores listeners", "listeners", s.ov.Listeners)
	}

	for _, locator := range s.ov.Peers {
		_, addr, _ := overlay.SplitLocator(locator)
		s.wg.Add(1)
		go s.connectLoop(addr)
	}

	if s.ov.MulticastScouting {
		sc, err := startScout(s)
		if err != nil {
			s.logger.Warn("multicast scouting disabled", "error", err)
		} else {
			s.mu.Lock()
			s.scout = sc
			s.mu.Unlock()
		}
	}
	return nil
}

func (s *Session) listen(ctx context.Context) error {
	locators := s.ov.Listeners
	if len(locators) == 0 {
		locators = []string{"tcp/0.0.0.0:0"}
	}

	var lc net.ListenConfig
	for _, locator := range locators {
		_, addr, _ := overlay.SplitLocator(locator)
		lis, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			for _, l := range s.listeners {
				_ = l.Close()
			}
			s.listeners = nil
			return fmt.Errorf("listen on %s: %w", locator, err)
		}
		s.listeners = append(s.listeners, lis)
	}

	s.server = grpc.NewServer(
		grpc.MaxRecvMsgSize(s.config.MaxMessageSize),
		grpc.MaxSendMsgSize(s.config.MaxMessageSize),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             s.config.HeartbeatInterval / 2,
			PermitWithoutStream: true,
		}),
	)
	s.server.RegisterService(&linkServiceDesc, s)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	for _, lis := range s.listeners {
		s.logger.Info("listening", "address", lis.Addr().String())
		go func(lis net.Listener) {
			if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				s.logger.Error("listener failed", "address", lis.Addr().String(), "error", err)
			}
		}(lis)
	}
	return nil
}

func (s *Session) dialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                s.config.HeartbeatInterval,
			Timeout:             s.config.HeartbeatInterval,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(codecName),
			grpc.MaxCallRecvMsgSize(s.config.MaxMessageSize),
			grpc.MaxCallSendMsgSize(s.config.MaxMessageSize),
		),
	}
}

// connectLoop keeps an outbound link to a configured peer, redialing after
// ReconnectInterval until the session closes.
func (s *Session) connectLoop(addr string) {
	defer s.wg.Done()
	for {
		err := s.dialPeer(s.ctx, addr)
		if s.ctx.Err() != nil {
			return
		}
		if errors.Is(err, errDuplicateLink) {
			s.logger.Debug("peer already linked", "address", addr)
		} else if err != nil {
			s.logger.Debug("link to peer failed", "address", addr, "error", err)
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.config.ReconnectInterval):
		}
	}
}

// onScouted dials a scouted peer once. Of two scouting peers only the one
// with the lower id dials.
func (s *Session) onScouted(peerID string, addrs []string) {
	if peerID == s.id || peerID < s.id || len(addrs) == 0 {
		return
	}
	s.mu.Lock()
	if _, linked := s.links[peerID]; linked || s.closed {
		s.mu.Unlock()
		return
	}
	if _, busy := s.dialing[peerID]; busy {
		s.mu.Unlock()
		return
	}
	s.dialing[peerID] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.dialing, peerID)
			s.mu.Unlock()
		}()
		for _, addr := range addrs {
			s.logger.Debug("dialing scouted peer", "peer", peerID, "address", addr)
			err := s.dialPeer(s.ctx, addr)
			if err == nil || s.ctx.Err() != nil || errors.Is(err, errDuplicateLink) {
				return
			}
		}
	}()
}

func (s *Session) hello() *frame {
	return &frame{Kind: frameHello, Node: s.id, Locators: s.ListenAddresses()}
}

// registerLink records a new link and queues our current declarations on it.
// Inbound links also queue the reply hello first.
func (s *Session) registerLink(peerID, address string, inbound bool) (*link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, overlay.ErrSessionClosed
	}
	if existing, ok := s.links[peerID]; ok {
		if !s.preferredLink(peerID, inbound) || s.preferredLink(peerID, existing.inbound) {
			return nil, fmt.Errorf("%w: %s", errDuplicateLink, peerID)
		}
		existing.close()
		delete(s.links, peerID)
		s.logger.Debug("replacing link", "peer", peerID, "inbound", existing.inbound)
	}

	l := newLink(peerID, address, inbound, s.config.SendQueueSize)
	if inbound {
		l.enqueue(&frame{Kind: frameHello, Node: s.id, Locators: s.listenAddressesLocked()})
	}
	for expr := range s.subInterest {
		l.enqueue(&frame{Kind: frameDeclareSub, Key: expr})
	}
	for expr := range s.pubInterest {
		l.enqueue(&frame{Kind: frameDeclarePub, Key: expr})
	}
	s.links[peerID] = l
	return l, nil
}

// preferredLink reports whether a link to peerID in the given direction is
// the one kept when both sides dial each other: the link dialed by the lower
// session id.
func (s *Session) preferredLink(peerID string, inbound bool) bool {
	if inbound {
		return peerID < s.id
	}
	return s.id < peerID
}

func (s *Session) unregisterLink(l *link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.links[l.peerID] == l {
		delete(s.links, l.peerID)
	}
	l.health.Store(int32(PeerDisconnected))
	s.logger.Info("link closed", "peer", l.peerID)
}

// broadcastLocked must be called with s.mu held.
func (s *Session) broadcastLocked(f *frame) {
	for _, l := range s.links {
		l.enqueue(f)
	}
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

// UndeclareResource releases rid and undeclares its publisher
func (s *Session) UndeclareResource(ctx context.Context, rid overlay.ResourceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return overlay.ErrSessionClosed
	}
	if _, ok := s.resources[rid]; !ok {
		return fmt.Errorf("%w: %d", overlay.ErrUnknownResource, rid)
	}
	if p, ok := s.publishers[rid]; ok {
		s.releasePublisherLocked(p)
	}
	delete(s.resources, rid)
	return nil
}

// DeclarePublisher announces a publication on rid, generalized through the
// join_publications list.
func (s *Session) DeclarePublisher(ctx context.Context, rid overlay.ResourceID) (overlay.Publisher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, overlay.ErrSessionClosed
	}
	key, ok := s.resources[rid]
	if !ok {
		return nil, fmt.Errorf("%w: %d", overlay.ErrUnknownResource, rid)
	}
	if p, ok := s.publishers[rid]; ok {
		return p, nil
	}

	p := &publisher{session: s, rid: rid, decl: overlay.Generalize(key, s.ov.JoinPublications)}
	s.publishers[rid] = p
	s.pubInterest[p.decl]++
	if s.pubInterest[p.decl] == 1 {
		s.broadcastLocked(&frame{Kind: frameDeclarePub, Key: p.decl})
	}
	return p, nil
}

func (s *Session) releasePublisherLocked(p *publisher) {
	if s.publishers[p.rid] != p {
		return
	}
	delete(s.publishers, p.rid)
	s.pubInterest[p.decl]--
	if s.pubInterest[p.decl] <= 0 {
		delete(s.pubInterest, p.decl)
		s.broadcastLocked(&frame{Kind: frameUndeclarePub, Key: p.decl})
	}
}

// Write sends payload to every linked peer interested in the resource's key.
// It never blocks; frames that do not fit a peer's send queue are dropped.
func (s *Session) Write(ctx context.Context, rid overlay.ResourceID, payload []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return overlay.ErrSessionClosed
	}
	key, ok := s.resources[rid]
	if !ok {
		return fmt.Errorf("%w: %d", overlay.ErrUnknownResource, rid)
	}

	var f *frame
	for _, l := range s.links {
		if !l.wants(key) {
			continue
		}
		if f == nil {
			f = &frame{Kind: frameData, Key: key, Payload: payload}
		}
		if !l.enqueue(f) {
			s.dropped.Add(1)
		}
	}
	if s.ov.LocalRouting {
		s.deliverLocked(key, payload)
	}
	return nil
}

// DeclareSubscriber subscribes to keyExpr. The declaration sent to peers is
// generalized through the join_subscriptions list.
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
		decl:    overlay.Generalize(keyExpr, s.ov.JoinSubscriptions),
		stream:  make(chan overlay.Sample, s.config.StreamSize),
	}
	s.subscribers[sub] = struct{}{}
	s.subInterest[sub.decl]++
	if s.subInterest[sub.decl] == 1 {
		s.broadcastLocked(&frame{Kind: frameDeclareSub, Key: sub.decl})
	}
	return sub, nil
}

func (s *Session) releaseSubscriber(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[sub]; !ok {
		return
	}
	delete(s.subscribers, sub)
	s.subInterest[sub.decl]--
	if s.subInterest[sub.decl] <= 0 {
		delete(s.subInterest, sub.decl)
		s.broadcastLocked(&frame{Kind: frameUndeclareSub, Key: sub.decl})
	}
}

func (s *Session) deliverLocal(key string, payload []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.deliverLocked(key, payload)
}

func (s *Session) deliverLocked(key string, payload []byte) {
	for sub := range s.subscribers {
		if overlay.Intersects(sub.expr, key) && !sub.offer(overlay.Sample{Key: key, Payload: payload}) {
			s.dropped.Add(1)
		}
	}
}

// Info reports the session id, mode, listen locators and linked peers
func (s *Session) Info() overlay.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	peers := make([]string, 0, len(s.links))
	for id := range s.links {
		peers = append(peers, id)
	}
	sort.Strings(peers)
	return overlay.SessionInfo{
		ID:        s.id,
		Mode:      s.ov.Mode,
		Locators:  s.listenAddressesLocked(),
		Peers:     peers,
		Resources: len(s.resources),
	}
}

// ListenAddresses returns the bound listener locators
func (s *Session) ListenAddresses() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listenAddressesLocked()
}

func (s *Session) listenAddressesLocked() []string {
	out := make([]string, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, "tcp/"+l.Addr().String())
	}
	return out
}

// GetConnectedPeers returns the ids of all linked peers
func (s *Session) GetConnectedPeers() []string {
	return s.Info().Peers
}

// GetPeerHealth returns the health of a linked peer. Unknown peers are
// reported as disconnected.
func (s *Session) GetPeerHealth(peerID string) PeerHealthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[peerID]
	if !ok {
		return PeerDisconnected
	}
	return PeerHealthState(l.health.Load())
}

// GetPeerMetrics returns a snapshot of one link
func (s *Session) GetPeerMetrics(peerID string) (PeerMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[peerID]
	if !ok {
		return PeerMetrics{}, false
	}
	return l.metrics(), true
}

// GetAllPeerMetrics returns a snapshot of every link, ordered by peer id
func (s *Session) GetAllPeerMetrics() []PeerMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PeerMetrics, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, l.metrics())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}

// Dropped returns the number of frames and samples dropped on full queues
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}

// Close stops the listeners and scouting, ends every link and closes all
// subscriber streams. It is safe to call multiple times.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subscribers
	s.subscribers = make(map[*subscriber]struct{})
	sc := s.scout
	s.mu.Unlock()

	s.cancel()
	if s.server != nil {
		s.health.Shutdown()
		s.server.Stop()
	}
	if sc != nil {
		sc.close()
	}
	s.wg.Wait()

	for sub := range subs {
		sub.shutdown()
	}
	return nil
}

type publisher struct {
	session *Session
	rid     overlay.ResourceID
	decl    string
}

func (p *publisher) Resource() overlay.ResourceID { return p.rid }

func (p *publisher) Close() error {
	p.session.mu.Lock()
	defer p.session.mu.Unlock()
	p.session.releasePublisherLocked(p)
	return nil
}

type subscriber struct {
	session *Session
	expr    string
	decl    string

	mu     sync.Mutex
	stream chan overlay.Sample
	closed bool
}

func (sub *subscriber) KeyExpr() string { return sub.expr }

func (sub *subscriber) Stream() <-chan overlay.Sample { return sub.stream }

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
	sub.session.releaseSubscriber(sub)
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
