package grpclink

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/net/ipv4"
)

const maxDatagramSize = 64 * 1024

// scout announces the session's listener locators on a multicast group and
// hands peers heard on the group to Session.onScouted.
type scout struct {
	session *Session
	group   *net.UDPAddr
	conn    *ipv4.PacketConn
	raw     net.PacketConn
	done    chan struct{}
}

func startScout(s *Session) (*scout, error) {
	group, err := net.ResolveUDPAddr("udp4", s.config.ScoutAddress)
	if err != nil {
		return nil, fmt.Errorf("resolve scout address: %w", err)
	}
	if !group.IP.IsMulticast() {
		return nil, fmt.Errorf("scout address %s is not multicast", group)
	}

	raw, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", group.Port))
	if err != nil {
		return nil, fmt.Errorf("bind scout socket: %w", err)
	}
	conn := ipv4.NewPacketConn(raw)

	joined := 0
	if ifaces, err := net.Interfaces(); err == nil {
		for i := range ifaces {
			ifi := &ifaces[i]
			if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
				continue
			}
			if conn.JoinGroup(ifi, group) == nil {
				joined++
			}
		}
	}
	if joined == 0 {
		if err := conn.JoinGroup(nil, group); err != nil {
			_ = raw.Close()
			return nil, fmt.Errorf("join %s: %w", group, err)
		}
	}
	_ = conn.SetMulticastLoopback(true)
	_ = conn.SetMulticastTTL(1)

	sc := &scout{session: s, group: group, conn: conn, raw: raw, done: make(chan struct{})}
	s.wg.Add(2)
	go sc.announceLoop()
	go sc.receiveLoop()
	s.logger.Info("multicast scouting", "group", group.String())
	return sc, nil
}

func (sc *scout) announceLoop() {
	defer sc.session.wg.Done()
	ticker := time.NewTicker(sc.session.config.ScoutInterval)
	defer ticker.Stop()

	for {
		sc.announce()
		select {
		case <-sc.done:
			return
		case <-ticker.C:
		}
	}
}

func (sc *scout) announce() {
	hello := sc.session.hello()
	if len(hello.Locators) == 0 {
		// Client sessions have nothing to be dialed on.
		return
	}
	if _, err := sc.conn.WriteTo(hello.marshal(), nil, sc.group); err != nil {
		sc.session.logger.Debug("scout announce failed", "error", err)
	}
}

func (sc *scout) receiveLoop() {
	defer sc.session.wg.Done()
	buf := make([]byte, maxDatagramSize)
	for {
		n, _, src, err := sc.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-sc.done:
				return
			default:
			}
			continue
		}

		var f frame
		if err := f.unmarshal(buf[:n]); err != nil || f.Kind != frameHello {
			continue
		}
		sc.session.onScouted(f.Node, resolveLocators(f.Locators, src))
	}
}

func (sc *scout) close() {
	select {
	case <-sc.done:
		return
	default:
	}
	close(sc.done)
	_ = sc.raw.Close()
}

// resolveLocators turns announced locators into dialable addresses. An
// unspecified host is replaced with the datagram's source address.
func resolveLocators(locators []string, src net.Addr) []string {
	var srcIP net.IP
	if u, ok := src.(*net.UDPAddr); ok {
		srcIP = u.IP
	}

	out := make([]string, 0, len(locators))
	for _, l := range locators {
		addr := strings.TrimPrefix(l, "tcp/")
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			continue
		}
		if ip := net.ParseIP(host); (host == "" || (ip != nil && ip.IsUnspecified())) && srcIP != nil {
			host = srcIP.String()
		}
		out = append(out, net.JoinHostPort(host, port))
	}
	return out
}
