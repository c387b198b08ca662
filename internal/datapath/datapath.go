// Package datapath moves samples between the bus and the overlay.
//
// BusToOverlay is a bus.DataListener. It runs on the bus dispatch goroutine,
// drains its reader and pushes every payload through the route's encoder.
// OverlayToBus is the per-route goroutine on the other side: it reads the
// overlay subscriber stream and feeds the decoder. The two Writer adapters
// are the coder sinks for each side.
package datapath

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bus"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/coder"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/overlay"
)

// MaxSamples is the number of samples taken from a reader per batch
const MaxSamples = 32

// ErrStreamClosed is returned by OverlayToBus.Run when the subscriber
// stream ends before the task is cancelled
var ErrStreamClosed = errors.New("overlay stream closed")

// Direction labels the two forwarding directions
type Direction string

const (
	BusToOverlayDir Direction = "bus_to_overlay"
	OverlayToBusDir Direction = "overlay_to_bus"
)

// Drop reasons reported to Stats
const (
	ReasonTake   = "take"
	ReasonEncode = "encode"
	ReasonDecode = "decode"
)

// Stats receives data-path counters
type Stats interface {
	AddForwarded(dir Direction)
	AddDropped(dir Direction, reason string)
}

type nopStats struct{}

func (nopStats) AddForwarded(Direction)        {}
func (nopStats) AddDropped(Direction, string) {}

func orNop(s Stats) Stats {
	if s == nil {
		return nopStats{}
	}
	return s
}

func throttle() rate.Sometimes {
	return rate.Sometimes{First: 1, Interval: 5 * time.Second}
}

// OverlayWriter publishes coder output on a declared resource
type OverlayWriter struct {
	session overlay.Session
	rid     overlay.ResourceID
}

var _ coder.Writer = (*OverlayWriter)(nil)

// NewOverlayWriter creates a writer publishing on rid
func NewOverlayWriter(session overlay.Session, rid overlay.ResourceID) *OverlayWriter {
	return &OverlayWriter{session: session, rid: rid}
}

// Write publishes a copy of p. The session keeps what it is given and coder
// output buffers may be reused after Write returns.
func (w *OverlayWriter) Write(p []byte) error {
	return w.session.Write(context.Background(), w.rid, bytes.Clone(p))
}

// BusWriter writes coder output to a bus writer
type BusWriter struct {
	writer bus.Writer
}

var _ coder.Writer = (*BusWriter)(nil)

// NewBusWriter wraps w
func NewBusWriter(w bus.Writer) *BusWriter {
	return &BusWriter{writer: w}
}

// Write submits p as one raw sample
func (w *BusWriter) Write(p []byte) error {
	return w.writer.WriteRaw(p)
}

// BusToOverlay forwards samples of one bus reader through an encoder
type BusToOverlay struct {
	route   string
	encoder coder.Coder
	stats   Stats
	logger  *slog.Logger
	dropLog rate.Sometimes
}

var _ bus.DataListener = (*BusToOverlay)(nil)

// NewBusToOverlay creates the listener for route
func NewBusToOverlay(route string, encoder coder.Coder, stats Stats, logger *slog.Logger) *BusToOverlay {
	if logger == nil {
		logger = slog.Default()
	}
	return &BusToOverlay{
		route:   route,
		encoder: encoder,
		stats:   orNop(stats),
		logger:  logger.With("component", "datapath", "route", route, "direction", string(BusToOverlayDir)),
		dropLog: throttle(),
	}
}

// OnDataAvailable drains the reader. It never blocks.
func (l *BusToOverlay) OnDataAvailable(r bus.Reader) {
	for {
		loan, err := r.Take(MaxSamples)
		if err != nil {
			l.stats.AddDropped(BusToOverlayDir, ReasonTake)
			l.dropLog.Do(func() {
				l.logger.Warn("take failed", "error", err)
			})
			return
		}
		if len(loan.Samples) == 0 {
			loan.Return()
			return
		}
		for _, s := range loan.Samples {
			if !s.Info.ValidData {
				continue
			}
			l.forward(s.Payload.Detach())
		}
		loan.Return()
	}
}

func (l *BusToOverlay) forward(p []byte) {
	if err := l.encoder.Encode(p); err != nil {
		l.stats.AddDropped(BusToOverlayDir, ReasonEncode)
		l.dropLog.Do(func() {
			l.logger.Warn("dropping sample", "error", err, "size", len(p))
		})
		return
	}
	l.stats.AddForwarded(BusToOverlayDir)
}

// OverlayToBus forwards samples of one overlay subscriber through a decoder
type OverlayToBus struct {
	route   string
	stream  <-chan overlay.Sample
	decoder coder.Coder
	stats   Stats
	logger  *slog.Logger
	dropLog rate.Sometimes
}

// NewOverlayToBus creates the forwarding task for route
func NewOverlayToBus(route string, sub overlay.Subscriber, decoder coder.Coder, stats Stats, logger *slog.Logger) *OverlayToBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverlayToBus{
		route:   route,
		stream:  sub.Stream(),
		decoder: decoder,
		stats:   orNop(stats),
		logger:  logger.With("component", "datapath", "route", route, "direction", string(OverlayToBusDir)),
		dropLog: throttle(),
	}
}

// Run forwards until ctx is cancelled, returning nil, or the stream closes,
// returning ErrStreamClosed. A message that fails to decode is dropped.
func (t *OverlayToBus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-t.stream:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrStreamClosed
			}
			if err := t.decoder.Decode(s.Payload); err != nil {
				t.stats.AddDropped(OverlayToBusDir, ReasonDecode)
				t.dropLog.Do(func() {
					t.logger.Warn("dropping sample", "key", s.Key, "error", err)
				})
				continue
			}
			t.stats.AddForwarded(OverlayToBusDir)
		}
	}
}
