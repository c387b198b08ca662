// Package eventlog keeps the route journal in memory.
package eventlog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/eventlog"
)

// DefaultRetention is the number of events kept when none is given
const DefaultRetention = 1024

var (
	// ErrNegativeOffset is returned when a negative offset is provided
	ErrNegativeOffset = errors.New("offset cannot be negative")
	// ErrNegativeMaxCount is returned when a negative max count is provided
	ErrNegativeMaxCount = errors.New("max count cannot be negative")
	// ErrClosed is returned by appends after Close
	ErrClosed = errors.New("event log is closed")
)

// InMemoryEventLog keeps the most recent events in a ring buffer. It is safe
// for concurrent use.
type InMemoryEventLog struct {
	mu         sync.RWMutex
	ring       []eventlog.Event
	start      int // index of the oldest retained event
	size       int
	nextOffset int64
	kindCounts map[eventlog.Kind]int64
	closed     bool
	now        func() time.Time
}

var _ eventlog.EventLog = (*InMemoryEventLog)(nil)

// NewInMemoryEventLog creates a log retaining up to retention events
func NewInMemoryEventLog(retention int) *InMemoryEventLog {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &InMemoryEventLog{
		ring:       make([]eventlog.Event, retention),
		kindCounts: make(map[eventlog.Kind]int64),
		now:        time.Now,
	}
}

// AppendEvent implements eventlog.EventLog
func (log *InMemoryEventLog) AppendEvent(ctx context.Context, e eventlog.Event) (eventlog.Event, error) {
	if err := ctx.Err(); err != nil {
		return eventlog.Event{}, err
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	if log.closed {
		return eventlog.Event{}, ErrClosed
	}

	e.Offset = log.nextOffset
	if e.Time.IsZero() {
		e.Time = log.now().UTC()
	}
	log.nextOffset++
	log.kindCounts[e.Kind]++

	if log.size < len(log.ring) {
		log.ring[(log.start+log.size)%len(log.ring)] = e
		log.size++
	} else {
		log.ring[log.start] = e
		log.start = (log.start + 1) % len(log.ring)
	}
	return e, nil
}

// ReadEvents implements eventlog.EventLog
func (log *InMemoryEventLog) ReadEvents(ctx context.Context, key string, startOffset int64, maxCount int) ([]eventlog.Event, error) {
	if startOffset < 0 {
		return nil, ErrNegativeOffset
	}
	if maxCount < 0 {
		return nil, ErrNegativeMaxCount
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.mu.RLock()
	defer log.mu.RUnlock()

	results := make([]eventlog.Event, 0, min(maxCount, log.size))
	if maxCount == 0 || log.size == 0 {
		return results, nil
	}

	oldest := log.nextOffset - int64(log.size)
	skip := 0
	if startOffset > oldest {
		skip = int(min(startOffset-oldest, int64(log.size)))
	}
	for i := skip; i < log.size && len(results) < maxCount; i++ {
		e := log.ring[(log.start+i)%len(log.ring)]
		if key != "" && e.Key != key {
			continue
		}
		results = append(results, e)
	}
	return results, nil
}

// EndOffset implements eventlog.EventLog
func (log *InMemoryEventLog) EndOffset(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	log.mu.RLock()
	defer log.mu.RUnlock()
	return log.nextOffset, nil
}

// GetStatistics implements eventlog.EventLog
func (log *InMemoryEventLog) GetStatistics(ctx context.Context) (eventlog.Statistics, error) {
	if err := ctx.Err(); err != nil {
		return eventlog.Statistics{}, err
	}
	log.mu.RLock()
	defer log.mu.RUnlock()

	counts := make(map[eventlog.Kind]int64, len(log.kindCounts))
	for k, v := range log.kindCounts {
		counts[k] = v
	}
	return eventlog.Statistics{
		TotalEvents: log.nextOffset,
		Retained:    log.size,
		KindCounts:  counts,
	}, nil
}

// Close drops every retained event. It is idempotent.
func (log *InMemoryEventLog) Close() error {
	log.mu.Lock()
	defer log.mu.Unlock()
	if log.closed {
		return nil
	}
	log.closed = true
	clear(log.ring)
	log.start, log.size = 0, 0
	return nil
}
