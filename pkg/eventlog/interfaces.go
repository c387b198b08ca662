package eventlog

import (
	"context"
	"io"
	"time"
)

// Kind classifies a journal event
type Kind string

const (
	RouteCreated  Kind = "route_created"
	RouteRemoved  Kind = "route_removed"
	RouteFailed   Kind = "route_failed"
	RouteError    Kind = "route_error"
	AllowRejected Kind = "allow_rejected"
)

// Event is one journal entry
type Event struct {
	// Offset is assigned by the log on append
	Offset    int64     `json:"offset"`
	Time      time.Time `json:"time"`
	Kind      Kind      `json:"kind"`
	Key       string    `json:"key"`
	Direction string    `json:"direction,omitempty"`
	Topic     string    `json:"topic,omitempty"`
	Type      string    `json:"type,omitempty"`
	Partition string    `json:"partition,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// EventLog is an append-only journal of route events
type EventLog interface {
	io.Closer

	// AppendEvent assigns the next offset to e, stamps it if Time is zero,
	// and returns the stored copy.
	AppendEvent(ctx context.Context, e Event) (Event, error)

	// ReadEvents returns up to maxCount events with offset >= startOffset.
	// A non-empty key restricts the result to that route key.
	ReadEvents(ctx context.Context, key string, startOffset int64, maxCount int) ([]Event, error)

	// EndOffset returns the offset the next append will get.
	EndOffset(ctx context.Context) (int64, error)

	// GetStatistics returns aggregate counts over every event ever appended.
	GetStatistics(ctx context.Context) (Statistics, error)
}

// Statistics provides aggregate statistics about the journal
type Statistics struct {
	TotalEvents int64          `json:"totalEvents"`
	Retained    int            `json:"retained"`
	KindCounts  map[Kind]int64 `json:"kindCounts"`
}
