package overlay

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrSessionClosed is returned by operations on a closed session
	ErrSessionClosed = errors.New("overlay session is closed")
	// ErrUnknownResource is returned for a resource id that was never declared
	ErrUnknownResource = errors.New("unknown resource id")
	// ErrInvalidKeyExpr is returned for an empty or malformed key expression
	ErrInvalidKeyExpr = errors.New("invalid key expression")
)

// ResourceID is the session-local numeric id of a declared resource
type ResourceID uint64

// Sample is one payload received on a subscription
type Sample struct {
	Key     string
	Payload []byte
}

// Reliability of a subscription
type Reliability int

const (
	ReliabilityReliable Reliability = iota
	ReliabilityBestEffort
)

// SubMode selects push or pull delivery
type SubMode int

const (
	SubModePush SubMode = iota
	SubModePull
)

// SubInfo describes how a subscriber wants samples delivered
type SubInfo struct {
	Reliability Reliability
	Mode        SubMode
}

// SessionInfo reports the identity and connectivity of a session
type SessionInfo struct {
	ID        string
	Mode      Mode
	Locators  []string
	Peers     []string
	Resources int
}

// Publisher is a declared publication on a resource
type Publisher interface {
	io.Closer

	// Resource returns the resource the publisher was declared on.
	Resource() ResourceID
}

// Subscriber is a declared subscription
type Subscriber interface {
	io.Closer

	// KeyExpr returns the expression the subscriber was declared with.
	KeyExpr() string

	// Stream returns the channel of received samples. The channel is closed
	// when the subscriber or its session closes and is never reopened.
	Stream() <-chan Sample
}

// Session is a handle on the overlay. It is safe for concurrent use.
type Session interface {
	io.Closer

	// ID returns the session's unique id.
	ID() string

	// DeclareResource registers key and returns its numeric id.
	DeclareResource(ctx context.Context, key string) (ResourceID, error)

	// UndeclareResource releases a resource id and any publisher on it.
	UndeclareResource(ctx context.Context, rid ResourceID) error

	// DeclarePublisher announces that this session will write to rid.
	DeclarePublisher(ctx context.Context, rid ResourceID) (Publisher, error)

	// Write publishes payload on rid. It never blocks; the session owns
	// payload once Write returns.
	Write(ctx context.Context, rid ResourceID, payload []byte) error

	// DeclareSubscriber subscribes to every key intersecting keyExpr.
	DeclareSubscriber(ctx context.Context, keyExpr string, info SubInfo) (Subscriber, error)

	// Info reports the session's identity and connectivity.
	Info() SessionInfo
}
