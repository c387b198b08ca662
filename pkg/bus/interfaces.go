package bus

import (
	"io"
	"sync/atomic"
)

// DomainDefault asks the runtime to use its configured default domain.
const DomainDefault uint32 = 0xFFFFFFFF

// InstanceHandle identifies an entity within a runtime
type InstanceHandle uint64

// EndpointKey is the 16-byte built-in topic key (the endpoint GUID).
// Byte 15 holds the DDSI entity kind.
type EndpointKey [16]byte

// InstanceState is the lifecycle state of the instance a sample belongs to
type InstanceState int

const (
	InstanceAlive InstanceState = iota
	InstanceNotAliveDisposed
	InstanceNotAliveNoWriters
)

func (s InstanceState) String() string {
	switch s {
	case InstanceAlive:
		return "Alive"
	case InstanceNotAliveDisposed:
		return "NotAliveDisposed"
	case InstanceNotAliveNoWriters:
		return "NotAliveNoWriters"
	default:
		return "Unknown"
	}
}

// BuiltinTopic names one of the built-in discovery topics
type BuiltinTopic int

const (
	BuiltinPublications BuiltinTopic = iota
	BuiltinSubscriptions
)

func (b BuiltinTopic) String() string {
	if b == BuiltinPublications {
		return "DCPSPublication"
	}
	return "DCPSSubscription"
}

// SampleInfo carries the metadata delivered alongside a sample
type SampleInfo struct {
	ValidData     bool
	InstanceState InstanceState
}

// Payload wraps a sample buffer owned by the bus runtime. Ownership moves
// out exactly once through Detach; after that the runtime no longer touches
// the bytes and the caller may hand them on.
type Payload struct {
	data     []byte
	zeroCopy bool
	detached atomic.Bool
}

// NewPayload wraps data. When zeroCopy is true, Detach hands out data itself;
// otherwise Detach returns a copy and data remains the runtime's.
func NewPayload(data []byte, zeroCopy bool) *Payload {
	return &Payload{data: data, zeroCopy: zeroCopy}
}

// Bytes returns a read-only view valid until the owning loan is returned.
func (p *Payload) Bytes() []byte {
	if p == nil {
		return nil
	}
	return p.data
}

// Len returns the payload size in bytes
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.data)
}

// Detach transfers ownership of the bytes to the caller. Only the first call
// returns data; later calls return nil.
func (p *Payload) Detach() []byte {
	if p == nil || !p.detached.CompareAndSwap(false, true) {
		return nil
	}
	if p.zeroCopy {
		return p.data
	}
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out
}

// Sample is one data sample taken from a Reader
type Sample struct {
	Info    SampleInfo
	Payload *Payload
}

// Loan is a batch of samples borrowed from the runtime. Return must be called
// once the samples have been processed.
type Loan struct {
	Samples []Sample
	release func()
	done    atomic.Bool
}

// NewLoan creates a loan that calls release when returned.
func NewLoan(samples []Sample, release func()) *Loan {
	return &Loan{Samples: samples, release: release}
}

// Return hands the batch back to the runtime. It is idempotent.
func (l *Loan) Return() {
	if l == nil || !l.done.CompareAndSwap(false, true) {
		return
	}
	if l.release != nil {
		l.release()
	}
}

// DiscoverySample is a sample of a built-in publication/subscription topic
type DiscoverySample struct {
	Info              SampleInfo
	Key               EndpointKey
	ParticipantHandle InstanceHandle
	TopicName         string
	TypeName          string
	// QoS may be nil on key-only (not alive) samples.
	QoS *QoS
}

// Topic is a topic handle for the raw payload representation
type Topic interface {
	Name() string
	TypeName() string
	Keyless() bool
}

// Reader is a raw payload data reader
type Reader interface {
	io.Closer

	// Take removes up to max samples without blocking. An empty loan means
	// nothing is available.
	Take(max int) (*Loan, error)

	// QoS returns the policy the reader was created with.
	QoS() QoS
}

// Writer is a raw payload data writer
type Writer interface {
	io.Closer

	// WriteRaw submits payload as one serialized sample. The writer does not
	// retain payload after WriteRaw returns.
	WriteRaw(payload []byte) error

	// QoS returns the policy the writer was created with.
	QoS() QoS
}

// DiscoveryReader reads one of the built-in discovery topics
type DiscoveryReader interface {
	io.Closer

	// TakeDiscovery removes up to max discovery samples without blocking.
	TakeDiscovery(max int) ([]DiscoverySample, error)
}

// DataListener is notified on the runtime dispatch goroutine when a reader
// has data. It must not block.
type DataListener interface {
	OnDataAvailable(r Reader)
}

// DiscoveryListener is notified on the runtime dispatch goroutine when a
// discovery reader has samples. It must not block.
type DiscoveryListener interface {
	OnDiscoveryAvailable(r DiscoveryReader)
}

// Participant is a domain participant. It is a long-lived handle shared by
// every route; creating entities is its only mutation.
type Participant interface {
	io.Closer

	// DomainID returns the domain the participant joined.
	DomainID() uint32

	// InstanceHandle identifies this participant in discovery samples.
	InstanceHandle() InstanceHandle

	// CreateBlobTopic creates a topic whose samples are opaque serialized bytes.
	CreateBlobTopic(topicName, typeName string, keyless bool) (Topic, error)

	// CreateReader creates a reader; listener may be nil. The reader takes
	// ownership of qos.
	CreateReader(topic Topic, qos *QoS, listener DataListener) (Reader, error)

	// CreateWriter creates a writer. The writer takes ownership of qos.
	CreateWriter(topic Topic, qos *QoS) (Writer, error)

	// CreateDiscoveryReader attaches listener to a built-in discovery topic.
	CreateDiscoveryReader(topic BuiltinTopic, listener DiscoveryListener) (DiscoveryReader, error)
}
