// Package memory implements the bus capability as an in-process DDS domain.
//
// Participants created from the same Domain discover each other's readers
// and writers through the built-in discovery topics, exactly as separate
// processes would on a real domain. Each participant owns one dispatch
// goroutine on which all of its listeners run.
package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bus"
)

var (
	// ErrClosed is returned when using a closed participant or entity
	ErrClosed = errors.New("entity is closed")
	// ErrNilTopic is returned when creating an endpoint without a topic
	ErrNilTopic = errors.New("topic cannot be nil")
	// ErrEmptyTopicName is returned for an empty topic name
	ErrEmptyTopicName = errors.New("topic name cannot be empty")
	// ErrForeignTopic is returned when a topic was not created by this domain
	ErrForeignTopic = errors.New("topic was not created by this domain")
)

// DDSI entity kinds stored in byte 15 of an endpoint key.
const (
	kindWriterWithKey = 0x02
	kindWriterNoKey   = 0x03
	kindReaderNoKey   = 0x04
	kindReaderWithKey = 0x07
)

// Domain is an in-process DDS domain. It is safe for concurrent use.
type Domain struct {
	mu sync.Mutex
	id uint32

	nextHandle   uint64
	nextEntityID uint32

	participants map[bus.InstanceHandle]*Participant
	readers      map[*reader]struct{}
	writers      map[*writer]struct{}
	discovery    map[*discoveryReader]struct{}

	// endpoints holds the live announcements replayed to new discovery readers.
	endpoints map[bus.EndpointKey]announcement
}

type announcement struct {
	kind   bus.BuiltinTopic
	sample bus.DiscoverySample
}

// NewDomain creates an empty domain. bus.DomainDefault maps to domain 0.
func NewDomain(id uint32) *Domain {
	if id == bus.DomainDefault {
		id = 0
	}
	return &Domain{
		id:           id,
		participants: make(map[bus.InstanceHandle]*Participant),
		readers:      make(map[*reader]struct{}),
		writers:      make(map[*writer]struct{}),
		discovery:    make(map[*discoveryReader]struct{}),
		endpoints:    make(map[bus.EndpointKey]announcement),
	}
}

// ID returns the domain id
func (d *Domain) ID() uint32 {
	return d.id
}

// CreateParticipant joins a new participant to the domain.
func (d *Domain) CreateParticipant() (*Participant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextHandle++
	p := &Participant{
		domain:     d,
		handle:     bus.InstanceHandle(d.nextHandle),
		dispatcher: newDispatcher(),
	}
	binary.BigEndian.PutUint32(p.guidPrefix[0:4], d.id)
	binary.BigEndian.PutUint64(p.guidPrefix[4:12], d.nextHandle)
	d.participants[p.handle] = p
	return p, nil
}

// OutstandingLoans returns the number of loans taken from any reader of the
// domain that have not been returned yet.
func (d *Domain) OutstandingLoans() int {
	d.mu.Lock()
	readers := make([]*reader, 0, len(d.readers))
	for r := range d.readers {
		readers = append(readers, r)
	}
	d.mu.Unlock()

	total := 0
	for _, r := range readers {
		total += r.outstanding()
	}
	return total
}

// ReaderCount returns the number of open data readers on topicName
func (d *Domain) ReaderCount(topicName string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for r := range d.readers {
		if r.topic.name == topicName {
			n++
		}
	}
	return n
}

// WriterCount returns the number of open data writers on topicName
func (d *Domain) WriterCount(topicName string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for w := range d.writers {
		if w.topic.name == topicName {
			n++
		}
	}
	return n
}

// endpointKey must be called with d.mu held.
func (d *Domain) endpointKey(p *Participant, kind byte) bus.EndpointKey {
	d.nextEntityID++
	var key bus.EndpointKey
	copy(key[0:12], p.guidPrefix[:])
	key[12] = byte(d.nextEntityID >> 16)
	key[13] = byte(d.nextEntityID >> 8)
	key[14] = byte(d.nextEntityID)
	key[15] = kind
	return key
}

// announce must be called with d.mu held.
func (d *Domain) announce(kind bus.BuiltinTopic, sample bus.DiscoverySample) {
	if sample.Info.InstanceState == bus.InstanceAlive {
		d.endpoints[sample.Key] = announcement{kind: kind, sample: sample}
	} else {
		delete(d.endpoints, sample.Key)
	}
	for dr := range d.discovery {
		if dr.kind == kind {
			dr.enqueue(sample)
		}
	}
}

func dispose(key bus.EndpointKey, participant bus.InstanceHandle) bus.DiscoverySample {
	// Disposal carries only the key, like a real built-in topic dispose.
	return bus.DiscoverySample{
		Info:              bus.SampleInfo{ValidData: false, InstanceState: bus.InstanceNotAliveDisposed},
		Key:               key,
		ParticipantHandle: participant,
	}
}

func matches(w *writer, r *reader) bool {
	if w.topic.name != r.topic.name || w.topic.typeName != r.topic.typeName {
		return false
	}
	// Each participant stands for its own process, so both ignore-local
	// kinds reduce to "same participant".
	if w.participant == r.participant &&
		(r.qos.IgnoreLocal != bus.IgnoreLocalNone || w.qos.IgnoreLocal != bus.IgnoreLocalNone) {
		return false
	}
	return partitionsOverlap(w.qos.Partition, r.qos.Partition)
}

func partitionsOverlap(a, b []string) bool {
	if len(a) == 0 {
		a = []string{""}
	}
	if len(b) == 0 {
		b = []string{""}
	}
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

type blobTopic struct {
	domain   *Domain
	name     string
	typeName string
	keyless  bool
}

func (t *blobTopic) Name() string     { return t.name }
func (t *blobTopic) TypeName() string { return t.typeName }
func (t *blobTopic) Keyless() bool    { return t.keyless }

func (d *Domain) topicOf(t bus.Topic) (*blobTopic, error) {
	if t == nil {
		return nil, ErrNilTopic
	}
	bt, ok := t.(*blobTopic)
	if !ok || bt.domain != d {
		return nil, fmt.Errorf("%w: %s", ErrForeignTopic, t.Name())
	}
	return bt, nil
}
