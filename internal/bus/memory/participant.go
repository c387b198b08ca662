package memory

import (
	"fmt"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bus"
)

// Participant is a domain participant of an in-process Domain
type Participant struct {
	domain     *Domain
	handle     bus.InstanceHandle
	guidPrefix [12]byte
	dispatcher *dispatcher

	// guarded by domain.mu
	closed bool
}

// DomainID returns the id of the domain this participant joined
func (p *Participant) DomainID() uint32 {
	return p.domain.id
}

// InstanceHandle returns the handle that discovery samples carry for this participant
func (p *Participant) InstanceHandle() bus.InstanceHandle {
	return p.handle
}

// CreateBlobTopic creates a topic carrying opaque serialized payloads
func (p *Participant) CreateBlobTopic(topicName, typeName string, keyless bool) (bus.Topic, error) {
	if topicName == "" {
		return nil, ErrEmptyTopicName
	}
	p.domain.mu.Lock()
	defer p.domain.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	return &blobTopic{domain: p.domain, name: topicName, typeName: typeName, keyless: keyless}, nil
}

// CreateReader creates a data reader. A nil qos means bus.DefaultQoS.
func (p *Participant) CreateReader(topic bus.Topic, qos *bus.QoS, listener bus.DataListener) (bus.Reader, error) {
	d := p.domain
	t, err := d.topicOf(topic)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	kind := byte(kindReaderWithKey)
	if t.keyless {
		kind = kindReaderNoKey
	}
	r := &reader{
		participant: p,
		topic:       t,
		qos:         ownQoS(qos),
		listener:    listener,
		key:         d.endpointKey(p, kind),
	}
	d.readers[r] = struct{}{}

	q := r.qos.Clone()
	d.announce(bus.BuiltinSubscriptions, bus.DiscoverySample{
		Info:              bus.SampleInfo{ValidData: true, InstanceState: bus.InstanceAlive},
		Key:               r.key,
		ParticipantHandle: p.handle,
		TopicName:         t.name,
		TypeName:          t.typeName,
		QoS:               &q,
	})
	return r, nil
}

// CreateWriter creates a data writer. A nil qos means bus.DefaultQoS.
func (p *Participant) CreateWriter(topic bus.Topic, qos *bus.QoS) (bus.Writer, error) {
	d := p.domain
	t, err := d.topicOf(topic)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	kind := byte(kindWriterWithKey)
	if t.keyless {
		kind = kindWriterNoKey
	}
	w := &writer{
		participant: p,
		topic:       t,
		qos:         ownQoS(qos),
		key:         d.endpointKey(p, kind),
	}
	d.writers[w] = struct{}{}

	q := w.qos.Clone()
	d.announce(bus.BuiltinPublications, bus.DiscoverySample{
		Info:              bus.SampleInfo{ValidData: true, InstanceState: bus.InstanceAlive},
		Key:               w.key,
		ParticipantHandle: p.handle,
		TopicName:         t.name,
		TypeName:          t.typeName,
		QoS:               &q,
	})
	return w, nil
}

// CreateDiscoveryReader attaches listener to a built-in discovery topic. The
// built-in topics are transient-local: endpoints that already exist are
// delivered to the new reader straight away.
func (p *Participant) CreateDiscoveryReader(topic bus.BuiltinTopic, listener bus.DiscoveryListener) (bus.DiscoveryReader, error) {
	d := p.domain
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	dr := &discoveryReader{participant: p, kind: topic, listener: listener}
	d.discovery[dr] = struct{}{}
	for _, a := range d.endpoints {
		if a.kind == topic {
			dr.enqueue(a.sample)
		}
	}
	return dr, nil
}

// Close deletes every entity of the participant, announcing their disposal,
// and stops its dispatch goroutine. It must not be called from a listener.
func (p *Participant) Close() error {
	d := p.domain
	d.mu.Lock()
	if p.closed {
		d.mu.Unlock()
		return nil
	}
	p.closed = true
	for r := range d.readers {
		if r.participant == p {
			r.closeLocked()
		}
	}
	for w := range d.writers {
		if w.participant == p {
			w.closeLocked()
		}
	}
	for dr := range d.discovery {
		if dr.participant == p {
			dr.closeLocked()
		}
	}
	delete(d.participants, p.handle)
	d.mu.Unlock()

	p.dispatcher.close()
	return nil
}

func (p *Participant) String() string {
	return fmt.Sprintf("participant(domain=%d, handle=%d)", p.domain.id, p.handle)
}

func ownQoS(q *bus.QoS) bus.QoS {
	if q == nil {
		return bus.DefaultQoS()
	}
	return q.Clone()
}

var _ bus.Participant = (*Participant)(nil)
