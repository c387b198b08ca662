package discovery

import (
	"fmt"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bus"
)

// Kind classifies a discovery event
type Kind int

const (
	DiscoveredPublication Kind = iota
	UndiscoveredPublication
	DiscoveredSubscription
	UndiscoveredSubscription
)

func (k Kind) String() string {
	switch k {
	case DiscoveredPublication:
		return "DiscoveredPublication"
	case UndiscoveredPublication:
		return "UndiscoveredPublication"
	case DiscoveredSubscription:
		return "DiscoveredSubscription"
	case UndiscoveredSubscription:
		return "UndiscoveredSubscription"
	default:
		return "Unknown"
	}
}

// IsPublication reports whether the event is about a remote writer
func (k Kind) IsPublication() bool {
	return k == DiscoveredPublication || k == UndiscoveredPublication
}

// IsDiscovered reports whether the event announces a live endpoint
func (k Kind) IsDiscovered() bool {
	return k == DiscoveredPublication || k == DiscoveredSubscription
}

// Event is one matched bus entity, produced per partition of the entity.
// Keyless and QoS are only meaningful on discovered events; QoS is owned by
// the event and may be handed to the bus runtime.
type Event struct {
	Kind        Kind
	TopicName   string
	TypeName    string
	Partition   *string
	Endpoint    bus.EndpointKey
	Participant bus.InstanceHandle
	Keyless     bool
	QoS         *bus.QoS
}

// PartitionName returns the partition, or "" when the event has none
func (e Event) PartitionName() string {
	if e.Partition == nil {
		return ""
	}
	return *e.Partition
}

func (e Event) String() string {
	if e.Partition == nil {
		return fmt.Sprintf("%s(%s, %s)", e.Kind, e.TopicName, e.TypeName)
	}
	return fmt.Sprintf("%s(%s, %s, partition=%s)", e.Kind, e.TopicName, e.TypeName, *e.Partition)
}

// IsKeyless reports whether the endpoint key designates a keyless topic.
// Byte 15 of the key holds the entity kind; kinds 3 and 4 are the
// no-key writer and reader.
func IsKeyless(key bus.EndpointKey) bool {
	return key[15] == 3 || key[15] == 4
}
