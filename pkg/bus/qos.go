package bus

import (
	"math"
	"slices"
	"time"
)

// DurationInfinite is the DDS infinite duration (0x7FFFFFFFFFFFFFFF ns).
const DurationInfinite time.Duration = math.MaxInt64

// ReliabilityKind selects best-effort or reliable delivery
type ReliabilityKind int

const (
	BestEffort ReliabilityKind = iota
	Reliable
)

func (k ReliabilityKind) String() string {
	switch k {
	case BestEffort:
		return "BestEffort"
	case Reliable:
		return "Reliable"
	default:
		return "Unknown"
	}
}

// DurabilityKind selects how long samples outlive their writer
type DurabilityKind int

const (
	Volatile DurabilityKind = iota
	TransientLocal
	Transient
	Persistent
)

// HistoryKind selects how many samples are kept per instance
type HistoryKind int

const (
	KeepLast HistoryKind = iota
	KeepAll
)

func (k HistoryKind) String() string {
	if k == KeepAll {
		return "KeepAll"
	}
	return "KeepLast"
}

// IgnoreLocalKind controls matching with local endpoints
type IgnoreLocalKind int

const (
	IgnoreLocalNone IgnoreLocalKind = iota
	IgnoreLocalParticipant
	IgnoreLocalProcess
)

// OwnershipKind selects shared or exclusive ownership of instances
type OwnershipKind int

const (
	SharedOwnership OwnershipKind = iota
	ExclusiveOwnership
)

// Reliability is the reliability policy
type Reliability struct {
	Kind ReliabilityKind
	// MaxBlockingTime bounds how long a reliable writer may block.
	MaxBlockingTime time.Duration
}

// History is the history policy; Depth is only meaningful for KeepLast
type History struct {
	Kind  HistoryKind
	Depth int
}

// QoS is the set of policies carried by discovery samples and applied to
// the endpoints the bridge creates. The zero value is a volatile,
// best-effort, keep-last(1) policy with no partitions.
type QoS struct {
	Reliability Reliability
	Durability  DurabilityKind
	History     History
	IgnoreLocal IgnoreLocalKind
	Partition   []string
	Deadline    time.Duration
	Ownership   OwnershipKind
}

// DefaultQoS returns the DDS defaults for a reader
func DefaultQoS() QoS {
	return QoS{
		Reliability: Reliability{Kind: BestEffort, MaxBlockingTime: 100 * time.Millisecond},
		Durability:  Volatile,
		History:     History{Kind: KeepLast, Depth: 1},
		Deadline:    DurationInfinite,
	}
}

// Clone returns a deep copy of q.
func (q QoS) Clone() QoS {
	c := q
	c.Partition = slices.Clone(q.Partition)
	return c
}
