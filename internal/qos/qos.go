// Package qos derives the QoS of bridge-side endpoints from the QoS of the
// endpoints they were discovered from.
package qos

import (
	"time"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bus"
)

// TimeUnit is the smallest DDS duration step
const TimeUnit = time.Nanosecond

// Adapt returns a copy of discovered that keeps every sample and never
// matches endpoints of the bridge's own participant.
func Adapt(discovered bus.QoS) bus.QoS {
	q := discovered.Clone()
	q.History = bus.History{Kind: bus.KeepAll}
	q.IgnoreLocal = bus.IgnoreLocalParticipant
	return q
}

// ForReader returns the QoS for a reader mirroring a discovered writer
func ForReader(discovered bus.QoS) bus.QoS {
	return Adapt(discovered)
}

// ForWriter returns the QoS for a writer mirroring a discovered reader
func ForWriter(discovered bus.QoS) bus.QoS {
	return FixReliability(Adapt(discovered))
}

// FixReliability adds one time unit to a finite reliable max blocking time.
// The DDS runtime reports the value it was given minus one unit, so writing
// it back unchanged would shrink it on every hop.
func FixReliability(q bus.QoS) bus.QoS {
	if q.Reliability.Kind == bus.Reliable && q.Reliability.MaxBlockingTime < bus.DurationInfinite {
		q.Reliability.MaxBlockingTime += TimeUnit
	}
	return q
}
