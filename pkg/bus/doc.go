// Package bus defines the DDS participant capability the bridge depends on.
//
// The bridge never talks to a DDS implementation directly. Everything it
// needs from the data bus is expressed here:
//   - Participant: the domain participant handle shared by every route
//   - Reader / Writer: raw (blob) payload endpoints bound to a topic
//   - DiscoveryReader: readers on the built-in publication and subscription topics
//   - QoS: the policy object copied from discovery and applied to new endpoints
//   - Payload: a foreign-owned sample buffer with a single ownership transfer
//
// Callbacks (DataListener, DiscoveryListener) are invoked on the runtime's own
// dispatch goroutine. Implementations of those callbacks must not block.
//
// Example usage:
//
//	topic, err := participant.CreateBlobTopic("Chatter", "std_msgs::String", true)
//	if err != nil {
//		return err
//	}
//	reader, err := participant.CreateReader(topic, &qos, listener)
//	if err != nil {
//		return err
//	}
//	defer reader.Close()
//
// Durations follow DDS conventions: nanoseconds, with DurationInfinite as the
// "no bound" value.
package bus
