// Package routingtable defines the bridge's route table.
//
// A route is the set of bus and overlay entities created for one RouteKey
// in one direction:
//   - Publication routes forward bus samples to the overlay. They own a
//     declared resource, a publisher, a bus reader and an encoder.
//   - Subscription routes forward overlay samples to the bus. They own a
//     bus writer, an overlay subscriber, a decoder and the forwarding task.
//
// The table keeps publications and subscriptions in two independent maps so
// the same key may be routed in both directions. A key appears at most once
// per map.
//
// The table is not safe for concurrent use. It is owned by the bridge
// control loop, and every read and mutation happens there.
//
// Example usage:
//
//	if r, ok := table.Lookup(routingtable.Publication, key); ok {
//		r.AddEndpoint(event.Endpoint)
//		return
//	}
//	route := routingtable.NewRoute(routingtable.Publication, key, topic, typeName, partition)
//	if err := table.Insert(route); err != nil {
//		return err
//	}
package routingtable
