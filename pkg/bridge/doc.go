// Package bridge provides the public view of a running DDS/overlay bridge.
//
// The bridge mirrors DDS publications and subscriptions onto the overlay:
//   - Every discovered DDS publication gets an overlay resource, keyed by its
//     RouteKey, and a DDS reader that forwards samples onto it.
//   - Every discovered DDS subscription gets a DDS writer fed by an overlay
//     subscriber on the same key.
//
// A RouteKey is "{scope}/{partition}/{topic}", or "{scope}/{topic}" for
// entities without a partition. All entities sharing a key share one route.
//
// Example usage:
//
//	routes, err := b.Routes(ctx)
//	if err != nil {
//		return err
//	}
//	for _, r := range routes {
//		fmt.Printf("%s %s %s\n", r.Direction, r.Key, r.State)
//	}
package bridge
