// Package overlay defines the pub/sub overlay session capability the bridge
// depends on.
//
// The overlay addresses data by hierarchical string keys ("resources") whose
// chunks are separated by '/'. This package defines:
//   - Session: a handle on the overlay shared by every route
//   - Publisher / Subscriber: per-route declarations on a session
//   - Config: the session options the CLI and config file produce
//   - Key expressions: Intersects, Includes and Generalize
//
// Key expressions may contain two wildcards. '*' matches exactly one chunk
// and '**' matches zero or more chunks:
//
//	Includes("robot1/*", "robot1/Chatter")     // true
//	Includes("robot1/*", "robot1/a/Chatter")   // false
//	Includes("**/Chatter", "robot1/a/Chatter") // true
//	Intersects("*/Chatter", "robot1/**")       // true
//
// Writes never block: Session.Write hands the payload to the session and
// returns. Samples that cannot be queued are dropped by the session. This
// lets the bus-side callback publish directly.
//
// Example usage:
//
//	rid, err := session.DeclareResource(ctx, "robot1/Chatter")
//	if err != nil {
//		return err
//	}
//	if _, err := session.DeclarePublisher(ctx, rid); err != nil {
//		return err
//	}
//	err = session.Write(ctx, rid, payload)
//
//	sub, err := session.DeclareSubscriber(ctx, "robot1/Chatter", overlay.SubInfo{})
//	if err != nil {
//		return err
//	}
//	for sample := range sub.Stream() {
//		handle(sample.Payload)
//	}
package overlay
