// Package eventlog defines the bridge's route journal: an append-only,
// offset-ordered record of route lifecycle events.
//
// The control loop appends an Event whenever a route is created, removed or
// fails, when route creation is rolled back, and when the allow filter
// rejects a key. Operators read it back through the admin API:
//
//	events, err := log.ReadEvents(ctx, "", 0, 100)
//	if err != nil {
//		return err
//	}
//	next := events[len(events)-1].Offset + 1
//
// Offsets start at 0 and are never reused. Implementations may retain only
// the most recent events; reads below the oldest retained offset start at
// the oldest retained event.
package eventlog
