package bridge

// RouteKey builds the overlay key of the route for topic. A nil partition
// gives "{scope}/{topic}".
func RouteKey(scope string, partition *string, topic string) string {
	if partition == nil {
		return scope + "/" + topic
	}
	return scope + "/" + *partition + "/" + topic
}
