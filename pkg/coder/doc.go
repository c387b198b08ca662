// Package coder provides the pluggable transform stage between the bus and
// the overlay.
//
// A Coder sits in front of a Writer. Encode is used on the bus→overlay
// direction and Decode on overlay→bus; both hand their result to the Writer
// the coder was built with. Coders may produce zero, one or many writes per
// input and may write asynchronously.
//
// Coders are chosen per route through a Registry:
//
//	reg := coder.NewRegistry()
//	reg.RegisterType("sensor_msgs::msg::dds_::Image_", zstdFactory)
//	reg.RegisterTopic("rt/camera/raw", pipelineFactory)
//
//	enc, err := reg.NewEncoder("rt/chatter", "std_msgs::msg::dds_::String_", w)
//	// no binding for the topic or type: enc is the identity coder
//
// Topic bindings win over type bindings, and anything unbound falls back to
// Identity. An unknown type is never an error.
package coder
