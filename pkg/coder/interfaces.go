package coder

import (
	"errors"
	"io"
)

// ErrClosed is returned by a coder used after Close
var ErrClosed = errors.New("coder is closed")

// Direction tells a factory which side of a route the coder serves
type Direction int

const (
	// Encoding is the bus→overlay direction
	Encoding Direction = iota
	// Decoding is the overlay→bus direction
	Decoding
)

func (d Direction) String() string {
	if d == Decoding {
		return "decode"
	}
	return "encode"
}

// Writer is the sink a Coder forwards its output to. The writer may use p
// only until Write returns.
type Writer interface {
	Write(p []byte) error
}

// WriterFunc adapts a function to Writer
type WriterFunc func(p []byte) error

// Write calls f(p)
func (f WriterFunc) Write(p []byte) error {
	return f(p)
}

// Coder transforms payloads between the bus and overlay representations
type Coder interface {
	io.Closer

	// Encode transforms a bus payload and forwards it to the writer.
	Encode(p []byte) error

	// Decode transforms an overlay payload and forwards it to the writer.
	Decode(p []byte) error
}

// Factory builds a coder for one route
type Factory func(topic, typeName string, w Writer, dir Direction) (Coder, error)
