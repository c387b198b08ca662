// Package coders provides the concrete coders that can be bound to routes
// through a coder.Registry, and the YAML file that binds them.
package coders

import (
	"fmt"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/coder"
)

// maxDecodedSize bounds the memory a single decoded payload may use
const maxDecodedSize = 64 << 20

// Zstd compresses payloads on their way to the overlay and decompresses them
// on their way back to the bus.
type Zstd struct {
	w      coder.Writer
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	closed atomic.Bool
}

// NewZstd creates a zstd coder writing to w at the given level name
// ("fastest", "default", "better" or "best"; empty means default).
func NewZstd(w coder.Writer, level string) (*Zstd, error) {
	lvl := zstd.SpeedDefault
	if level != "" {
		ok, l := zstd.EncoderLevelFromString(level)
		if !ok {
			return nil, fmt.Errorf("unknown zstd level %q", level)
		}
		lvl = l
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Zstd{w: w, enc: enc, dec: dec}, nil
}

// ZstdFactory returns a coder.Factory building zstd coders at level
func ZstdFactory(level string) coder.Factory {
	return func(_, _ string, w coder.Writer, _ coder.Direction) (coder.Coder, error) {
		return NewZstd(w, level)
	}
}

// Encode compresses p into one frame
func (z *Zstd) Encode(p []byte) error {
	if z.closed.Load() {
		return coder.ErrClosed
	}
	return z.w.Write(z.enc.EncodeAll(p, make([]byte, 0, len(p)/2+64)))
}

// Decode decompresses one frame
func (z *Zstd) Decode(p []byte) error {
	if z.closed.Load() {
		return coder.ErrClosed
	}
	out, err := z.dec.DecodeAll(p, nil)
	if err != nil {
		return fmt.Errorf("zstd decode: %w", err)
	}
	return z.w.Write(out)
}

// Close releases the encoder and decoder. It is safe to call multiple times.
func (z *Zstd) Close() error {
	if !z.closed.CompareAndSwap(false, true) {
		return nil
	}
	z.dec.Close()
	return z.enc.Close()
}

var _ coder.Coder = (*Zstd)(nil)
