package coder

import "sync/atomic"

// Identity forwards payloads unchanged in both directions
type Identity struct {
	w      Writer
	closed atomic.Bool
}

// NewIdentity creates an identity coder writing to w
func NewIdentity(w Writer) *Identity {
	return &Identity{w: w}
}

// IdentityFactory is the Factory used when nothing is registered
func IdentityFactory(_, _ string, w Writer, _ Direction) (Coder, error) {
	return NewIdentity(w), nil
}

// Encode forwards p
func (c *Identity) Encode(p []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.w.Write(p)
}

// Decode forwards p
func (c *Identity) Decode(p []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.w.Write(p)
}

// Close marks the coder closed
func (c *Identity) Close() error {
	c.closed.Store(true)
	return nil
}

var _ Coder = (*Identity)(nil)
