package protocol

// Cursor is a read position over an immutable byte buffer. Decoders
// advance it as fields are consumed, so a single cursor can walk a
// buffer holding several back-to-back packets.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor returns a cursor positioned at the start of b. The cursor
// never mutates b.
func NewCursor(b []byte) *Cursor {
	return &Cursor{buf: b}
}

// Remaining reports how many unconsumed bytes are left.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.off
}

// Peek returns the next n bytes without consuming them. The second
// return is false when fewer than n bytes remain.
func (c *Cursor) Peek(n int) ([]byte, bool) {
	if c.Remaining() < n {
		return nil, false
	}
	return c.buf[c.off : c.off+n], true
}

// Take consumes and returns the next n bytes.
func (c *Cursor) Take(n int) ([]byte, bool) {
	b, ok := c.Peek(n)
	if ok {
		c.off += n
	}
	return b, ok
}

// Skip consumes n bytes without returning them. Skipping past the end
// consumes everything that is left.
func (c *Cursor) Skip(n int) {
	if n > c.Remaining() {
		n = c.Remaining()
	}
	c.off += n
}
