package protocol

// LineBuffer frames a byte stream into newline-terminated lines using a fixed
// capacity. A line that does not fit is discarded as a whole and reported as
// ErrLineTooLong once its terminator arrives; it is never truncated.
type LineBuffer struct {
	buf      []byte
	capacity int
	overflow bool
}

// NewLineBuffer creates a buffer that accepts lines shorter than capacity bytes.
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity < 2 {
		capacity = 2
	}
	return &LineBuffer{
		buf:      make([]byte, 0, capacity),
		capacity: capacity,
	}
}

// Capacity returns the receive buffer size. Lines must be strictly shorter.
func (b *LineBuffer) Capacity() int { return b.capacity }

// Push adds one received byte. It reports a completed line, or an error when
// the line just terminated had overflowed the buffer. Both CR and LF
// terminate a line; empty lines are skipped.
func (b *LineBuffer) Push(c byte) (line string, ok bool, err error) {
	if c == '\n' || c == '\r' {
		if b.overflow {
			b.overflow = false
			b.buf = b.buf[:0]
			return "", false, newError(ErrLineTooLong, "", "line exceeds %d bytes, discarded", b.capacity-1)
		}
		if len(b.buf) == 0 {
			return "", false, nil
		}
		line = string(b.buf)
		b.buf = b.buf[:0]
		return line, true, nil
	}

	if b.overflow {
		return "", false, nil
	}
	if len(b.buf) >= b.capacity-1 {
		b.overflow = true
		b.buf = b.buf[:0]
		return "", false, nil
	}
	b.buf = append(b.buf, c)
	return "", false, nil
}

// Write pushes every byte of p, calling fn for each completed line or framing
// error in order.
func (b *LineBuffer) Write(p []byte, fn func(line string, err error)) {
	for _, c := range p {
		line, ok, err := b.Push(c)
		switch {
		case err != nil:
			fn("", err)
		case ok:
			fn(line, nil)
		}
	}
}

// Reset drops any partially received line.
func (b *LineBuffer) Reset() {
	b.buf = b.buf[:0]
	b.overflow = false
}
