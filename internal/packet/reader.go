package packet

import (
	"encoding/binary"

	errors "golang.org/x/xerrors"
)

var networkOrder = binary.BigEndian

// ErrShortBuffer is reported when a read or write runs past the end of the
// underlying buffer.
var ErrShortBuffer = errors.New("short buffer")

// Reader decodes network-order fields from a datagram. Reads past the end of
// the buffer do not panic; they return zero values and latch ErrShortBuffer,
// which callers check once with Err() after decoding a whole header.
type Reader struct {
	buffer []byte
	offset int
	err    error
}

func NewReader(buffer []byte) *Reader {
	return &Reader{buffer: buffer}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.Remaining() < n {
		r.err = errors.Errorf("%d bytes remaining, %d needed: %w", r.Remaining(), n, ErrShortBuffer)
		r.offset = len(r.buffer)
		return nil
	}
	v := r.buffer[r.offset : r.offset+n]
	r.offset += n
	return v
}

func (r *Reader) ReadByte() byte {
	if v := r.take(1); v != nil {
		return v[0]
	}
	return 0
}

func (r *Reader) ReadUint16() uint16 {
	if v := r.take(2); v != nil {
		return networkOrder.Uint16(v)
	}
	return 0
}

func (r *Reader) ReadUint32() uint32 {
	if v := r.take(4); v != nil {
		return networkOrder.Uint32(v)
	}
	return 0
}

// ReadSlice returns the next n bytes without copying.
func (r *Reader) ReadSlice(n int) []byte {
	return r.take(n)
}

func (r *Reader) Skip(n int) {
	r.take(n)
}

func (r *Reader) ReadRemaining() []byte {
	return r.take(r.Remaining())
}

// Return the number of bytes left in the buffer.
func (r *Reader) Remaining() int {
	return len(r.buffer) - r.offset
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.offset
}

func (r *Reader) CheckRemaining(needed int) error {
	if r.Remaining() < needed {
		return errors.Errorf("%d bytes remaining, %d needed: %w", r.Remaining(), needed, ErrShortBuffer)
	}
	return nil
}

// Err returns the first short read, if any.
func (r *Reader) Err() error {
	return r.err
}
