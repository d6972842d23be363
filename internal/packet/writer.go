package packet

import (
	errors "golang.org/x/xerrors"
)

// Writer encodes network-order fields into a fixed buffer. Packet builders
// size the buffer up front (header, payload and the SRTP/SRTCP trailer), so
// the fixed-width writes below panic on overflow like slice indexing does.
type Writer struct {
	buffer []byte
	offset int
}

func NewWriter(buffer []byte) *Writer {
	return &Writer{buffer, 0}
}

func NewWriterSize(n int) *Writer {
	return NewWriter(make([]byte, n))
}

func (w *Writer) WriteByte(v byte) {
	w.buffer[w.offset] = v
	w.offset++
}

func (w *Writer) WriteUint16(v uint16) {
	networkOrder.PutUint16(w.buffer[w.offset:], v)
	w.offset += 2
}

func (w *Writer) WriteUint32(v uint32) {
	networkOrder.PutUint32(w.buffer[w.offset:], v)
	w.offset += 4
}

// Write the given bytes, if there is enough room.
func (w *Writer) WriteSlice(p []byte) error {
	if err := w.CheckCapacity(len(p)); err != nil {
		return err
	}
	w.offset += copy(w.buffer[w.offset:], p)
	return nil
}

// ZeroPad reserves n zero bytes, e.g. the trailing auth tag region that is
// filled in after the rest of the packet has been written.
func (w *Writer) ZeroPad(n int) error {
	if err := w.CheckCapacity(n); err != nil {
		return err
	}
	clear(w.buffer[w.offset : w.offset+n])
	w.offset += n
	return nil
}

// Return the number of bytes written so far.
func (w *Writer) Length() int {
	return w.offset
}

func (w *Writer) Rewind(n int) {
	w.offset -= n
	if w.offset < 0 {
		w.offset = 0
	}
}

// Return the number of bytes that the underlying buffer can hold.
func (w *Writer) Capacity() int {
	return len(w.buffer)
}

// CheckCapacity verifies that needed more bytes fit after the current offset.
func (w *Writer) CheckCapacity(needed int) error {
	if avail := len(w.buffer) - w.offset; avail < needed {
		return errors.Errorf("%d bytes available, %d needed: %w", avail, needed, ErrShortBuffer)
	}
	return nil
}

// Return a slice of the bytes written so far.
func (w *Writer) Bytes() []byte {
	return w.buffer[0:w.offset]
}

func (w *Writer) Reset() {
	w.offset = 0
}
