package flow

import "sync"

const (
	ipv4HeaderSize = 20
	udpHeaderSize  = 8

	// RecvMax is the capacity of a ring slot: the largest UDP payload that
	// fits in an IPv4 datagram.
	RecvMax = 0xffff - ipv4HeaderSize - udpHeaderSize

	// DefaultBufferSize is the initial ring budget in bytes.
	DefaultBufferSize = 4 * 1024 * 1024
)

// A slot holds one staged datagram. n == 0 means nothing is staged.
type slot struct {
	buf []byte
	n   int
}

// ring is a circular queue of slots shared between the receiver (producer)
// and the processor (consumer).
//
// The slot at index read belongs to the processor, and the datagrams not yet
// processed live in (read, write]. write is only advanced by the receiver,
// after the datagram has been fully received into the slot; read is only
// advanced by the processor. When the receiver is about to write into the
// processor's slot the ring grows instead of overwriting. It never shrinks.
//
// Slots are held by pointer so that a slot stays put while the processor
// works on it, even if the receiver inserts new slots in the meantime.
type ring struct {
	sync.Mutex
	slots []*slot
	read  int
	write int
}

func slotsFor(budget int) int {
	return max(1, budget/RecvMax)
}

func newRing(n int) *ring {
	return &ring{slots: allocateSlots(n)}
}

// Allocate a single pool and split it into n slots of RecvMax bytes.
func allocateSlots(n int) []*slot {
	pool := make([]byte, n*RecvMax)
	slots := make([]*slot, n)
	for i := range slots {
		slots[i] = &slot{buf: pool[i*RecvMax : (i+1)*RecvMax : (i+1)*RecvMax]}
	}
	return slots
}

// reserve returns the slot the receiver should fill next, together with its
// index for commit. grown is the number of slots added to make room.
func (r *ring) reserve() (s *slot, index int, grown int) {
	r.Lock()
	defer r.Unlock()

	next := (r.write + 1) % len(r.slots)
	if next == r.read {
		// Grow by 25% (at least one slot). New slots go right after write,
		// which keeps the unread region (read, write] contiguous and in order.
		grown = max(1, len(r.slots)/4)
		pos := r.write + 1

		slots := make([]*slot, 0, len(r.slots)+grown)
		slots = append(slots, r.slots[:pos]...)
		slots = append(slots, allocateSlots(grown)...)
		slots = append(slots, r.slots[pos:]...)
		r.slots = slots

		if r.read >= pos {
			r.read += grown
		}
		next = pos
	}
	return r.slots[next], next, grown
}

// commit publishes a filled slot to the processor.
func (r *ring) commit(index int, n int) {
	r.Lock()
	r.slots[index].n = n
	r.write = index
	r.Unlock()
}

// next advances the read cursor by one slot and returns that slot, or false
// if there is nothing left to process.
func (r *ring) next() (*slot, bool) {
	r.Lock()
	defer r.Unlock()

	if len(r.slots) == 0 || r.read == r.write {
		return nil, false
	}
	r.read = (r.read + 1) % len(r.slots)
	return r.slots[r.read], true
}

func (r *ring) capacity() int {
	r.Lock()
	defer r.Unlock()
	return len(r.slots)
}

// pending returns the number of committed datagrams not yet processed.
func (r *ring) pending() int {
	r.Lock()
	defer r.Unlock()
	if len(r.slots) == 0 {
		return 0
	}
	return (r.write - r.read + len(r.slots)) % len(r.slots)
}

func (r *ring) release() {
	r.Lock()
	r.slots = nil
	r.read, r.write = 0, 0
	r.Unlock()
}
