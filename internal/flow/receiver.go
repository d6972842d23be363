package flow

import (
	"runtime"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/rxflow/internal/socket"
)

// Socket is the receive side of a datagram socket, as used by the receiver.
// *socket.UDP implements it.
type Socket interface {
	// Poll waits up to timeout for the socket to become readable.
	Poll(timeout time.Duration) (bool, error)

	// Recv receives one datagram without blocking. It returns
	// socket.ErrWouldBlock when nothing is pending.
	Recv(p []byte) (int, error)
}

// receive runs until the flow is stopped or the socket fails.
func (f *Flow) receive(sock Socket) error {
	log.Debug("Start reception loop")

	if f.opts.Priority != 0 {
		// The hint applies to an OS thread, so stay on one.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := setThreadPriority(f.opts.Priority); err != nil {
			log.Debug("Receiver priority %d not applied: %v", f.opts.Priority, err)
		}
	}

	for !f.stopping() {
		readable, err := sock.Poll(f.opts.PollTimeout)
		if err != nil {
			return errors.Wrap(err, "poll")
		}
		if !readable {
			continue
		}

		n, err := f.drainSocket(sock)
		if n > 0 {
			f.wakeProcessor()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// drainSocket receives datagrams into the ring until the socket has nothing
// more to give. It returns the number of datagrams staged.
func (f *Flow) drainSocket(sock Socket) (int, error) {
	count := 0
	for !f.stopping() {
		s, index, grown := f.ring.reserve()
		if grown > 0 {
			f.stats.grows.Add(1)
			log.Debug("Reception buffer ran out, grew by %d slots to %d", grown, f.ring.capacity())
		}

		n, err := sock.Recv(s.buf)
		if errors.Is(err, socket.ErrWouldBlock) || (err == nil && n == 0) {
			break
		}
		if errors.Is(err, socket.ErrTruncated) {
			// Leave the slot uncommitted; it is reused for the next datagram.
			f.stats.corrupt.Add(1)
			log.Warn("Dropping datagram larger than %d bytes", len(s.buf))
			continue
		}
		if err != nil {
			return count, errors.Wrap(err, "receive")
		}

		// Only now does the processor get to see the slot.
		f.ring.commit(index, n)
		f.stats.datagrams.Add(1)
		f.stats.bytes.Add(uint64(n))
		count++
	}
	return count, nil
}

// Signal the processor. A wake-up that is already pending is enough, since
// the processor always drains the whole ring before waiting again.
func (f *Flow) wakeProcessor() {
	select {
	case f.signal <- struct{}{}:
	default:
	}
}
