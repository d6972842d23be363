//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package socket

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Without poll(2), Poll reads the first datagram itself under a read deadline
// and keeps it here until the next Recv.
type stash struct {
	sync.Mutex
	buf []byte
	n   int
	ok  bool
}

func newStash() *stash {
	return &stash{buf: make([]byte, 0xffff)}
}

// Drain timeout for Recv after the stashed datagram has been handed out.
const drainTimeout = time.Millisecond

func (s *UDP) Poll(timeout time.Duration) (bool, error) {
	s.stash.Lock()
	defer s.stash.Unlock()

	if s.stash.ok {
		return true, nil
	}
	n, err := s.read(s.stash.buf, timeout)
	if err == ErrWouldBlock {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.stash.n, s.stash.ok = n, true
	return true, nil
}

// Recv reads through the stash buffer, which holds any UDP datagram, so that
// one too large for p is reported as ErrTruncated.
func (s *UDP) Recv(p []byte) (int, error) {
	s.stash.Lock()
	defer s.stash.Unlock()

	if !s.stash.ok {
		n, err := s.read(s.stash.buf, drainTimeout)
		if err != nil {
			return 0, err
		}
		s.stash.n = n
	}
	s.stash.ok = false

	n := copy(p, s.stash.buf[:s.stash.n])
	if s.stash.n > len(p) {
		return n, ErrTruncated
	}
	return n, nil
}

func (s *UDP) read(p []byte, timeout time.Duration) (int, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, errors.Wrap(err, "set deadline")
	}
	n, _, err := s.conn.ReadFrom(p)
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return 0, ErrWouldBlock
	}
	if err != nil {
		return 0, errors.Wrap(err, "read")
	}
	return n, nil
}
