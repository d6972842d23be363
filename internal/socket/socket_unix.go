//go:build linux || darwin || freebsd || netbsd || openbsd

package socket

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Not needed when poll(2) is available.
type stash struct{}

func newStash() *stash { return nil }

// Poll waits up to timeout for a datagram to arrive. An interrupted wait
// reports "not readable" rather than an error.
func (s *UDP) Poll(timeout time.Duration) (bool, error) {
	var (
		n       int
		revents int16
		perr    error
	)
	err := s.raw.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, perr = unix.Poll(fds, int(timeout/time.Millisecond))
		revents = fds[0].Revents
	})
	if err != nil {
		return false, errors.Wrap(err, "control")
	}
	if perr == unix.EINTR {
		return false, nil
	}
	if perr != nil {
		return false, errors.Wrap(perr, "poll(2)")
	}
	if n == 0 {
		return false, nil
	}
	if revents&unix.POLLNVAL != 0 {
		return false, errors.New("poll(2): socket not open")
	}
	// POLLERR is left to Recv, which reports the pending socket error.
	return revents&(unix.POLLIN|unix.POLLERR) != 0, nil
}

// Recv receives a single datagram into p with MSG_DONTWAIT. A datagram larger
// than p is consumed and reported as ErrTruncated.
func (s *UDP) Recv(p []byte) (int, error) {
	var (
		n     int
		flags int
		rerr  error
	)
	err := s.raw.Read(func(fd uintptr) bool {
		n, _, flags, _, rerr = unix.Recvmsg(int(fd), p, nil, unix.MSG_DONTWAIT)
		// Never park in the runtime poller; the receiver does its own waiting.
		return true
	})
	if err != nil {
		return 0, errors.Wrap(err, "read")
	}
	switch rerr {
	case nil:
		if flags&unix.MSG_TRUNC != 0 {
			return n, ErrTruncated
		}
		return n, nil
	case unix.EAGAIN, unix.EINTR:
		return 0, ErrWouldBlock
	case unix.ECONNREFUSED:
		// ICMP port unreachable from an earlier send on a connected socket.
		log.Debug("recvmsg(2): %v", rerr)
		return 0, ErrWouldBlock
	default:
		return 0, errors.Wrap(rerr, "recvmsg(2)")
	}
}
