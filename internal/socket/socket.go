// Package socket wraps a UDP socket with the two primitives the reception
// flow needs: a bounded wait for readability and a non-blocking receive.
package socket

import (
	"net"
	"syscall"

	"github.com/pkg/errors"

	"github.com/lanikai/rxflow/internal/logging"
)

var log = logging.DefaultLogger.WithTag("socket")

// ErrWouldBlock is returned by Recv when no datagram is pending (EAGAIN,
// EWOULDBLOCK, EINTR). It is transient: the caller should wait and retry.
var ErrWouldBlock = errors.New("socket: would block")

// ErrTruncated is returned by Recv when a datagram did not fit in the buffer.
// The datagram is consumed; the socket remains usable.
var ErrTruncated = errors.New("socket: datagram truncated")

// UDP is a datagram socket shared by the receiver (Poll/Recv) and the send
// side (Write/WriteTo). It is immutable after construction, so a single *UDP
// may be used from several goroutines.
type UDP struct {
	conn *net.UDPConn
	raw  syscall.RawConn

	// Datagram read ahead by Poll on platforms without a readiness wait.
	stash *stash
}

// Listen binds a UDP socket, e.g. Listen("udp4", ":5004").
func Listen(network, address string) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr(network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", address)
	}
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", address)
	}
	s, err := New(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	log.Debug("Listening on %s", conn.LocalAddr())
	return s, nil
}

// Dial creates a connected UDP socket, used by senders.
func Dial(network, address string) (*UDP, error) {
	raddr, err := net.ResolveUDPAddr(network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", address)
	}
	conn, err := net.DialUDP(network, nil, raddr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", address)
	}
	s, err := New(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing UDP connection. The UDP takes ownership of conn.
func New(conn *net.UDPConn) (*UDP, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, errors.Wrap(err, "raw conn")
	}
	return &UDP{conn: conn, raw: raw, stash: newStash()}, nil
}

// Conn returns the underlying connection.
func (s *UDP) Conn() *net.UDPConn {
	return s.conn
}

func (s *UDP) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Write sends a datagram on a connected socket.
func (s *UDP) Write(p []byte) (int, error) {
	return s.conn.Write(p)
}

// WriteTo sends a datagram to addr.
func (s *UDP) WriteTo(p []byte, addr net.Addr) (int, error) {
	return s.conn.WriteTo(p, addr)
}

func (s *UDP) Close() error {
	return s.conn.Close()
}
