//////////////////////////////////////////////////////////////////////////////
//
// Session receives SRTP media on a UDP socket and turns it into RTP and RTCP
// frames.
//
// Copyright 2019 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package rxflow

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/rxflow/internal/flow"
	"github.com/lanikai/rxflow/internal/logging"
	"github.com/lanikai/rxflow/internal/rtp"
	"github.com/lanikai/rxflow/internal/socket"
	"github.com/lanikai/rxflow/internal/srtp"
)

var log = logging.DefaultLogger.WithTag("rxflow")

// Frame is either an *rtp.Packet or a single rtcp.Packet (from
// github.com/pion/rtp and github.com/pion/rtcp).
type Frame = flow.Frame

type Stats struct {
	Flow  flow.Stats
	SRTP  srtp.Stats
	SRTCP srtp.Stats
}

type Session struct {
	conn *socket.UDP
	flow *flow.Flow

	// Nil for insecure sessions.
	srtp  *srtp.SRTP
	srtcp *srtp.SRTCP

	splitter rtp.Splitter
}

// Listen opens a UDP socket on addr and creates a session on it.
func Listen(addr string, cfg Config) (*Session, error) {
	conn, err := socket.Listen("udp", addr)
	if err != nil {
		return nil, err
	}
	s, err := NewSession(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// NewSession builds the handler chain on a new reception flow: SRTP and SRTCP
// first (unless insecure), then the RTP and RTCP parsers. The session owns
// conn from now on. Call Start to begin receiving.
func NewSession(conn *socket.UDP, cfg Config) (*Session, error) {
	if conn == nil {
		return nil, errNoConn
	}

	s := &Session{
		conn: conn,
		flow: flow.New(cfg.flowOptions()),
	}

	if !cfg.Insecure {
		if cfg.Keys.LocalKey == nil && cfg.Keys.RemoteKey == nil {
			return nil, errNoKeys
		}
		rtpKeys, rtcpKeys, err := srtp.DeriveKeyContexts(cfg.Keys)
		if err != nil {
			return nil, errors.Wrap(err, "derive session keys")
		}
		if s.srtp, err = srtp.NewSRTP(rtpKeys, cfg.srtpConfig()); err != nil {
			return nil, err
		}
		if s.srtcp, err = srtp.NewSRTCP(rtcpKeys, cfg.srtpConfig()); err != nil {
			return nil, err
		}
		if err := s.install(s.srtp); err != nil {
			return nil, err
		}
		if err := s.install(s.srtcp); err != nil {
			return nil, err
		}
	}

	key, err := s.flow.InstallHandler(rtp.Handler{})
	if err != nil {
		return nil, err
	}
	if len(cfg.PayloadTypes) > 0 {
		if err := s.flow.InstallAuxHandler(key, rtp.FilterPayloadTypes(cfg.PayloadTypes...), nil); err != nil {
			return nil, err
		}
	}
	if err := s.flow.InstallAuxHandler(key, rtp.Deliver, nil); err != nil {
		return nil, err
	}

	key, err = s.flow.InstallHandler(rtp.RTCPHandler{})
	if err != nil {
		return nil, err
	}
	if err := s.flow.InstallAuxHandler(key, s.splitter.Split, s.splitter.Next); err != nil {
		return nil, err
	}

	if cfg.Hook != nil {
		if err := s.flow.InstallReceiveHook(cfg.Hook); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Session) install(h flow.PrimaryHandler) error {
	_, err := s.flow.InstallHandler(h)
	return err
}

// Start receiving. Returns immediately.
func (s *Session) Start() error {
	log.Info("Receiving on %s", s.conn.LocalAddr())
	return s.flow.Start(s.conn)
}

// Close stops the flow, then closes the socket. It returns the socket error
// that stopped the flow early, if any.
func (s *Session) Close() error {
	err := s.flow.Stop()
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// Done is closed when the session stops receiving.
func (s *Session) Done() <-chan struct{} {
	return s.flow.Done()
}

func (s *Session) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// ReadFrame blocks until the next frame arrives, or returns nil once the
// session is closed.
func (s *Session) ReadFrame() Frame {
	return s.flow.PullFrame()
}

// ReadFrameTimeout is like ReadFrame, but returns nil after timeout.
func (s *Session) ReadFrameTimeout(timeout time.Duration) Frame {
	return s.flow.PullFrameTimeout(timeout)
}

func (s *Session) ReadFrameContext(ctx context.Context) (Frame, error) {
	return s.flow.PullFrameContext(ctx)
}

// ProtectRTP turns an outgoing RTP packet into SRTP with the local keys.
func (s *Session) ProtectRTP(pkt []byte) ([]byte, error) {
	if s.srtp == nil {
		return nil, errNotSecure
	}
	return s.srtp.Protect(pkt)
}

// ProtectRTCP turns an outgoing RTCP packet into SRTCP with the local keys.
func (s *Session) ProtectRTCP(pkt []byte) ([]byte, error) {
	if s.srtcp == nil {
		return nil, errNotSecure
	}
	return s.srtcp.Protect(pkt)
}

// WriteTo sends a datagram from the session's socket, for feedback such as
// RTCP receiver reports.
func (s *Session) WriteTo(p []byte, addr net.Addr) (int, error) {
	return s.conn.WriteTo(p, addr)
}

func (s *Session) Stats() Stats {
	st := Stats{Flow: s.flow.Stats()}
	if s.srtp != nil {
		st.SRTP = s.srtp.Stats()
		st.SRTCP = s.srtcp.Stats()
	}
	return st
}
