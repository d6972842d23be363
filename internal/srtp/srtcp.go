package srtp

import (
	"encoding/binary"
	"sync"

	errors "golang.org/x/xerrors"

	"github.com/lanikai/rxflow/internal/packet"
)

const (
	// Fixed RTCP header plus sender SSRC, never encrypted.
	rtcpHeaderLength = 8

	// E flag and 31-bit SRTCP index, between the payload and the tag.
	srtcpIndexLength = 4

	eFlagMask  = 1 << 31
	indexMask  = eFlagMask - 1
	srtcpTrail = srtcpIndexLength + AuthTagLength

	// Local index from which a rekey warning is logged.
	indexWarn = indexMask - 1<<16
)

// SRTCP protects and unprotects RTCP packets.
// See https://tools.ietf.org/html/rfc3711#section-3.4
type SRTCP struct {
	*base

	mu    sync.Mutex
	index uint32 // next local SRTCP index
}

func NewSRTCP(keys KeyContext, cfg Config) (*SRTCP, error) {
	b, err := newBase(keys, cfg)
	if err != nil {
		return nil, err
	}
	return &SRTCP{base: b}, nil
}

// Encrypt encrypts an RTCP payload (everything after the sender SSRC) in
// place with the local keys.
func (s *SRTCP) Encrypt(ssrc uint32, index uint32, payload []byte) {
	if s.cfg.NullCipher {
		return
	}
	s.local.xorKeyStream(payload, ssrc, uint64(index&indexMask))
}

// AddAuthTag computes the tag over everything but the last AuthTagLength
// bytes of pkt, which must already carry E||index, and writes it there. No
// rollover counter is involved for SRTCP.
func (s *SRTCP) AddAuthTag(pkt []byte) error {
	if len(pkt) < rtcpHeaderLength+srtcpTrail {
		return errors.Errorf("SRTCP packet of %d bytes: %w", len(pkt), ErrInvalidValue)
	}
	n := len(pkt) - AuthTagLength
	copy(pkt[n:], s.local.tag(nil, pkt[:n]))
	return nil
}

// VerifyAuthTag checks the tag of an incoming SRTCP packet against the remote
// keys, then checks its index against the sender's replay window.
func (s *SRTCP) VerifyAuthTag(pkt []byte) error {
	if len(pkt) < rtcpHeaderLength+srtcpTrail {
		return errors.Errorf("SRTCP packet of %d bytes: %w", len(pkt), ErrInvalidValue)
	}
	expected := s.remote.tag(nil, pkt[:len(pkt)-AuthTagLength])
	if err := s.checkTag(pkt, expected); err != nil {
		return err
	}

	ssrc := binary.BigEndian.Uint32(pkt[4:8])
	_, index := trailer(pkt)
	err := s.state.update(ssrc, nil, func(st *remoteState) error {
		if st.window.seen(uint64(index)) {
			s.stats.replays.Add(1)
			return ErrReplayDetected
		}
		st.window.accept(uint64(index))
		s.stats.verified.Add(1)
		return nil
	})
	return s.countRefused(err)
}

// Read the E flag and SRTCP index.
func trailer(pkt []byte) (encrypted bool, index uint32) {
	r := packet.NewReader(pkt)
	r.Skip(len(pkt) - srtcpTrail)
	v := r.ReadUint32()
	return v&eFlagMask != 0, v & indexMask
}

// Decrypt decrypts an incoming SRTCP packet in place with the remote keys.
// The fixed header, sender SSRC, E||index and tag are left untouched. Nothing
// happens if the sender cleared the E flag.
func (s *SRTCP) Decrypt(ssrc uint32, index uint32, pkt []byte) error {
	if len(pkt) < rtcpHeaderLength+srtcpTrail {
		return errors.Errorf("SRTCP packet of %d bytes: %w", len(pkt), ErrInvalidValue)
	}
	if encrypted, _ := trailer(pkt); !encrypted || s.cfg.NullCipher {
		return nil
	}
	s.remote.xorKeyStream(pkt[rtcpHeaderLength:len(pkt)-srtcpTrail], ssrc, uint64(index&indexMask))
	return nil
}

func (s *SRTCP) nextIndex() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.index
	s.index = (s.index + 1) & indexMask

	// Once the index wraps, the peer's replay window rejects everything, so
	// the session must be rekeyed first.
	// See https://tools.ietf.org/html/rfc3711#section-9.2
	switch {
	case index == indexMask:
		log.Warn("SRTCP index wrapped; peer will drop packets until rekeyed")
	case index >= indexWarn && (index-indexWarn)%4096 == 0:
		log.Warn("SRTCP index %d is %d packets from wrapping; rekey required", index, indexMask-index)
	}
	return index
}

// Protect returns an SRTCP packet built from the (possibly compound) RTCP
// packet pkt, using the next local SRTCP index.
func (s *SRTCP) Protect(pkt []byte) ([]byte, error) {
	if len(pkt) < rtcpHeaderLength {
		return nil, errors.Errorf("RTCP packet of %d bytes: %w", len(pkt), ErrInvalidValue)
	}
	ssrc := binary.BigEndian.Uint32(pkt[4:8])
	index := s.nextIndex()

	e := index
	if !s.cfg.NullCipher {
		e |= eFlagMask
	}

	// Per RFC 5506, encrypt everything after the sender SSRC, then append
	// E || SRTCP index and room for the tag.
	w := packet.NewWriterSize(len(pkt) + srtcpTrail)
	w.WriteSlice(pkt)
	s.Encrypt(ssrc, index, w.Bytes()[rtcpHeaderLength:])
	w.WriteUint32(e)
	w.ZeroPad(AuthTagLength)

	out := w.Bytes()
	if err := s.AddAuthTag(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Unprotect verifies and decrypts an SRTCP packet in place and returns the
// RTCP packet, which aliases pkt without E||index and tag.
func (s *SRTCP) Unprotect(pkt []byte) ([]byte, error) {
	if err := s.VerifyAuthTag(pkt); err != nil {
		return nil, err
	}
	_, index := trailer(pkt)
	if err := s.Decrypt(binary.BigEndian.Uint32(pkt[4:8]), index, pkt); err != nil {
		return nil, err
	}
	return pkt[:len(pkt)-srtcpTrail], nil
}
