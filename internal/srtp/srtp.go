// Package srtp implements the Secure RTP profile (SRTP and SRTCP) from RFC
// 3711 with the default transforms: AES-CM encryption and HMAC-SHA1-80
// authentication.
//
// Rollover counters and SRTCP indices are per-SSRC state: the transforms keep
// the remote side's state themselves (updated only after a packet
// authenticates), while the local side's is supplied by the sender.
package srtp

import (
	"encoding/binary"
	"sync"

	"github.com/pion/rtp"
	errors "golang.org/x/xerrors"

	"github.com/lanikai/rxflow/internal/logging"
	"github.com/lanikai/rxflow/internal/packet"
)

var log = logging.DefaultLogger.WithTag("srtp")

const rtpHeaderLength = 12

// SRTP protects and unprotects RTP packets.
type SRTP struct {
	*base

	mu        sync.Mutex
	localROC  uint32
	localSeq  uint16
	sentAny   bool
	remoteROC uint32 // initial rollover counter for new remote SSRCs
}

func NewSRTP(keys KeyContext, cfg Config) (*SRTP, error) {
	b, err := newBase(keys, cfg)
	if err != nil {
		return nil, err
	}
	return &SRTP{base: b}, nil
}

// SetRolloverCounter sets the local rollover counter used by Encrypt and
// AddAuthTag.
func (s *SRTP) SetRolloverCounter(roc uint32) {
	s.mu.Lock()
	s.localROC = roc
	s.mu.Unlock()
}

func (s *SRTP) RolloverCounter() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localROC
}

// SetRemoteRolloverCounter sets the rollover counter assumed for remote SSRCs
// that have not been seen yet.
func (s *SRTP) SetRemoteRolloverCounter(roc uint32) {
	s.mu.Lock()
	s.remoteROC = roc
	s.mu.Unlock()
}

// Encrypt encrypts an RTP payload in place with the local keys. The packet
// index is formed from the local rollover counter and seq.
func (s *SRTP) Encrypt(ssrc uint32, seq uint16, payload []byte) {
	if s.cfg.NullCipher {
		return
	}
	s.local.xorKeyStream(payload, ssrc, uint64(s.RolloverCounter())<<16|uint64(seq))
}

// AddAuthTag computes the authentication tag over everything but the last
// AuthTagLength bytes of pkt, followed by the local rollover counter, and
// writes it into those last bytes.
func (s *SRTP) AddAuthTag(pkt []byte) error {
	if len(pkt) < rtpHeaderLength+AuthTagLength {
		return errors.Errorf("SRTP packet of %d bytes: %w", len(pkt), ErrInvalidValue)
	}
	// From https://tools.ietf.org/html/rfc3711#section-4.2:
	//   M = Authenticated Portion || ROC
	var roc [4]byte
	binary.BigEndian.PutUint32(roc[:], s.RolloverCounter())
	n := len(pkt) - AuthTagLength
	copy(pkt[n:], s.local.tag(nil, pkt[:n], roc[:]))
	return nil
}

// VerifyAuthTag checks the tag of an incoming SRTP packet against the remote
// keys, then checks the packet index against the replay window. Only a packet
// that passes both updates the SSRC's rollover counter and replay window.
func (s *SRTP) VerifyAuthTag(pkt []byte) error {
	if len(pkt) < rtpHeaderLength+AuthTagLength {
		return errors.Errorf("SRTP packet of %d bytes: %w", len(pkt), ErrInvalidValue)
	}
	ssrc := binary.BigEndian.Uint32(pkt[8:12])
	seq := binary.BigEndian.Uint16(pkt[2:4])
	roc := s.estimateROC(ssrc, seq)

	var rocBytes [4]byte
	binary.BigEndian.PutUint32(rocBytes[:], roc)
	expected := s.remote.tag(nil, pkt[:len(pkt)-AuthTagLength], rocBytes[:])
	if err := s.checkTag(pkt, expected); err != nil {
		return err
	}

	index := uint64(roc)<<16 | uint64(seq)
	err := s.state.update(ssrc, nil, func(st *remoteState) error {
		if st.window.seen(index) {
			s.stats.replays.Add(1)
			return ErrReplayDetected
		}
		st.window.accept(index)
		if index+1 == st.window.next {
			st.roc, st.highest = roc, seq
		}
		s.stats.verified.Add(1)
		return nil
	})
	return s.countRefused(err)
}

// Estimate the rollover counter of a received packet.
// See https://tools.ietf.org/html/rfc3711#section-3.3.1
func (s *SRTP) estimateROC(ssrc uint32, seq uint16) uint32 {
	roc, highest, ok := s.state.lookup(ssrc)
	if !ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.remoteROC
	}
	return estimateROC(roc, highest, seq)
}

func estimateROC(roc uint32, highest, seq uint16) uint32 {
	const half = 1 << 15
	if highest < half {
		if int(seq)-int(highest) > half && roc > 0 {
			return roc - 1
		}
		return roc
	}
	if int(highest)-half > int(seq) {
		return roc + 1
	}
	return roc
}

// Decrypt decrypts the payload of an incoming SRTP packet in place with the
// remote keys. The RTP header (including CSRCs and extensions) and the
// trailing tag are left untouched. Call after VerifyAuthTag.
func (s *SRTP) Decrypt(ssrc uint32, seq uint16, pkt []byte) error {
	start, err := payloadOffset(pkt)
	if err != nil {
		return err
	}
	if s.cfg.NullCipher {
		return nil
	}
	roc := s.estimateROC(ssrc, seq)
	s.remote.xorKeyStream(pkt[start:len(pkt)-AuthTagLength], ssrc, uint64(roc)<<16|uint64(seq))
	return nil
}

// Offset of the RTP payload within an SRTP packet.
func payloadOffset(pkt []byte) (int, error) {
	if len(pkt) < rtpHeaderLength+AuthTagLength {
		return 0, errors.Errorf("SRTP packet of %d bytes: %w", len(pkt), ErrInvalidValue)
	}
	var hdr rtp.Header
	n, err := hdr.Unmarshal(pkt[:len(pkt)-AuthTagLength])
	if err != nil {
		return 0, errors.Errorf("RTP header: %v: %w", err, ErrInvalidValue)
	}
	return n, nil
}

// Protect returns an SRTP packet built from the RTP packet pkt: the payload
// encrypted and the tag appended. The local rollover counter is advanced when
// the sequence number wraps.
func (s *SRTP) Protect(pkt []byte) ([]byte, error) {
	var hdr rtp.Header
	n, err := hdr.Unmarshal(pkt)
	if err != nil {
		return nil, errors.Errorf("RTP header: %v: %w", err, ErrInvalidValue)
	}
	s.advanceLocal(hdr.SequenceNumber)

	w := packet.NewWriterSize(len(pkt) + AuthTagLength)
	w.WriteSlice(pkt)
	s.Encrypt(hdr.SSRC, hdr.SequenceNumber, w.Bytes()[n:])
	w.ZeroPad(AuthTagLength)

	out := w.Bytes()
	if err := s.AddAuthTag(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SRTP) advanceLocal(seq uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sentAny && seq < s.localSeq && s.localSeq-seq > 1<<15 {
		s.localROC++
	}
	s.localSeq, s.sentAny = seq, true
}

// Unprotect verifies and decrypts an SRTP packet in place and returns the
// RTP packet, which aliases pkt without the tag.
func (s *SRTP) Unprotect(pkt []byte) ([]byte, error) {
	if err := s.VerifyAuthTag(pkt); err != nil {
		return nil, err
	}
	ssrc := binary.BigEndian.Uint32(pkt[8:12])
	seq := binary.BigEndian.Uint16(pkt[2:4])
	if err := s.Decrypt(ssrc, seq, pkt); err != nil {
		return nil, err
	}
	return pkt[:len(pkt)-AuthTagLength], nil
}
