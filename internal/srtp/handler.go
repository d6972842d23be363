package srtp

import (
	errors "golang.org/x/xerrors"

	"github.com/lanikai/rxflow/internal/flow"
	"github.com/lanikai/rxflow/internal/rtp"
)

// HandlePacket authenticates and decrypts an SRTP datagram in place, leaving
// the plain RTP packet in d.Data for the handlers that follow. RTCP is left
// alone. A packet that fails any check abandons the slot.
func (s *SRTP) HandlePacket(d *flow.Datagram, frame *flow.Frame) flow.Verdict {
	isRTCP, ssrc, err := rtp.IdentifyPacket(d.Data)
	if err != nil {
		log.Debug("Dropping datagram: %v", err)
		return flow.GenericError
	}
	if isRTCP {
		return flow.NotHandled
	}

	pkt, err := s.Unprotect(d.Data)
	if err != nil {
		logDrop("SRTP", ssrc, err)
		return flow.GenericError
	}
	d.Data = pkt
	return flow.OK
}

// HandlePacket authenticates and decrypts an SRTCP datagram in place, leaving
// the plain RTCP packet in d.Data. RTP is left alone.
func (s *SRTCP) HandlePacket(d *flow.Datagram, frame *flow.Frame) flow.Verdict {
	isRTCP, ssrc, err := rtp.IdentifyPacket(d.Data)
	if err != nil {
		log.Debug("Dropping datagram: %v", err)
		return flow.GenericError
	}
	if !isRTCP {
		return flow.NotHandled
	}

	pkt, err := s.Unprotect(d.Data)
	if err != nil {
		logDrop("SRTCP", ssrc, err)
		return flow.GenericError
	}
	d.Data = pkt
	return flow.OK
}

func logDrop(proto string, ssrc uint32, err error) {
	switch {
	case errors.Is(err, ErrAuthTagMismatch), errors.Is(err, ErrReplayDetected), errors.Is(err, ErrTooManySSRCs):
		log.Warn("%s packet from %08x dropped: %v", proto, ssrc, err)
	default:
		log.Debug("%s packet from %08x malformed: %v", proto, ssrc, err)
	}
}
