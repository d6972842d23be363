package rtp

import (
	"github.com/pion/rtp"

	"github.com/lanikai/rxflow/internal/flow"
)

// Handler parses RTP datagrams into *rtp.Packet frames. The packet owns a
// copy of the datagram, so it stays valid after the slot is reused.
type Handler struct{}

func (Handler) HandlePacket(d *flow.Datagram, frame *flow.Frame) flow.Verdict {
	isRTCP, _, err := IdentifyPacket(d.Data)
	if err != nil {
		log.Debug("Dropping datagram: %v", err)
		return flow.GenericError
	}
	if isRTCP {
		return flow.NotHandled
	}

	p := new(rtp.Packet)
	if err := p.Unmarshal(append([]byte(nil), d.Data...)); err != nil {
		log.Debug("Dropping RTP packet: %v", err)
		return flow.GenericError
	}
	*frame = p
	return flow.Modified
}

// Deliver hands the frame to the sink. Install it last in an auxiliary
// chain.
func Deliver(frame *flow.Frame) flow.Verdict {
	return flow.PacketReady
}

// FilterPayloadTypes returns an auxiliary handler that vetoes RTP packets
// whose payload type is not one of pts.
func FilterPayloadTypes(pts ...uint8) flow.AuxHandler {
	var allowed [128]bool
	for _, pt := range pts {
		allowed[pt&0x7f] = true
	}
	return func(frame *flow.Frame) flow.Verdict {
		p, ok := (*frame).(*rtp.Packet)
		if !ok {
			return flow.NotHandled
		}
		if !allowed[p.PayloadType&0x7f] {
			log.Trace(6, "Ignoring payload type %d from %08x", p.PayloadType, p.SSRC)
			*frame = nil
			return flow.GenericError
		}
		return flow.OK
	}
}
