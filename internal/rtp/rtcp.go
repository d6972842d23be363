package rtp

import (
	"github.com/pion/rtcp"

	"github.com/lanikai/rxflow/internal/flow"
)

// RTCPHandler parses (possibly compound) RTCP datagrams into []rtcp.Packet
// frames.
type RTCPHandler struct{}

func (RTCPHandler) HandlePacket(d *flow.Datagram, frame *flow.Frame) flow.Verdict {
	isRTCP, _, err := IdentifyPacket(d.Data)
	if err != nil {
		log.Debug("Dropping datagram: %v", err)
		return flow.GenericError
	}
	if !isRTCP {
		return flow.NotHandled
	}

	packets, err := rtcp.Unmarshal(append([]byte(nil), d.Data...))
	if err != nil {
		log.Debug("Dropping RTCP packet: %v", err)
		return flow.GenericError
	}
	*frame = packets
	return flow.Modified
}

// Splitter breaks a compound RTCP frame into one frame per RTCP packet.
// Install Split as the auxiliary handler and Next as its frame getter. It is
// only ever used from the flow's processor goroutine.
type Splitter struct {
	pending []rtcp.Packet
}

func (s *Splitter) Split(frame *flow.Frame) flow.Verdict {
	packets, ok := (*frame).([]rtcp.Packet)
	if !ok {
		return flow.NotHandled
	}
	s.pending = packets
	*frame = nil
	return flow.MultipleReady
}

func (s *Splitter) Next(frame *flow.Frame) flow.Verdict {
	if len(s.pending) == 0 {
		s.pending = nil
		return flow.OK
	}
	*frame = s.pending[0]
	s.pending = s.pending[1:]
	return flow.PacketReady
}
