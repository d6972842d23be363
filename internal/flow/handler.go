package flow

import "fmt"

// Verdict is returned by every handler to tell the processor what to do next.
type Verdict int

const (
	// OK: the datagram was handled but no frame is ready yet. Continue with
	// the next handler.
	OK Verdict = iota

	// NotHandled: the handler declined the datagram (or frame).
	NotHandled

	// Modified: the primary handler produced or transformed a frame. Its
	// auxiliary chain runs next.
	Modified

	// MultipleReady: more than one frame is ready. The handler's getter is
	// polled until it stops returning PacketReady.
	MultipleReady

	// PacketReady: exactly one frame is ready for delivery.
	PacketReady

	// GenericError: malformed or rejected input. The rest of the slot is
	// abandoned; the flow continues with the next datagram.
	GenericError
)

var verdictNames = [...]string{
	OK:            "OK",
	NotHandled:    "NotHandled",
	Modified:      "Modified",
	MultipleReady: "MultipleReady",
	PacketReady:   "PacketReady",
	GenericError:  "GenericError",
}

func (v Verdict) String() string {
	if v >= 0 && int(v) < len(verdictNames) {
		return verdictNames[v]
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// Frame is an application-level unit produced by a handler: for example an
// *rtp.Packet or a single rtcp.Packet. The flow never looks inside it.
// Ownership moves from the handler to the sink, and from the sink to the
// application.
type Frame interface{}

// Datagram is the processor's view of one ring slot. Data aliases the slot
// buffer, so it is only valid for the duration of the HandlePacket call and
// must be copied into any frame that outlives it. Primary handlers for the
// same slot share one Datagram: a handler that transforms the bytes in place
// (SRTP decryption) may shorten Data, and later handlers see the result.
type Datagram struct {
	Data []byte
}

// PrimaryHandler is the first stage of the chain. Every registered primary
// handler sees every datagram, in registration order.
type PrimaryHandler interface {
	HandlePacket(d *Datagram, frame *Frame) Verdict
}

// HandlerFunc adapts an ordinary function to a PrimaryHandler.
type HandlerFunc func(d *Datagram, frame *Frame) Verdict

func (f HandlerFunc) HandlePacket(d *Datagram, frame *Frame) Verdict {
	return f(d, frame)
}

// FramePoller is implemented by primary handlers that may return
// MultipleReady. PollFrame stores the next frame and returns PacketReady, or
// returns anything else once exhausted.
type FramePoller interface {
	PollFrame(frame *Frame) Verdict
}

// AuxHandler runs on the frame produced by its primary handler after a
// Modified verdict. It may replace the frame, split it, or veto it.
type AuxHandler func(frame *Frame) Verdict

// FrameGetter is polled after an AuxHandler returns MultipleReady.
type FrameGetter func(frame *Frame) Verdict
