package flow

// process runs until the flow is stopped, draining the ring on every wake-up.
func (f *Flow) process() error {
	log.Debug("Start processing loop")

	for {
		select {
		case <-f.done:
			return nil
		case <-f.signal:
		}

		handlers := f.registry.snapshot()
		for !f.stopping() {
			s, ok := f.ring.next()
			if !ok {
				break
			}
			f.dispatch(handlers, s.buf[:s.n])
		}
	}
}

// dispatch runs one datagram through every primary handler in registration
// order.
func (f *Flow) dispatch(handlers []handlerView, data []byte) {
	d := Datagram{Data: data}
	for i := range handlers {
		h := &handlers[i]

		var frame Frame
		switch v := h.primary.HandlePacket(&d, &frame); v {
		case OK, NotHandled:
			// Next handler.

		case Modified:
			f.runAuxHandlers(h, &frame)

		case PacketReady:
			f.returnFrame(frame)

		case MultipleReady:
			poller, ok := h.primary.(FramePoller)
			if !ok {
				f.stats.unknown.Add(1)
				log.Error("Handler %08x returned %v but cannot be polled", h.key, v)
				continue
			}
			f.pollFrames(poller.PollFrame, &frame)

		case GenericError:
			f.stats.corrupt.Add(1)
			log.Debug("Received a corrupted packet (handler %08x, %d bytes)", h.key, len(data))
			return

		default:
			f.stats.unknown.Add(1)
			log.Error("Unknown result from packet handler %08x: %v", h.key, v)
		}
	}
}

// runAuxHandlers passes a frame through the auxiliary chain of the primary
// handler that produced it. The chain ends as soon as the frame is delivered
// or vetoed.
func (f *Flow) runAuxHandlers(h *handlerView, frame *Frame) {
	for _, aux := range h.aux {
		switch v := aux.handle(frame); v {
		case OK, NotHandled, Modified:
			continue

		case PacketReady:
			f.returnFrame(*frame)
			*frame = nil
			return

		case MultipleReady:
			if aux.getter == nil {
				f.stats.unknown.Add(1)
				log.Error("Auxiliary handler of %08x returned %v without a frame getter", h.key, v)
				return
			}
			f.pollFrames(aux.getter, frame)
			return

		case GenericError:
			f.stats.corrupt.Add(1)
			log.Debug("Auxiliary handler of %08x rejected the frame", h.key)
			return

		default:
			f.stats.unknown.Add(1)
			log.Error("Unknown result from auxiliary handler of %08x: %v", h.key, v)
		}
	}
}

// pollFrames delivers one frame per successful poll.
func (f *Flow) pollFrames(get FrameGetter, frame *Frame) {
	for {
		*frame = nil
		if get(frame) != PacketReady {
			return
		}
		f.returnFrame(*frame)
	}
}

func (f *Flow) returnFrame(frame Frame) {
	if frame == nil {
		log.Warn("Handler reported a ready frame but produced none")
		return
	}
	f.stats.frames.Add(1)
	f.sink.deliver(frame)
}
