package flow

import (
	"context"
	"sync"
	"time"
)

// sink hands finished frames to the application, either through a receive
// hook called on the processor goroutine or through a FIFO queue drained by
// the Pull* methods.
type sink struct {
	sync.Mutex

	hook func(Frame)

	// Queued frames, oldest first. Only used while hook is nil.
	frames []Frame

	// Single-item channel indicating when there are frames waiting to be
	// pulled.
	available chan struct{}

	// Closed when the flow stops.
	dead <-chan struct{}
}

func newSink(dead <-chan struct{}) *sink {
	return &sink{
		available: make(chan struct{}, 1),
		dead:      dead,
	}
}

func (s *sink) setHook(hook func(Frame)) {
	s.Lock()
	s.hook = hook
	s.Unlock()
}

func (s *sink) deliver(frame Frame) {
	s.Lock()
	if hook := s.hook; hook != nil {
		s.Unlock()
		hook(frame)
		return
	}
	s.frames = append(s.frames, frame)
	s.Unlock()

	select {
	case s.available <- struct{}{}:
	default:
	}
}

// If there are frames queued, pop the oldest.
func (s *sink) tryPop() (Frame, bool) {
	s.Lock()
	defer s.Unlock()

	if len(s.frames) == 0 {
		return nil, false
	}
	frame := s.frames[0]
	s.frames[0] = nil
	s.frames = s.frames[1:]

	// Keep the available channel full if more frames are queued.
	if len(s.frames) > 0 {
		select {
		case s.available <- struct{}{}:
		default:
		}
	}
	return frame, true
}

// pull blocks until a frame is available, the flow stops, the timer fires or
// the context is done. A nil timer or context never fires.
func (s *sink) pull(ctx context.Context, timeout <-chan time.Time) (Frame, error) {
	var ctxDone <-chan struct{}
	if ctx != nil {
		ctxDone = ctx.Done()
	}
	for {
		select {
		case <-s.dead:
			return nil, ErrStopped
		default:
		}

		if frame, ok := s.tryPop(); ok {
			return frame, nil
		}

		select {
		case <-s.dead:
			return nil, ErrStopped
		case <-timeout:
			return nil, context.DeadlineExceeded
		case <-ctxDone:
			return nil, ctx.Err()
		case <-s.available:
		}
	}
}

func (s *sink) queued() int {
	s.Lock()
	defer s.Unlock()
	return len(s.frames)
}

// Drop unclaimed frames.
func (s *sink) clear() int {
	s.Lock()
	defer s.Unlock()
	n := len(s.frames)
	s.frames = nil
	return n
}
