// Package flow implements the receive side of a datagram session: a receiver
// goroutine that moves datagrams from the socket into a growable ring of
// slots, and a processor goroutine that runs each slot, in arrival order,
// through an ordered chain of handlers until application frames come out.
package flow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lanikai/rxflow/internal/logging"
)

var log = logging.DefaultLogger.WithTag("flow")

// DefaultPollTimeout bounds each wait for socket readability, so that the
// receiver notices Stop promptly even when no traffic arrives.
const DefaultPollTimeout = 100 * time.Millisecond

type Options struct {
	// Ring budget in bytes, converted to a number of RecvMax-sized slots.
	// Defaults to DefaultBufferSize.
	BufferSize int

	// Upper bound on each readability wait. Defaults to DefaultPollTimeout.
	PollTimeout time.Duration

	// Optional scheduling hint for the receiver's OS thread, as a nice value
	// (negative is more urgent). Zero leaves the thread alone. Failure to
	// apply it is logged and otherwise ignored.
	Priority int
}

// Stats is a snapshot of flow counters.
type Stats struct {
	Datagrams       uint64 // datagrams staged in the ring
	Bytes           uint64 // bytes staged in the ring
	Frames          uint64 // frames handed to the sink
	Corrupt         uint64 // oversized datagrams, or datagrams and frames rejected with GenericError
	UnknownVerdicts uint64 // handler results the processor did not understand
	Grows           uint64 // ring growth events
	Slots           int    // current ring capacity
	Pending         int    // datagrams staged but not yet processed
	Queued          int    // frames waiting to be pulled
}

type counters struct {
	datagrams, bytes, frames, corrupt, unknown, grows atomic.Uint64
}

const (
	stateIdle = iota
	stateRunning
	stateStopped
)

// Flow is a reception flow. Create one with New, install handlers, then
// Start it on a socket. A flow runs once: after Stop it cannot be restarted.
type Flow struct {
	opts Options

	ring     *ring
	registry *registry
	sink     *sink
	stats    counters

	// Wakes the processor. Holds at most one pending signal.
	signal chan struct{}

	// Closed to request shutdown.
	done     chan struct{}
	doneOnce sync.Once

	// Runs shutdown once. Concurrent Stop calls block until it completes.
	stopOnce sync.Once

	// Guards state, group and err.
	mu    sync.Mutex
	state int
	group errgroup.Group
	err   error
}

func New(opts Options) *Flow {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	f := &Flow{
		opts:     opts,
		ring:     newRing(slotsFor(opts.BufferSize)),
		registry: newRegistry(),
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	f.sink = newSink(f.done)
	return f
}

// SetBufferSize changes the ring budget. Only allowed before Start.
func (f *Flow) SetBufferSize(bytes int) error {
	if bytes <= 0 {
		return ErrInvalidValue
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != stateIdle {
		return ErrRunning
	}
	f.opts.BufferSize = bytes
	f.ring = newRing(slotsFor(bytes))
	return nil
}

// InstallHandler appends a primary handler to the chain and returns its key.
func (f *Flow) InstallHandler(h PrimaryHandler) (uint32, error) {
	return f.registry.install(h)
}

// InstallAuxHandler appends an auxiliary handler to the chain of the primary
// handler with the given key. getter is required if h may return
// MultipleReady.
func (f *Flow) InstallAuxHandler(key uint32, h AuxHandler, getter FrameGetter) error {
	return f.registry.installAux(key, h, getter)
}

// InstallReceiveHook switches the flow to callback delivery: every frame is
// passed to hook on the processor goroutine and belongs to the hook from then
// on. Frames already queued stay available to PullFrame.
func (f *Flow) InstallReceiveHook(hook func(Frame)) error {
	if hook == nil {
		return ErrInvalidValue
	}
	f.sink.setHook(hook)
	return nil
}

// Start spawns the receiver and processor and returns immediately.
func (f *Flow) Start(sock Socket) error {
	if sock == nil {
		return ErrInvalidValue
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case stateRunning:
		return ErrRunning
	case stateStopped:
		return ErrStopped
	}
	f.state = stateRunning

	f.group.Go(func() error {
		err := f.receive(sock)
		if err != nil {
			log.Error("Reception flow cannot continue: %v", err)
			f.fail(err)
		}
		return err
	})
	f.group.Go(f.process)
	return nil
}

// Record a fatal error and stop both goroutines.
func (f *Flow) fail(err error) {
	f.mu.Lock()
	if f.err == nil {
		f.err = err
	}
	f.mu.Unlock()
	f.requestStop()
}

func (f *Flow) requestStop() {
	f.doneOnce.Do(func() { close(f.done) })
}

func (f *Flow) stopping() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Stop requests shutdown, wakes any blocked PullFrame, waits for the receiver
// and processor to exit, then releases the ring and any unclaimed frames. It
// returns the socket error that stopped the flow, if there was one. Stop is
// safe to call more than once and from several goroutines; every call returns
// only after both goroutines have exited. It must not be called from a
// handler or receive hook.
func (f *Flow) Stop() error {
	f.requestStop()
	f.stopOnce.Do(f.shutdown)
	return f.Err()
}

func (f *Flow) shutdown() {
	f.mu.Lock()
	wasRunning := f.state == stateRunning
	f.state = stateStopped
	f.mu.Unlock()

	if !wasRunning {
		return
	}
	f.group.Wait()
	if n := f.sink.clear(); n > 0 {
		log.Debug("Dropped %d unclaimed frames", n)
	}
	f.ring.release()
}

// Done is closed once the flow has been asked to stop, either by Stop or by a
// fatal socket error.
func (f *Flow) Done() <-chan struct{} {
	return f.done
}

// Err returns the fatal error that stopped the flow, if any.
func (f *Flow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// PullFrame blocks until a frame is available and returns it. It returns nil
// once the flow stops.
func (f *Flow) PullFrame() Frame {
	frame, _ := f.sink.pull(nil, nil)
	return frame
}

// PullFrameTimeout is like PullFrame but gives up after timeout, returning
// nil.
func (f *Flow) PullFrameTimeout(timeout time.Duration) Frame {
	t := time.NewTimer(timeout)
	defer t.Stop()
	frame, _ := f.sink.pull(nil, t.C)
	return frame
}

// PullFrameContext blocks until a frame is available, the context is done or
// the flow stops (ErrStopped).
func (f *Flow) PullFrameContext(ctx context.Context) (Frame, error) {
	return f.sink.pull(ctx, nil)
}

func (f *Flow) Stats() Stats {
	f.mu.Lock()
	r := f.ring
	f.mu.Unlock()

	return Stats{
		Datagrams:       f.stats.datagrams.Load(),
		Bytes:           f.stats.bytes.Load(),
		Frames:          f.stats.frames.Load(),
		Corrupt:         f.stats.corrupt.Load(),
		UnknownVerdicts: f.stats.unknown.Load(),
		Grows:           f.stats.grows.Load(),
		Slots:           r.capacity(),
		Pending:         r.pending(),
		Queued:          f.sink.queued(),
	}
}
