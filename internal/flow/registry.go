package flow

import (
	"sync"

	"github.com/pion/randutil"
)

type auxHandler struct {
	handle AuxHandler
	getter FrameGetter
}

type handlerEntry struct {
	key     uint32
	primary PrimaryHandler
	aux     []auxHandler
}

// registry holds primary handlers in registration order. Entries are never
// removed, and an entry's auxiliary list only ever grows, so the processor can
// work from a snapshot of slice headers without holding the lock while
// handlers run.
type registry struct {
	mu      sync.RWMutex
	entries []*handlerEntry
	byKey   map[uint32]*handlerEntry
	rand    randutil.MathRandomGenerator
}

func newRegistry() *registry {
	return &registry{
		byKey: make(map[uint32]*handlerEntry),
		rand:  randutil.NewMathRandomGenerator(),
	}
}

func (r *registry) install(h PrimaryHandler) (uint32, error) {
	if h == nil {
		return 0, ErrInvalidValue
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Keys are opaque and non-zero; draw until we find an unused one.
	var key uint32
	for {
		key = r.rand.Uint32()
		if _, taken := r.byKey[key]; key != 0 && !taken {
			break
		}
	}

	e := &handlerEntry{key: key, primary: h}
	r.entries = append(r.entries, e)
	r.byKey[key] = e
	return key, nil
}

func (r *registry) installAux(key uint32, h AuxHandler, getter FrameGetter) error {
	if h == nil {
		return ErrInvalidValue
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byKey[key]
	if !ok {
		return ErrInvalidValue
	}
	e.aux = append(e.aux, auxHandler{h, getter})
	return nil
}

type handlerView struct {
	key     uint32
	primary PrimaryHandler
	aux     []auxHandler
}

func (r *registry) snapshot() []handlerView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	views := make([]handlerView, len(r.entries))
	for i, e := range r.entries {
		views[i] = handlerView{e.key, e.primary, e.aux}
	}
	return views
}
