package srtp

import (
	"sync"

	"github.com/golang/groupcache/lru"
	errors "golang.org/x/xerrors"
)

// Receive-side state for one remote SSRC.
type remoteState struct {
	// SRTP: rollover counter and highest sequence number seen, from which
	// the index of the next packet is estimated. Unused by SRTCP, whose index
	// travels in the clear.
	roc     uint32
	highest uint16

	window replayWindow
}

// stateCache bounds the per-SSRC state kept for remote senders. Entries are
// only created or touched for packets that authenticated. Entries are never
// evicted, since a forgotten replay window would accept old packets again;
// once full, packets from new SSRCs are refused.
type stateCache struct {
	mu    sync.Mutex
	cache *lru.Cache
	max   int
	width int
}

func newStateCache(maxSSRCs, width int) *stateCache {
	return &stateCache{
		cache: lru.New(maxSSRCs),
		max:   maxSSRCs,
		width: width,
	}
}

// lookup returns the rollover counter and highest sequence number recorded
// for ssrc.
func (c *stateCache) lookup(ssrc uint32) (roc uint32, highest uint16, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache.Get(ssrc)
	if !ok {
		return 0, 0, false
	}
	s := v.(*remoteState)
	return s.roc, s.highest, true
}

// update runs fn on the state for ssrc, creating it first if needed. It
// returns ErrTooManySSRCs if ssrc is new and the cache is full.
func (c *stateCache) update(ssrc uint32, init func(*remoteState), fn func(*remoteState) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache.Get(ssrc)
	if !ok {
		if c.cache.Len() >= c.max {
			return errors.Errorf("SSRC %08x with %d already tracked: %w", ssrc, c.max, ErrTooManySSRCs)
		}
		s := &remoteState{window: newReplayWindow(c.width)}
		if init != nil {
			init(s)
		}
		if err := fn(s); err != nil {
			return err
		}
		c.cache.Add(ssrc, s)
		return nil
	}
	return fn(v.(*remoteState))
}

func (c *stateCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
