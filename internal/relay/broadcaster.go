package relay

import (
	"sync"

	"github.com/google/uuid"
	errors "golang.org/x/xerrors"
)

var errNotFound = errors.New("subscriber not found")

type message struct {
	kind int // websocket message type
	data []byte
}

// broadcaster fans messages out from one writer to many subscribers.
//
// Each subscriber has its own buffered channel. Once a subscriber's buffer is
// full, the oldest message is dropped for each new one, so a slow subscriber
// never holds up the writer (which is the flow's processor goroutine).
type broadcaster struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID]chan message
	closed      bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{
		subscribers: make(map[uuid.UUID]chan message),
	}
}

// subscribe buffers up to n messages for a new subscriber.
func (b *broadcaster) subscribe(n int) (uuid.UUID, <-chan message) {
	if n < 1 {
		n = 1
	}
	id := uuid.New()
	ch := make(chan message, n)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch
	return id, ch
}

// unsubscribe closes the subscriber's channel.
func (b *broadcaster) unsubscribe(id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.subscribers[id]
	if !ok {
		return errNotFound
	}
	delete(b.subscribers, id)
	close(ch)
	return nil
}

func (b *broadcaster) broadcast(m message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- m:
		default:
			// Subscriber backlogged. Drop oldest message, add newest.
			select {
			case <-ch:
			default:
			}
			ch <- m
		}
	}
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// close closes every subscriber channel. Later subscribers get a closed
// channel.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.closed = true
}
