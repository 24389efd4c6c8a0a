// Package bus provides the relay's two delivery channels: a
// multi-subscriber broadcast bus for document/presence deltas and a
// bounded per-session mailbox for unicast replies.
package bus

import (
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrClosed is returned by Subscription.Err after the bus shuts down.
	ErrClosed = errors.New("bus: closed")
	// ErrLagged is returned by Subscription.Err after a subscriber is
	// disconnected for falling behind the publisher.
	ErrLagged = errors.New("bus: subscriber lagged")
)

// Bus fans every published payload out to all current subscribers.
// Publish never blocks: a subscriber whose buffer is full is
// disconnected rather than skipped, because a session that misses a
// delta would diverge from the shared document for good.
type Bus struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	cap    int
	closed bool

	onLag func() // metrics hook, may be nil
}

// New creates a bus whose subscribers each buffer up to capacity
// payloads before being considered lagged.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 100
	}
	return &Bus{
		subs: make(map[uint64]*Subscription),
		cap:  capacity,
	}
}

// OnLag registers a hook invoked once per lag disconnect. Must be
// called before the first Publish.
func (b *Bus) OnLag(fn func()) {
	b.onLag = fn
}

// Subscribe returns an endpoint that observes every payload published
// after this call. Subscribing to a closed bus yields an endpoint that
// reports ErrClosed immediately.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &Subscription{
		bus: b,
		ch:  make(chan []byte, b.cap),
	}
	if b.closed {
		close(s.ch)
		return s
	}
	s.id = b.nextID
	b.nextID++
	b.subs[s.id] = s
	return s
}

// Publish delivers payload to every subscriber. With no subscribers the
// payload is discarded. Subscribers that cannot accept it are
// disconnected with a lagged signal.
func (b *Bus) Publish(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for id, s := range b.subs {
		select {
		case s.ch <- payload:
		default:
			slog.Warn("bus: subscriber lagging, disconnecting", "subscriber", id)
			delete(b.subs, id)
			s.lagged = true
			close(s.ch)
			if b.onLag != nil {
				b.onLag()
			}
		}
	}
}

// Close shuts the bus down. All subscriptions end with ErrClosed once
// their buffered payloads are drained; later publishes are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
}

// SubscriberCount reports the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Subscription is one subscriber's receive endpoint.
type Subscription struct {
	bus    *Bus
	id     uint64
	ch     chan []byte
	lagged bool // written under bus.mu before ch is closed
}

// C is the receive channel. It is closed when the subscription ends;
// Err then reports why.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

// Err reports why the subscription ended. Valid only after C is
// observed closed.
func (s *Subscription) Err() error {
	if s.lagged {
		return ErrLagged
	}
	return ErrClosed
}

// Close detaches the subscription from the bus. Idempotent, and safe
// after a lag disconnect or bus shutdown.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if cur, ok := s.bus.subs[s.id]; ok && cur == s {
		delete(s.bus.subs, s.id)
		close(s.ch)
	}
}
