package bus

import (
	"errors"
	"sync"
)

var (
	// ErrMailboxFull is returned by Send when the mailbox is at capacity.
	ErrMailboxFull = errors.New("bus: mailbox full")
	// ErrMailboxClosed is returned by Send after Close.
	ErrMailboxClosed = errors.New("bus: mailbox closed")
)

// Mailbox is a bounded unicast queue from the relay core to exactly one
// session. Send never blocks; delivery is best effort and the broadcast
// bus remains the durable path for document state.
type Mailbox struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

// NewMailbox creates a mailbox buffering up to capacity payloads.
// Capacity is small by default: enough for a handshake burst plus a few
// protocol replies.
func NewMailbox(capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = 16
	}
	return &Mailbox{ch: make(chan []byte, capacity)}
}

// Send enqueues payload without blocking. Returns ErrMailboxFull when
// the buffer is at capacity and ErrMailboxClosed after Close.
func (m *Mailbox) Send(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMailboxClosed
	}
	select {
	case m.ch <- payload:
		return nil
	default:
		return ErrMailboxFull
	}
}

// C is the receive channel. Buffered payloads remain readable after
// Close; the channel then reports closed.
func (m *Mailbox) C() <-chan []byte {
	return m.ch
}

// Close ends the mailbox. Idempotent.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.ch)
	}
}
