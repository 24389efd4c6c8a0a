// Package relay implements the collaboration core: a single goroutine
// that owns the shared document/presence engine and the session
// registry, consumes a serialized command stream, and fans committed
// deltas out to every connected session through the broadcast bus.
package relay

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/padstream/relay/internal/bus"
)

var (
	// ErrCoreUnavailable is returned by submissions after the core has
	// stopped. Callers must treat it as fatal for their own session.
	ErrCoreUnavailable = errors.New("relay: core unavailable")
	// ErrCoreBusy is returned when the command queue is saturated. The
	// submission is dropped; callers proceed.
	ErrCoreBusy = errors.New("relay: command queue full")
)

// SessionID identifies one connected session. IDs are UUIDv7 so they
// sort by accept time.
type SessionID = uuid.UUID

// NewSessionID mints a fresh session id.
func NewSessionID() (SessionID, error) {
	return uuid.NewV7()
}

// SessionRecord is the registry entry for one live session. Owned
// exclusively by the core once joined.
type SessionRecord struct {
	ID         SessionID
	RemoteAddr string
	Mailbox    *bus.Mailbox
	// Stop force-stops the owning session actor. Unused by the core
	// itself today; held for administrative disconnects.
	Stop func()
}

type commandKind int

const (
	cmdJoin commandKind = iota
	cmdLeave
	cmdInbound
	cmdStop
)

func (k commandKind) String() string {
	switch k {
	case cmdJoin:
		return "join"
	case cmdLeave:
		return "leave"
	case cmdInbound:
		return "inbound"
	case cmdStop:
		return "stop"
	}
	return "unknown"
}

type command struct {
	kind    commandKind
	record  *SessionRecord
	id      SessionID
	payload []byte
}

// Config tunes the core's queues.
type Config struct {
	// CommandQueueSize bounds the serialized command stream.
	CommandQueueSize int
	// BusCapacity bounds each broadcast subscriber's buffer.
	BusCapacity int
	// Metrics is optional; nil disables instrumentation.
	Metrics *Metrics
}

func (c Config) withDefaults() Config {
	if c.CommandQueueSize <= 0 {
		c.CommandQueueSize = 100
	}
	if c.BusCapacity <= 0 {
		c.BusCapacity = 100
	}
	return c
}

// Handle is the only way external code reaches the core. It is cheap
// to copy and safe for concurrent use.
type Handle struct {
	cmds chan<- command
	done <-chan struct{}
	bus  *bus.Bus
}

// Join registers a session with the core.
func (h Handle) Join(rec *SessionRecord) error {
	return h.submit(command{kind: cmdJoin, record: rec})
}

// Leave deregisters a session. Idempotent once processed.
func (h Handle) Leave(id SessionID) error {
	return h.submit(command{kind: cmdLeave, id: id})
}

// Inbound submits one payload received from a session.
func (h Handle) Inbound(id SessionID, payload []byte) error {
	return h.submit(command{kind: cmdInbound, id: id, payload: payload})
}

// Stop asks the core to shut down. Terminal.
func (h Handle) Stop() error {
	return h.submit(command{kind: cmdStop})
}

// Subscribe attaches a new broadcast bus subscription.
func (h Handle) Subscribe() *bus.Subscription {
	return h.bus.Subscribe()
}

// Subscribers reports the live broadcast subscription count, which
// tracks the connected session count since every session holds one.
func (h Handle) Subscribers() int {
	return h.bus.SubscriberCount()
}

// submit never blocks: a closed core yields ErrCoreUnavailable and a
// saturated queue yields ErrCoreBusy with the command dropped.
func (h Handle) submit(cmd command) error {
	select {
	case <-h.done:
		return ErrCoreUnavailable
	default:
	}
	select {
	case <-h.done:
		return ErrCoreUnavailable
	case h.cmds <- cmd:
		return nil
	default:
		return ErrCoreBusy
	}
}

// Core is the single-threaded ownership domain for the engine and the
// session registry.
type Core struct {
	engine   Engine
	bus      *bus.Bus
	registry map[SessionID]*SessionRecord
	cmds     chan command
	done     chan struct{}
	metrics  *Metrics
	log      *slog.Logger
}

// Spawn starts the core and returns its handle plus a lifecycle channel
// closed once the command loop has fully exited.
func Spawn(engine Engine, cfg Config) (Handle, <-chan struct{}) {
	cfg = cfg.withDefaults()

	c := &Core{
		engine:   engine,
		bus:      bus.New(cfg.BusCapacity),
		registry: make(map[SessionID]*SessionRecord),
		cmds:     make(chan command, cfg.CommandQueueSize),
		done:     make(chan struct{}),
		metrics:  cfg.Metrics,
		log:      slog.With("component", "core"),
	}
	c.bus.OnLag(c.metrics.lagged)

	// The mutation observers are the only path committed deltas take to
	// other sessions. Wired once, for the core's whole lifetime.
	engine.OnDocUpdate(func(delta []byte) {
		c.log.Debug("core: broadcast doc delta", "bytes", len(delta))
		c.metrics.broadcast()
		c.bus.Publish(delta)
	})
	engine.OnPresenceUpdate(func(delta []byte) {
		c.log.Debug("core: broadcast presence delta", "bytes", len(delta))
		c.metrics.broadcast()
		c.bus.Publish(delta)
	})

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		c.run()
	}()

	return Handle{cmds: c.cmds, done: c.done, bus: c.bus}, stopped
}

func (c *Core) run() {
	c.log.Debug("core: run loop")
	for {
		cmd := <-c.cmds
		c.metrics.command(cmd.kind.String())
		switch cmd.kind {
		case cmdJoin:
			c.handleJoin(cmd.record)
		case cmdInbound:
			c.handleInbound(cmd.id, cmd.payload)
		case cmdLeave:
			c.handleLeave(cmd.id)
		case cmdStop:
			c.handleStop()
			return
		}
	}
}

func (c *Core) handleJoin(rec *SessionRecord) {
	c.log.Debug("core: session joined", "session", rec.ID, "peer", rec.RemoteAddr)

	// Initial snapshot goes to the new session only. A failed handshake
	// is survivable: the sync protocol recovers state through later
	// exchanges.
	if snapshot := c.engine.Handshake(); len(snapshot) > 0 {
		if err := rec.Mailbox.Send(snapshot); err != nil {
			c.metrics.mailboxDropped()
			c.log.Warn("core: handshake send failed", "session", rec.ID, "err", err)
		}
	}

	c.registry[rec.ID] = rec
	c.metrics.sessionDelta(1)
}

func (c *Core) handleInbound(id SessionID, payload []byte) {
	rec, ok := c.registry[id]
	if !ok {
		// Session departed mid-flight; not an error.
		c.log.Debug("core: inbound from departed session", "session", id)
		return
	}

	replies, err := c.engine.Handle(payload)
	if err != nil {
		// One bad message does not disconnect a session.
		c.metrics.protocolError()
		c.log.Warn("core: engine rejected payload", "session", id, "err", err)
		return
	}

	for _, reply := range replies {
		if err := rec.Mailbox.Send(reply); err != nil {
			c.metrics.mailboxDropped()
			c.log.Warn("core: reply dropped", "session", id, "err", err)
		}
	}
}

func (c *Core) handleLeave(id SessionID) {
	rec, ok := c.registry[id]
	if !ok {
		// Late or duplicate leave.
		return
	}
	c.log.Debug("core: session left", "session", id)
	delete(c.registry, id)
	rec.Mailbox.Close()
	c.metrics.sessionDelta(-1)
}

func (c *Core) handleStop() {
	c.log.Info("core: stopping", "sessions", len(c.registry))

	// Refuse further submissions before tearing anything down.
	close(c.done)

	for id, rec := range c.registry {
		delete(c.registry, id)
		rec.Mailbox.Close()
		c.metrics.sessionDelta(-1)
	}
	c.bus.Close()
}
