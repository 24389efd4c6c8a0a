// Package session runs one actor per connected peer, bridging its
// duplex stream to the relay core: an inbound pump submitting payloads
// as commands and an outbound pump draining the broadcast bus and the
// session's private mailbox.
package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/padstream/relay/internal/bus"
	"github.com/padstream/relay/internal/relay"
)

// Config tunes one session.
type Config struct {
	// MailboxCapacity bounds the session's private unicast queue.
	MailboxCapacity int
}

// Actor supervises one session's pumps. Obtained from Spawn.
type Actor struct {
	id     relay.SessionID
	handle relay.Handle
	stream Stream
	cancel context.CancelFunc
	done   chan struct{}
	log    *slog.Logger
}

// Spawn starts a session actor for one established connection. The
// actor registers with the core, pumps both directions until either
// fails, then deregisters exactly once and closes the stream.
func Spawn(id relay.SessionID, remoteAddr string, handle relay.Handle, stream Stream, cfg Config) *Actor {
	ctx, cancel := context.WithCancel(context.Background())

	a := &Actor{
		id:     id,
		handle: handle,
		stream: stream,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    slog.With("component", "session", "session", id, "peer", remoteAddr),
	}

	mailbox := bus.NewMailbox(cfg.MailboxCapacity)
	sub := handle.Subscribe()
	rec := &relay.SessionRecord{
		ID:         id,
		RemoteAddr: remoteAddr,
		Mailbox:    mailbox,
		Stop:       a.Stop,
	}

	go a.run(ctx, rec, mailbox, sub)
	return a
}

// Stop force-stops the session. The pumps are cancelled and the actor
// still runs its single deregistration step. Idempotent.
func (a *Actor) Stop() {
	a.cancel()
}

// Done is closed once the actor has fully torn down.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

func (a *Actor) run(ctx context.Context, rec *relay.SessionRecord, mailbox *bus.Mailbox, sub *bus.Subscription) {
	defer close(a.done)
	defer a.cancel()

	a.log.Debug("session: spawn")

	if err := a.handle.Join(rec); err != nil {
		a.log.Error("session: join failed", "err", err)
		mailbox.Close()
		sub.Close()
		a.stream.Close()
		return
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		a.readPump()
	}()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		a.writePump(ctx, mailbox, sub)
	}()

	// Whichever pump finishes first takes the session down with it.
	select {
	case <-readDone:
	case <-writeDone:
	case <-ctx.Done():
	}
	a.cancel()

	// The read pump blocks in ReadFrame and the write pump may block in
	// WriteFrame; closing the stream unblocks both.
	a.stream.Close()
	<-readDone
	<-writeDone

	sub.Close()

	if err := a.handle.Leave(a.id); err != nil {
		a.log.Warn("session: leave not delivered", "err", err)
	}
	a.log.Debug("session: done")
}

// readPump forwards payload frames to the core until the stream ends.
func (a *Actor) readPump() {
	for {
		frame, err := a.stream.ReadFrame()
		if err != nil {
			a.log.Debug("session: read ended", "err", err)
			return
		}
		if frame.Type != FramePayload {
			// Control frames are observed and otherwise ignored.
			continue
		}

		switch err := a.handle.Inbound(a.id, frame.Payload); {
		case err == nil:
		case errors.Is(err, relay.ErrCoreBusy):
			// Backpressure: drop this payload and keep reading.
			a.log.Warn("session: inbound dropped, core busy")
		default:
			// Core gone; the session cannot outlive it.
			a.log.Error("session: core unavailable", "err", err)
			return
		}
	}
}

// writePump drains the broadcast subscription and the private mailbox,
// forwarding payloads in arrival order. The select keeps both sources
// serviced; neither can starve the other.
func (a *Actor) writePump(ctx context.Context, mailbox *bus.Mailbox, sub *bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.C():
			if !ok {
				if errors.Is(sub.Err(), bus.ErrLagged) {
					a.log.Warn("session: lagged behind broadcast, disconnecting")
				} else {
					a.log.Debug("session: broadcast bus closed")
				}
				return
			}
			if !a.write(payload) {
				return
			}
		case payload, ok := <-mailbox.C():
			if !ok {
				// Core deregistered us or stopped.
				a.log.Debug("session: mailbox closed")
				return
			}
			if !a.write(payload) {
				return
			}
		}
	}
}

func (a *Actor) write(payload []byte) bool {
	if err := a.stream.WriteFrame(Frame{Type: FramePayload, Payload: payload}); err != nil {
		a.log.Debug("session: write ended", "err", err)
		return false
	}
	return true
}
