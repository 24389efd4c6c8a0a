// Package engine ships the built-in document/presence engine behind
// the relay.Engine interface: an append-log document plus a presence
// map. It stands in for a full conflict-resolving sync engine; the
// relay core treats it as opaque either way.
package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Message tags, first byte of every payload.
const (
	MsgUpdate   byte = 0x00 // body appended to the document log
	MsgPresence byte = 0x01 // 4-byte big-endian client id, then state
	MsgQuery    byte = 0x02 // no body; replies with a full snapshot
)

var (
	ErrEmptyMessage   = errors.New("engine: empty message")
	ErrShortPresence  = errors.New("engine: presence body too short")
	errUnknownMessage = errors.New("engine: unknown message tag")
)

// Oplog is an append-log engine. Not safe for concurrent use; the
// relay core is its only caller.
type Oplog struct {
	doc        []byte
	presence   map[uint32][]byte
	onDoc      func(delta []byte)
	onPresence func(delta []byte)
}

// New creates an empty engine.
func New() *Oplog {
	return &Oplog{presence: make(map[uint32][]byte)}
}

// Handshake encodes the current document as a single update payload.
// Empty while no update has been applied.
func (o *Oplog) Handshake() []byte {
	if len(o.doc) == 0 {
		return nil
	}
	return encodeUpdate(o.doc)
}

// Handle applies one payload. Update and presence messages mutate state
// and fire the matching observer; queries return a snapshot reply.
func (o *Oplog) Handle(msg []byte) ([][]byte, error) {
	if len(msg) == 0 {
		return nil, ErrEmptyMessage
	}

	switch tag, body := msg[0], msg[1:]; tag {
	case MsgUpdate:
		o.doc = append(o.doc, body...)
		if o.onDoc != nil {
			o.onDoc(encodeUpdate(body))
		}
		return nil, nil

	case MsgPresence:
		if len(body) < 4 {
			return nil, ErrShortPresence
		}
		client := binary.BigEndian.Uint32(body[:4])
		state := append([]byte(nil), body[4:]...)
		o.presence[client] = state
		if o.onPresence != nil {
			o.onPresence(append([]byte(nil), msg...))
		}
		return nil, nil

	case MsgQuery:
		if snapshot := o.Handshake(); snapshot != nil {
			return [][]byte{snapshot}, nil
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: 0x%02x", errUnknownMessage, tag)
	}
}

// OnDocUpdate registers the document observer.
func (o *Oplog) OnDocUpdate(fn func(delta []byte)) {
	o.onDoc = fn
}

// OnPresenceUpdate registers the presence observer.
func (o *Oplog) OnPresenceUpdate(fn func(delta []byte)) {
	o.onPresence = fn
}

// Doc returns the accumulated document bytes.
func (o *Oplog) Doc() []byte {
	return append([]byte(nil), o.doc...)
}

// Presence returns one client's latest presence state.
func (o *Oplog) Presence(client uint32) ([]byte, bool) {
	state, ok := o.presence[client]
	return state, ok
}

func encodeUpdate(body []byte) []byte {
	out := make([]byte, 0, len(body)+1)
	out = append(out, MsgUpdate)
	return append(out, body...)
}
