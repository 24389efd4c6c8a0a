package relay

// Engine is the document/presence collaborator driven by the core. All
// methods are invoked from the core goroutine only; implementations do
// not need to be safe for concurrent use.
type Engine interface {
	// Handshake returns the initial state snapshot sent to a joining
	// session. An empty snapshot suppresses the handshake send.
	Handshake() []byte

	// Handle applies one inbound payload to the shared state and
	// returns any direct replies for the originating session. A non-nil
	// error leaves the state untouched by convention and never
	// disconnects the sender.
	Handle(msg []byte) ([][]byte, error)

	// OnDocUpdate registers the observer fired with an encoded delta
	// after every committed document change. Wired once, before the
	// first Handle call.
	OnDocUpdate(fn func(delta []byte))

	// OnPresenceUpdate registers the observer fired with an encoded
	// delta after every presence change. Wired once, before the first
	// Handle call.
	OnPresenceUpdate(fn func(delta []byte))
}
