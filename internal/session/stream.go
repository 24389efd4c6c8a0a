package session

// FrameType distinguishes payload-bearing frames from transport
// control frames (pings, text notices and the like).
type FrameType int

const (
	FramePayload FrameType = iota
	FrameControl
)

// Frame is one unit read from or written to a duplex stream.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// Stream is the duplex byte stream backing one session, produced by
// the connection-accept layer. Close must unblock any in-flight
// ReadFrame or WriteFrame call.
type Stream interface {
	ReadFrame() (Frame, error)
	WriteFrame(Frame) error
	Close() error
}
