package ws

import (
	"github.com/gorilla/websocket"

	"github.com/padstream/relay/internal/session"
)

// wsStream adapts a gorilla connection to the session.Stream contract.
// Binary messages carry sync payloads; everything else (text, ping,
// pong) is surfaced as a control frame.
type wsStream struct {
	conn *websocket.Conn
}

func newStream(conn *websocket.Conn) *wsStream {
	return &wsStream{conn: conn}
}

func (s *wsStream) ReadFrame() (session.Frame, error) {
	mt, data, err := s.conn.ReadMessage()
	if err != nil {
		return session.Frame{}, err
	}
	if mt == websocket.BinaryMessage {
		return session.Frame{Type: session.FramePayload, Payload: data}, nil
	}
	return session.Frame{Type: session.FrameControl, Payload: data}, nil
}

func (s *wsStream) WriteFrame(f session.Frame) error {
	if f.Type != session.FramePayload {
		return nil
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, f.Payload)
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
