package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/padstream/relay/internal/engine"
	"github.com/padstream/relay/internal/relay"
	"github.com/padstream/relay/internal/session"
	"github.com/padstream/relay/internal/stats"
)

func newTestServer(t *testing.T, allowedOrigins []string, authToken string) (relay.Handle, *httptest.Server) {
	t.Helper()

	h, _ := relay.Spawn(engine.New(), relay.Config{})
	t.Cleanup(func() { _ = h.Stop() })

	collector, err := stats.NewCollector(h.Subscribers)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	s := NewServer(h, session.Config{MailboxCapacity: 8}, collector, allowedOrigins, authToken)
	mux := http.NewServeMux()
	s.SetupRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return h, srv
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readBinary(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want binary", mt)
	}
	return data
}

func TestAuthorize(t *testing.T) {
	s := NewServer(relay.Handle{}, session.Config{}, nil, nil, "tok")

	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  bool
	}{
		{"NoCredentials", func(r *http.Request) {}, false},
		{"QueryToken", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", "tok")
			r.URL.RawQuery = q.Encode()
		}, true},
		{"HeaderToken", func(r *http.Request) { r.Header.Set("X-Relay-Token", "tok") }, true},
		{"BearerToken", func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok") }, true},
		{"WrongToken", func(r *http.Request) { r.Header.Set("X-Relay-Token", "nope") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.setup(r)
			if got := s.authorize(r); got != tt.want {
				t.Errorf("authorize = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthorize_NoTokenConfigured(t *testing.T) {
	s := NewServer(relay.Handle{}, session.Config{}, nil, nil, "")
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if !s.authorize(r) {
		t.Error("expected open access with no token configured")
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"NoOriginHeader", nil, "", "relay.example", true},
		{"SameHost", nil, "https://relay.example", "relay.example", true},
		{"Localhost", nil, "http://localhost:5173", "relay.example", true},
		{"Loopback", nil, "http://127.0.0.1:8080", "relay.example", true},
		{"ForeignHost", nil, "https://evil.example", "relay.example", false},
		{"AllowedExact", []string{"https://pad.example"}, "https://pad.example", "relay.example", true},
		{"AllowedHostMatch", []string{"https://pad.example"}, "http://pad.example", "relay.example", true},
		{"AllowedListRejectsOthers", []string{"https://pad.example"}, "http://localhost:5173", "relay.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(relay.Handle{}, session.Config{}, nil, tt.allowed, "")
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := s.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestHandleWS_Unauthorized(t *testing.T) {
	_, srv := newTestServer(t, nil, "tok")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("response = %+v, want 401", resp)
	}
}

func TestHandleWS_EndToEnd(t *testing.T) {
	h, srv := newTestServer(t, nil, "")

	c1 := dialWS(t, srv, "")
	c2 := dialWS(t, srv, "")

	// Both sessions must be subscribed before the first edit goes out.
	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("sessions not registered, subscribers = %d", h.Subscribers())
		}
		time.Sleep(5 * time.Millisecond)
	}

	update := []byte{engine.MsgUpdate, 'h', 'i'}
	if err := c1.WriteMessage(websocket.BinaryMessage, update); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The mutation delta fans out to every session, sender included.
	for name, conn := range map[string]*websocket.Conn{"c1": c1, "c2": c2} {
		if got := readBinary(t, conn); string(got) != string(update) {
			t.Errorf("%s received %v, want %v", name, got, update)
		}
	}

	// A later join receives the document as its handshake snapshot.
	c3 := dialWS(t, srv, "")
	if got := readBinary(t, c3); string(got) != string(update) {
		t.Errorf("handshake = %v, want %v", got, update)
	}
}

func TestHandleStats(t *testing.T) {
	_, srv := newTestServer(t, nil, "tok")

	resp, err := http.Get(srv.URL + "/api/stats?token=tok")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var snap stats.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Goroutines < 1 {
		t.Errorf("Goroutines = %d, want >= 1", snap.Goroutines)
	}

	// Without the token the endpoint refuses.
	resp2, err := http.Get(srv.URL + "/api/stats")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", resp2.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := newTestServer(t, nil, "")

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
