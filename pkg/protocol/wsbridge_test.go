package protocol

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// bridgeServer is a scripted fake of the protocol bridge process.
type bridgeServer struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conn   *websocket.Conn
	frames []bridgeFrame
}

func newBridgeServer(t *testing.T) (*bridgeServer, *httptest.Server) {
	s := &bridgeServer{t: t}
	ts := httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(ts.Close)
	return s, ts
}

func (s *bridgeServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame bridgeFrame
		if json.Unmarshal(data, &frame) == nil {
			s.mu.Lock()
			s.frames = append(s.frames, frame)
			s.mu.Unlock()
		}
	}
}

func (s *bridgeServer) push(frame bridgeFrame) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.t.Fatal("no bridge connection yet")
	}
	data, _ := json.Marshal(frame)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.t.Fatalf("push frame: %v", err)
	}
}

func (s *bridgeServer) received() []bridgeFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bridgeFrame(nil), s.frames...)
}

func (s *bridgeServer) waitFrames(n int) []bridgeFrame {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if frames := s.received(); len(frames) >= n {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.t.Fatalf("timed out waiting for %d frames, have %d", n, len(s.received()))
	return nil
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case evt := <-events:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
		return Event{}
	}
}

func TestWSBridgeConnectSendsAuth(t *testing.T) {
	server, ts := newBridgeServer(t)
	bridge := NewWSBridge(WSBridgeConfig{URL: wsURL(ts)})
	defer bridge.Close()

	if err := bridge.Connect(context.Background(), []byte("blob")); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	frames := server.waitFrames(1)
	if frames[0].Type != "auth" {
		t.Errorf("first frame type = %q, want auth", frames[0].Type)
	}
	if decoded, _ := base64.StdEncoding.DecodeString(frames[0].Creds); string(decoded) != "blob" {
		t.Errorf("auth credentials = %q", frames[0].Creds)
	}

	if evt := nextEvent(t, bridge.Events()); evt.Kind != EventConnecting {
		t.Errorf("first event = %q, want connecting", evt.Kind)
	}
}

func TestWSBridgeTranslatesFrames(t *testing.T) {
	server, ts := newBridgeServer(t)
	bridge := NewWSBridge(WSBridgeConfig{URL: wsURL(ts)})
	defer bridge.Close()

	if err := bridge.Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server.waitFrames(1)
	nextEvent(t, bridge.Events()) // connecting

	server.push(bridgeFrame{Type: "qr", Code: "pair-me"})
	if evt := nextEvent(t, bridge.Events()); evt.Kind != EventQR || evt.PairingCode != "pair-me" {
		t.Errorf("unexpected qr event %+v", evt)
	}

	server.push(bridgeFrame{Type: "open"})
	if evt := nextEvent(t, bridge.Events()); evt.Kind != EventOpen {
		t.Errorf("unexpected event %+v", evt)
	}

	creds := base64.StdEncoding.EncodeToString([]byte("rotated"))
	server.push(bridgeFrame{Type: "creds", Creds: creds})
	evt := nextEvent(t, bridge.Events())
	if evt.Kind != EventCredsChanged || string(evt.Credentials) != "rotated" {
		t.Errorf("unexpected creds event %+v", evt)
	}

	server.push(bridgeFrame{Type: "message", ChatID: "chat-1", SenderID: "sender-1", Text: "!ping"})
	evt = nextEvent(t, bridge.Events())
	if evt.Kind != EventMessage || evt.Message == nil {
		t.Fatalf("unexpected message event %+v", evt)
	}
	if evt.Message.ChatID != "chat-1" || evt.Message.SenderID != "sender-1" || evt.Message.Text != "!ping" {
		t.Errorf("unexpected message %+v", evt.Message)
	}

	server.push(bridgeFrame{Type: "close", Reason: "logged-out"})
	if evt := nextEvent(t, bridge.Events()); evt.Kind != EventClose || evt.Reason != CloseLoggedOut {
		t.Errorf("unexpected close event %+v", evt)
	}
}

func TestWSBridgeMessageSenderFallsBackToChat(t *testing.T) {
	server, ts := newBridgeServer(t)
	bridge := NewWSBridge(WSBridgeConfig{URL: wsURL(ts)})
	defer bridge.Close()

	if err := bridge.Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server.waitFrames(1)
	nextEvent(t, bridge.Events()) // connecting

	server.push(bridgeFrame{Type: "message", ChatID: "direct-chat", Text: "hi"})
	evt := nextEvent(t, bridge.Events())
	if evt.Message == nil || evt.Message.SenderID != "direct-chat" {
		t.Errorf("sender should default to the chat id, got %+v", evt.Message)
	}
}

func TestWSBridgeDropReportsTransportClose(t *testing.T) {
	server, ts := newBridgeServer(t)
	bridge := NewWSBridge(WSBridgeConfig{URL: wsURL(ts)})
	defer bridge.Close()

	if err := bridge.Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server.waitFrames(1)
	nextEvent(t, bridge.Events()) // connecting

	server.mu.Lock()
	server.conn.Close()
	server.mu.Unlock()

	if evt := nextEvent(t, bridge.Events()); evt.Kind != EventClose || evt.Reason != CloseTransport {
		t.Errorf("dropped connection should report a transport close, got %+v", evt)
	}
}

func TestWSBridgeBacklogKeepsCloseEvent(t *testing.T) {
	server, ts := newBridgeServer(t)
	bridge := NewWSBridge(WSBridgeConfig{URL: wsURL(ts)})
	defer bridge.Close()

	if err := bridge.Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server.waitFrames(1)
	nextEvent(t, bridge.Events()) // connecting

	// Flood well past the channel buffer while nothing is draining, then
	// close. The read loop must hold every event until the consumer catches
	// up; losing the close would leave the session open on a dead link.
	const burst = 80
	for i := 0; i < burst; i++ {
		server.push(bridgeFrame{Type: "message", ChatID: "chat-1", Text: "spam"})
	}
	server.push(bridgeFrame{Type: "close", Reason: "transport"})

	messages := 0
	sawClose := false
	timeout := time.After(5 * time.Second)
	for !sawClose {
		select {
		case evt := <-bridge.Events():
			switch evt.Kind {
			case EventMessage:
				messages++
			case EventClose:
				sawClose = true
				if evt.Reason != CloseTransport {
					t.Errorf("close reason = %q, want transport", evt.Reason)
				}
			}
		case <-timeout:
			t.Fatalf("close event never delivered; drained %d messages", messages)
		}
	}
	if messages != burst {
		t.Errorf("drained %d messages before the close, want %d", messages, burst)
	}
}

func TestWSBridgeCloseUnblocksBackloggedReadLoop(t *testing.T) {
	server, ts := newBridgeServer(t)
	bridge := NewWSBridge(WSBridgeConfig{URL: wsURL(ts)})

	if err := bridge.Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server.waitFrames(1)

	// Fill the buffer and beyond so the read loop is parked on a delivery.
	for i := 0; i < 100; i++ {
		server.push(bridgeFrame{Type: "message", ChatID: "chat-1", Text: "spam"})
	}
	time.Sleep(50 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- bridge.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked behind an undrained read loop")
	}

	// The stream ends cleanly after the remaining buffered events.
	for {
		if _, ok := <-bridge.Events(); !ok {
			return
		}
	}
}

func TestWSBridgeSendText(t *testing.T) {
	server, ts := newBridgeServer(t)
	bridge := NewWSBridge(WSBridgeConfig{URL: wsURL(ts)})
	defer bridge.Close()

	if err := bridge.Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server.waitFrames(1)

	if err := bridge.SendText(context.Background(), "chat-9", "🏓 Pong!"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	frames := server.waitFrames(2)
	sent := frames[1]
	if sent.Type != "send" || sent.ChatID != "chat-9" || sent.Text != "🏓 Pong!" {
		t.Errorf("unexpected outbound frame %+v", sent)
	}
}

func TestWSBridgeSendWithoutConnection(t *testing.T) {
	bridge := NewWSBridge(WSBridgeConfig{URL: "ws://127.0.0.1:1/never"})
	defer bridge.Close()

	if err := bridge.SendText(context.Background(), "c", "t"); err != ErrNotConnected {
		t.Errorf("SendText before Connect returned %v, want ErrNotConnected", err)
	}
}

func TestWSBridgeCloseIsIdempotent(t *testing.T) {
	bridge := NewWSBridge(WSBridgeConfig{URL: "ws://127.0.0.1:1/never"})
	if err := bridge.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := bridge.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, ok := <-bridge.Events(); ok {
		t.Error("event channel should be closed")
	}
}
