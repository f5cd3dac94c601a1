package protocol

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// bridgeFrame is the JSON envelope exchanged with the protocol bridge. The
// bridge terminates the actual chat wire protocol and relays lifecycle and
// message events as frames.
type bridgeFrame struct {
	Type     string `json:"type"`
	Code     string `json:"code,omitempty"`
	Reason   string `json:"reason,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`
	SenderID string `json:"sender_id,omitempty"`
	Text     string `json:"text,omitempty"`
	Creds    string `json:"creds,omitempty"` // base64 credential blob
}

// WSBridgeConfig configures the WebSocket bridge driver.
type WSBridgeConfig struct {
	// URL of the bridge endpoint, e.g. "ws://127.0.0.1:8765/session".
	URL string

	// DialTimeout bounds the websocket handshake. Zero means 15s.
	DialTimeout time.Duration

	// WriteTimeout bounds outbound frame writes. Zero means 10s.
	WriteTimeout time.Duration
}

// WSBridge is the production Client. It speaks JSON frames over a WebSocket
// to a protocol bridge process that owns the chat wire protocol.
type WSBridge struct {
	cfg    WSBridgeConfig
	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

var _ Client = (*WSBridge)(nil)

// NewWSBridge creates a bridge driver. Connect must be called before any
// events are delivered.
func NewWSBridge(cfg WSBridgeConfig) *WSBridge {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &WSBridge{
		cfg:    cfg,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

// Connect dials the bridge and hands over any persisted credentials. It may
// be called again after a close event to establish a fresh transport; the
// previous connection, if any, is torn down first.
func (b *WSBridge) Connect(ctx context.Context, credentials []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrNotConnected
	}
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
	b.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: b.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, b.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial bridge %s: %w", b.cfg.URL, err)
	}

	auth := bridgeFrame{Type: "auth"}
	if len(credentials) > 0 {
		auth.Creds = base64.StdEncoding.EncodeToString(credentials)
	}
	if err := b.writeFrame(conn, auth); err != nil {
		_ = conn.Close()
		return fmt.Errorf("send auth frame: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	// Connect runs on the dispatch loop itself, so this progress event must
	// not block on the loop draining its own channel. It carries no payload;
	// dropping it under backlog is harmless.
	select {
	case b.events <- Event{Kind: EventConnecting}:
	default:
	}

	b.wg.Add(1)
	go b.readLoop(conn)
	return nil
}

// Events returns the event stream. The channel is closed by Close.
func (b *WSBridge) Events() <-chan Event {
	return b.events
}

// SendText relays an outbound text message through the bridge.
func (b *WSBridge) SendText(ctx context.Context, chatID, text string) error {
	return b.send(bridgeFrame{Type: "send", ChatID: chatID, Text: text})
}

// Logout asks the bridge to invalidate the session server-side.
func (b *WSBridge) Logout(ctx context.Context) error {
	return b.send(bridgeFrame{Type: "logout"})
}

// Close tears down the transport and closes the event stream. Safe to call
// more than once.
func (b *WSBridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
	b.mu.Unlock()

	// The event channel is closed only after every read loop has returned,
	// so no deliver can race the close.
	b.wg.Wait()
	close(b.events)
	return nil
}

func (b *WSBridge) send(frame bridgeFrame) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return b.writeFrame(conn, frame)
}

func (b *WSBridge) writeFrame(conn *websocket.Conn, frame bridgeFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop translates bridge frames into protocol events until the
// connection drops. A drop without a prior close frame is reported as a
// transport close so the lifecycle can schedule a reconnect.
func (b *WSBridge) readLoop(conn *websocket.Conn) {
	defer b.wg.Done()
	sawClose := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var frame bridgeFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		switch frame.Type {
		case "qr":
			b.deliver(Event{Kind: EventQR, PairingCode: frame.Code})
		case "open":
			b.deliver(Event{Kind: EventOpen})
		case "close":
			sawClose = true
			reason := CloseTransport
			if frame.Reason == string(CloseLoggedOut) {
				reason = CloseLoggedOut
			}
			b.deliver(Event{Kind: EventClose, Reason: reason})
		case "message":
			sender := frame.SenderID
			if sender == "" {
				sender = frame.ChatID
			}
			b.deliver(Event{Kind: EventMessage, Message: &InboundMessage{
				ChatID:   frame.ChatID,
				SenderID: sender,
				Text:     frame.Text,
			}})
		case "creds":
			blob, err := base64.StdEncoding.DecodeString(frame.Creds)
			if err != nil {
				continue
			}
			b.deliver(Event{Kind: EventCredsChanged, Credentials: blob})
		}
	}

	b.mu.Lock()
	stale := b.conn != conn || b.closed
	if b.conn == conn {
		b.conn = nil
	}
	b.mu.Unlock()

	if !sawClose && !stale {
		b.deliver(Event{Kind: EventClose, Reason: CloseTransport})
	}
}

// deliver blocks until the dispatch loop takes the event or the bridge is
// closed. A slow consumer exerts backpressure on the websocket read loop
// instead of losing events; a dropped close or credential rotation would be
// unrecoverable.
func (b *WSBridge) deliver(evt Event) {
	select {
	case b.events <- evt:
	case <-b.done:
	}
}
