package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/officialznkxproject-sys/tohang/pkg/logging"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsSendBuffer   = 16
)

// wsFrame is the JSON envelope pushed to pairing pages.
type wsFrame struct {
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

// wsHub fans bus events out to connected websocket clients. Each client gets
// a buffered send channel and its own writer goroutine; a client that cannot
// keep up is dropped rather than blocking the rest.
type wsHub struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	replay  map[string][]byte
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newWSHub(logger *logging.Logger) *wsHub {
	return &wsHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The pairing page is served from the gateway itself; the control
			// plane is not meant to be exposed publicly.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
		replay:  make(map[string][]byte),
	}
}

func (h *wsHub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(logging.CategoryHTTP, "ws_upgrade_failed", "websocket upgrade failed",
			map[string]any{"error": err.Error()})
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	pending := make([][]byte, 0, len(h.replay))
	for subject, data := range h.replay {
		if frame, err := encodeFrame(subject, data); err == nil {
			pending = append(pending, frame)
		}
	}
	h.mu.Unlock()

	// Replay the cached state so the page renders without waiting for the
	// next live event.
	for _, frame := range pending {
		select {
		case client.send <- frame:
		default:
		}
	}

	go client.writeLoop()
	go h.readLoop(client)
}

// readLoop discards inbound frames and detects disconnects.
func (h *wsHub) readLoop(client *wsClient) {
	defer h.drop(client)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writeLoop() {
	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// broadcast pushes one event to every client.
func (h *wsHub) broadcast(subject string, data []byte) {
	frame, err := encodeFrame(subject, data)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- frame:
		default:
			// Slow consumer; disconnect it.
			delete(h.clients, client)
			close(client.send)
			client.conn.Close()
		}
	}
}

// cacheReplay stores the latest event for a subject so new clients catch up.
func (h *wsHub) cacheReplay(subject string, data []byte) {
	h.mu.Lock()
	h.replay[subject] = data
	h.mu.Unlock()
}

func (h *wsHub) dropReplay(subject string) {
	h.mu.Lock()
	delete(h.replay, subject)
	h.mu.Unlock()
}

func (h *wsHub) drop(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	client.conn.Close()
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for client := range h.clients {
		close(client.send)
		client.conn.Close()
	}
	h.clients = make(map[*wsClient]struct{})
}

func encodeFrame(subject string, data []byte) ([]byte, error) {
	return json.Marshal(wsFrame{Subject: subject, Data: json.RawMessage(data)})
}
