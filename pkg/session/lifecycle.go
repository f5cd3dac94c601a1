// Package session owns the lifecycle state machine for the single chat
// session: pairing, credential persistence, and disconnect/reconnect with
// backoff. All state transitions happen on one dispatch goroutine; timers
// and control requests feed the same select loop, so the reconnect counter
// and QR timer are never touched concurrently.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/officialznkxproject-sys/tohang/pkg/auth"
	"github.com/officialznkxproject-sys/tohang/pkg/logging"
	"github.com/officialznkxproject-sys/tohang/pkg/protocol"
	"github.com/officialznkxproject-sys/tohang/pkg/qr"
	"github.com/officialznkxproject-sys/tohang/pkg/telemetry"
)

// State is the lifecycle position of the session.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateAwaitingPair State = "AWAITING_PAIR"
	StateOpen         State = "OPEN"
	StateClosing      State = "CLOSING"
	StateReconnecting State = "RECONNECTING"
	StateFailed       State = "FAILED"
)

// ErrAlreadyRunning is returned when Run is called twice.
var ErrAlreadyRunning = errors.New("session: lifecycle already running")

// Handler processes one inbound message and returns the reply text; empty
// means "send nothing".
type Handler func(ctx context.Context, msg *protocol.InboundMessage) string

// Config tunes the state machine.
type Config struct {
	// MaxReconnectAttempts caps consecutive reconnects after transient
	// closes before the session fails terminally.
	MaxReconnectAttempts int

	// ReconnectBaseDelay is multiplied by the attempt number (linear
	// backoff).
	ReconnectBaseDelay time.Duration

	// QRExpiry is how long an unscanned pairing code stays valid before the
	// session init restarts.
	QRExpiry time.Duration
}

// Manager drives the session lifecycle. Construct with NewManager, then call
// Run once; Run blocks until the context is cancelled.
type Manager struct {
	cfg     Config
	client  protocol.Client
	creds   auth.Store
	bridge  *Bridge
	handler Handler
	logger  *logging.Logger
	metrics *telemetry.Metrics

	restartCh chan struct{}

	mu      sync.Mutex
	state   State
	running bool

	// Mutated only from the dispatch loop.
	attempts       int
	credentials    []byte
	qrTimer        *time.Timer
	reconnectTimer *time.Timer
}

// NewManager wires the lifecycle. metrics may be nil.
func NewManager(cfg Config, client protocol.Client, creds auth.Store, bridge *Bridge, handler Handler, logger *logging.Logger, metrics *telemetry.Metrics) *Manager {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = 5 * time.Second
	}
	if cfg.QRExpiry <= 0 {
		cfg.QRExpiry = 60 * time.Second
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Manager{
		cfg:       cfg,
		client:    client,
		creds:     creds,
		bridge:    bridge,
		handler:   handler,
		logger:    logger,
		metrics:   metrics,
		restartCh: make(chan struct{}, 1),
		state:     StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the session is open.
func (m *Manager) Connected() bool {
	return m.State() == StateOpen
}

// Restart requests a logout, transport reset, and fresh pairing flow. The
// request is handled on the dispatch loop; a request already pending is
// merged.
func (m *Manager) Restart() {
	select {
	case m.restartCh <- struct{}{}:
	default:
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.metrics.SetConnected(s == StateOpen)
}

// Run loads persisted credentials, connects, and dispatches protocol events
// until ctx is cancelled. It is the only goroutine that mutates lifecycle
// state.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	m.mu.Unlock()

	blob, err := m.creds.Load()
	if err != nil {
		m.logger.Warn(logging.CategoryAuth, "creds_load_failed", "starting without persisted credentials",
			map[string]any{"error": err.Error()})
	}
	m.credentials = blob

	m.start(ctx)

	events := m.client.Events()
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return ctx.Err()

		case evt, ok := <-events:
			if !ok {
				// Client shut down for good; nothing further can arrive.
				m.setState(StateDisconnected)
				return nil
			}
			m.handleEvent(ctx, evt)

		case <-timerC(m.qrTimer):
			m.qrTimer = nil
			m.handleQRExpiry(ctx)

		case <-timerC(m.reconnectTimer):
			m.reconnectTimer = nil
			m.handleReconnectDue(ctx)

		case <-m.restartCh:
			m.handleRestart(ctx)
		}
	}
}

// timerC returns the timer channel, or nil (blocks forever) when unarmed.
func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// start transitions to CONNECTING and opens a transport session. Connect
// failures are treated like a transient close so the backoff path applies.
func (m *Manager) start(ctx context.Context) {
	m.setState(StateConnecting)
	m.logger.Info(logging.CategorySession, "connecting", "opening transport session", nil)

	if err := m.client.Connect(ctx, m.credentials); err != nil {
		m.logger.Error(logging.CategorySession, "connect_failed", "transport connect failed",
			map[string]any{"error": err.Error()})
		m.scheduleReconnect(ctx)
	}
}

func (m *Manager) handleEvent(ctx context.Context, evt protocol.Event) {
	switch evt.Kind {
	case protocol.EventConnecting:
		// Transport-level progress; CONNECTING was already entered by start.

	case protocol.EventQR:
		m.handleQR(ctx, evt.PairingCode)

	case protocol.EventOpen:
		m.handleOpen(ctx)

	case protocol.EventClose:
		m.handleClose(ctx, evt.Reason)

	case protocol.EventCredsChanged:
		m.persistCredentials(evt.Credentials)

	case protocol.EventMessage:
		m.handleMessage(ctx, evt.Message)
	}
}

func (m *Manager) handleQR(ctx context.Context, code string) {
	// A superseding QR cancels the pending expiry before arming a new one,
	// so one pairing round never produces two regenerate calls.
	m.stopQRTimer()
	m.setState(StateAwaitingPair)
	m.attempts = 0
	m.metrics.IncQR()

	image, err := qr.DataURL(code)
	if err != nil {
		m.logger.Error(logging.CategorySession, "qr_render_failed", "failed to render pairing code",
			map[string]any{"error": err.Error()})
		return
	}

	m.bridge.PublishQR(ctx, image)
	m.bridge.PublishStatus(ctx, "Scan the QR code to log in")
	m.qrTimer = time.NewTimer(m.cfg.QRExpiry)
	m.logger.Info(logging.CategorySession, "qr_issued", "pairing code published", nil)
}

func (m *Manager) handleOpen(ctx context.Context) {
	m.stopQRTimer()
	m.stopReconnectTimer()
	m.setState(StateOpen)
	m.attempts = 0

	if len(m.credentials) > 0 {
		m.persistCredentials(m.credentials)
	}

	m.bridge.PublishConnected(ctx, true)
	m.bridge.PublishStatus(ctx, "Chat session connected successfully!")
	m.logger.Info(logging.CategorySession, "open", "session open", nil)
}

func (m *Manager) handleClose(ctx context.Context, reason protocol.CloseReason) {
	m.stopQRTimer()
	m.setState(StateClosing)
	m.bridge.PublishConnected(ctx, false)

	if reason == protocol.CloseLoggedOut {
		m.setState(StateFailed)
		m.stopReconnectTimer()
		m.bridge.PublishStatus(ctx, "Session logged out. Please re-pair by scanning a new QR code.")
		m.logger.Warn(logging.CategorySession, "logged_out", "session invalidated by remote", nil)
		return
	}

	// A close arriving while a reconnect is already scheduled is merged;
	// only one reconnect sequence may be in flight.
	if m.reconnectTimer != nil {
		m.setState(StateReconnecting)
		return
	}

	m.scheduleReconnect(ctx)
}

func (m *Manager) scheduleReconnect(ctx context.Context) {
	if m.reconnectTimer != nil {
		return
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.setState(StateFailed)
		m.bridge.PublishStatus(ctx, "Connection lost and reconnection attempts exhausted. Restart the gateway to try again.")
		m.logger.Error(logging.CategorySession, "reconnect_exhausted", "giving up after max attempts",
			map[string]any{"attempts": m.attempts})
		return
	}

	m.attempts++
	m.metrics.IncReconnect()
	delay := m.cfg.ReconnectBaseDelay * time.Duration(m.attempts)
	m.setState(StateReconnecting)
	m.reconnectTimer = time.NewTimer(delay)
	m.bridge.PublishStatus(ctx, fmt.Sprintf("Disconnected. Reconnecting (attempt %d/%d)...", m.attempts, m.cfg.MaxReconnectAttempts))
	m.logger.Info(logging.CategorySession, "reconnect_scheduled", "reconnect scheduled",
		map[string]any{"attempt": m.attempts, "delay": delay.String()})
}

func (m *Manager) handleReconnectDue(ctx context.Context) {
	if m.State() != StateReconnecting {
		return
	}
	m.start(ctx)
}

func (m *Manager) handleQRExpiry(ctx context.Context) {
	if m.State() != StateAwaitingPair {
		return
	}
	m.bridge.PublishStatus(ctx, "QR code expired. Generating a new one...")
	m.logger.Info(logging.CategorySession, "qr_expired", "pairing code expired, restarting session init", nil)
	m.start(ctx)
}

func (m *Manager) handleRestart(ctx context.Context) {
	m.logger.Info(logging.CategorySession, "restart_requested", "forcing logout and fresh pairing", nil)
	m.stopQRTimer()
	m.stopReconnectTimer()

	logoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := m.client.Logout(logoutCtx); err != nil {
		m.logger.Warn(logging.CategorySession, "logout_failed", "logout before restart failed",
			map[string]any{"error": err.Error()})
	}
	cancel()

	m.credentials = nil
	if err := m.creds.Save(nil); err != nil {
		m.logger.Warn(logging.CategoryAuth, "creds_clear_failed", "failed to clear persisted credentials",
			map[string]any{"error": err.Error()})
	}
	m.metrics.SetPersistDegraded(m.creds.Degraded())

	m.attempts = 0
	m.bridge.PublishConnected(ctx, false)
	m.bridge.PublishStatus(ctx, "Restarting session...")
	m.start(ctx)
}

func (m *Manager) handleMessage(ctx context.Context, msg *protocol.InboundMessage) {
	if msg == nil {
		return
	}
	m.metrics.IncMessage()

	reply := m.safeHandle(ctx, msg)
	if reply == "" {
		return
	}

	if err := m.client.SendText(ctx, msg.ChatID, reply); err != nil {
		m.logger.Error(logging.CategoryNetwork, "send_failed", "failed to send reply",
			map[string]any{"chat_id": msg.ChatID, "error": err.Error()})
		return
	}
	m.bridge.PublishReply(ctx, msg.ChatID, reply)
}

// safeHandle shields the dispatch loop from a panicking handler; the router
// already isolates command failures, this is the last line.
func (m *Manager) safeHandle(ctx context.Context, msg *protocol.InboundMessage) (reply string) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error(logging.CategoryCommand, "handler_panic", "message handler panicked",
				map[string]any{"panic": fmt.Sprint(rec)})
			reply = ""
		}
	}()
	if m.handler == nil {
		return ""
	}
	return m.handler(ctx, msg)
}

// persistCredentials stores rotated key material immediately. Failures are
// non-fatal: the in-memory blob stays valid for this process lifetime and
// health reports degraded persistence.
func (m *Manager) persistCredentials(blob []byte) {
	if len(blob) > 0 {
		m.credentials = blob
	}
	if len(m.credentials) == 0 {
		return
	}
	if err := m.creds.Save(m.credentials); err != nil {
		m.logger.Error(logging.CategoryAuth, "creds_save_failed", "failed to persist credentials",
			map[string]any{"error": err.Error()})
	}
	m.metrics.SetPersistDegraded(m.creds.Degraded())
}

func (m *Manager) stopQRTimer() {
	if m.qrTimer != nil {
		m.qrTimer.Stop()
		m.qrTimer = nil
	}
}

func (m *Manager) stopReconnectTimer() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// shutdown abandons any pending backoff and closes the transport with a
// bounded wait.
func (m *Manager) shutdown() {
	m.stopQRTimer()
	m.stopReconnectTimer()

	done := make(chan struct{})
	go func() {
		_ = m.client.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		m.logger.Warn(logging.CategorySession, "close_timeout", "transport close timed out", nil)
	}

	m.setState(StateDisconnected)
}
