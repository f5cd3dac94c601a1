// Package api provides the HTTP control plane: the pairing web UI, status
// and health endpoints, session restart, Prometheus metrics, and a websocket
// feed of session events.
package api

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/officialznkxproject-sys/tohang/pkg/bus"
	"github.com/officialznkxproject-sys/tohang/pkg/logging"
	"github.com/officialznkxproject-sys/tohang/pkg/telemetry"
)

//go:embed web
var webFS embed.FS

// SessionController is the slice of the lifecycle manager the control plane
// needs.
type SessionController interface {
	// Connected reports whether the chat session is open.
	Connected() bool

	// Restart forces a logout and a fresh pairing flow.
	Restart()
}

// StorageChecker reports database connectivity for health checks.
type StorageChecker interface {
	Ping() error
}

// CredentialHealth reports whether credential persistence is degraded.
type CredentialHealth interface {
	Degraded() bool
}

// ServerConfig configures the API server.
type ServerConfig struct {
	// Address to listen on (default: :3000)
	Address string

	// Version string reported by /health.
	Version string

	Session     SessionController
	Storage     StorageChecker
	Credentials CredentialHealth
	EventBus    bus.EventBus
	Metrics     *telemetry.Metrics
	Logger      *logging.Logger
}

// Server is the gateway control plane.
type Server struct {
	cfg        ServerConfig
	httpServer *http.Server
	logger     *logging.Logger

	hub *wsHub

	mu         sync.RWMutex
	lastStatus string

	subs []bus.Subscription
}

// NewServer creates the API server and its routes.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Address == "" {
		cfg.Address = ":3000"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	s := &Server{
		cfg:        cfg,
		logger:     cfg.Logger,
		hub:        newWSHub(cfg.Logger),
		lastStatus: "Starting up...",
	}

	r := chi.NewRouter()
	r.Use(s.withRequestID)
	r.Use(s.withLogging)
	r.Use(withCORS)

	web, err := fs.Sub(webFS, "web")
	if err != nil {
		// The embed directive guarantees the subtree exists.
		panic(err)
	}
	r.Handle("/", http.FileServer(http.FS(web)))

	r.Get("/api/status", s.handleStatus)
	r.Post("/api/restart", s.handleRestart)
	r.Get("/api/restart", s.handleRestart)
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.hub.handleUpgrade)

	if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start subscribes to the event bus and serves HTTP until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if err := s.subscribe(ctx); err != nil {
		return fmt.Errorf("subscribe to event bus: %w", err)
	}

	s.logger.Info(logging.CategoryHTTP, "server_started", "control plane listening",
		map[string]any{"address": s.cfg.Address})

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains the HTTP server and drops websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.hub.closeAll()
	return s.httpServer.Shutdown(ctx)
}

// subscribe wires bus subjects into the websocket hub. Session events are
// also cached so late-joining pages see the current state immediately.
func (s *Server) subscribe(ctx context.Context) error {
	if s.cfg.EventBus == nil {
		return nil
	}

	sessionSub, err := s.cfg.EventBus.Subscribe(ctx, bus.SubjectSessionAll, func(msg *bus.Message) {
		s.observe(msg)
		s.hub.broadcast(msg.Subject, msg.Data)
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sessionSub)

	replySub, err := s.cfg.EventBus.Subscribe(ctx, bus.SubjectReply, func(msg *bus.Message) {
		s.hub.broadcast(msg.Subject, msg.Data)
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, replySub)

	return nil
}

// observe caches the latest session state for /api/status and replay.
func (s *Server) observe(msg *bus.Message) {
	switch msg.Subject {
	case bus.SubjectStatus:
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err == nil && payload.Message != "" {
			s.mu.Lock()
			s.lastStatus = payload.Message
			s.mu.Unlock()
		}
	case bus.SubjectQR:
		s.hub.cacheReplay(msg.Subject, msg.Data)
	case bus.SubjectConnected:
		// A connected flag supersedes any pending QR image.
		s.hub.dropReplay(bus.SubjectQR)
		s.hub.cacheReplay(msg.Subject, msg.Data)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	message := s.lastStatus
	s.mu.RUnlock()

	status := "disconnected"
	if s.cfg.Session != nil && s.cfg.Session.Connected() {
		status = "connected"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"message": message,
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Session == nil {
		writeError(w, http.StatusServiceUnavailable, "session manager not configured")
		return
	}

	s.logger.Info(logging.CategoryHTTP, "restart_requested", "session restart requested over HTTP", nil)
	s.cfg.Session.Restart()

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Session restart initiated. Watch the pairing page for a new QR code.",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	session := "disconnected"
	if s.cfg.Session != nil && s.cfg.Session.Connected() {
		session = "connected"
	}
	checks["session"] = session

	if s.cfg.Storage != nil {
		if err := s.cfg.Storage.Ping(); err != nil {
			checks["storage"] = err.Error()
			healthy = false
		} else {
			checks["storage"] = "ok"
		}
	}

	if s.cfg.Credentials != nil {
		if s.cfg.Credentials.Degraded() {
			checks["credentials"] = "persist degraded"
			healthy = false
		} else {
			checks["credentials"] = "ok"
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"session":   session,
		"version":   s.cfg.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// Middleware

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(logging.CategoryHTTP, "request", "",
			map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote":      r.RemoteAddr,
				"duration_ms": time.Since(start).Milliseconds(),
			})
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Helpers

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
