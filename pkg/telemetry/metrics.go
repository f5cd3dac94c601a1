// Package telemetry exposes gateway metrics for Prometheus scraping.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the gateway records into.
type Metrics struct {
	registry *prometheus.Registry

	Connected         prometheus.Gauge
	PersistDegraded   prometheus.Gauge
	ReconnectAttempts prometheus.Counter
	QRIssued          prometheus.Counter
	MessagesReceived  prometheus.Counter
	CommandsTotal     *prometheus.CounterVec
	CommandDuration   prometheus.Histogram
}

// NewMetrics creates and registers the gateway collectors on a private
// registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tohang_session_connected",
			Help: "1 when the chat session is open, 0 otherwise.",
		}),
		PersistDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tohang_credentials_persist_degraded",
			Help: "1 when the last credential save failed.",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tohang_session_reconnect_attempts_total",
			Help: "Reconnect attempts scheduled after transient closes.",
		}),
		QRIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tohang_session_qr_issued_total",
			Help: "Pairing codes issued to the web UI.",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tohang_messages_received_total",
			Help: "Inbound text messages handed to the router.",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tohang_commands_total",
			Help: "Dispatched commands by outcome.",
		}, []string{"status"}),
		CommandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tohang_command_duration_seconds",
			Help:    "Command handler execution time.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.Connected,
		m.PersistDegraded,
		m.ReconnectAttempts,
		m.QRIssued,
		m.MessagesReceived,
		m.CommandsTotal,
		m.CommandDuration,
	)

	return m
}

// Registry returns the prometheus registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Command outcome labels.
const (
	CommandOK          = "ok"
	CommandNotFound    = "not_found"
	CommandDenied      = "denied"
	CommandFailed      = "failed"
	CommandIgnored     = "ignored"
	CommandRateLimited = "rate_limited"
)

// ObserveCommand records one command dispatch. Nil receivers are allowed so
// callers do not have to branch on metrics being configured.
func (m *Metrics) ObserveCommand(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(status).Inc()
	m.CommandDuration.Observe(duration.Seconds())
}

// SetConnected records the session connected flag.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}

// SetPersistDegraded records the credential persistence health flag.
func (m *Metrics) SetPersistDegraded(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.PersistDegraded.Set(1)
	} else {
		m.PersistDegraded.Set(0)
	}
}

// IncReconnect counts a scheduled reconnect attempt.
func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}

// IncQR counts an issued pairing code.
func (m *Metrics) IncQR() {
	if m == nil {
		return
	}
	m.QRIssued.Inc()
}

// IncMessage counts an inbound message.
func (m *Metrics) IncMessage() {
	if m == nil {
		return
	}
	m.MessagesReceived.Inc()
}
