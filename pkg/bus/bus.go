// Package bus provides the event-bridge transport between the session
// lifecycle and external observers (the pairing web UI, monitoring). It is a
// small publish/subscribe abstraction with an in-memory implementation for
// in-process fanout and tests, and a NATS implementation for observers in
// other processes.
package bus

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned when operating on a closed bus or subscription.
	ErrClosed = errors.New("bus or subscription closed")
)

// Subjects published by the gateway.
const (
	// SubjectQR carries a JSON payload with the rendered pairing image.
	SubjectQR = "tohang.session.qr"

	// SubjectStatus carries a human-readable status string.
	SubjectStatus = "tohang.session.status"

	// SubjectConnected carries a boolean connected flag.
	SubjectConnected = "tohang.session.connected"

	// SubjectReply carries outbound command replies, for observability.
	SubjectReply = "tohang.command.reply"

	// SubjectSessionAll matches every session subject.
	SubjectSessionAll = "tohang.session.*"
)

// EventBus is the fanout interface. Implementations must be safe for
// concurrent use.
type EventBus interface {
	// Publish sends a message to all subscribers of the given subject.
	// Returns immediately; does not wait for delivery.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The handler runs on the subscription's own goroutine, one message at a
	// time. Supports "*" (one token) and ">" (rest) wildcards.
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(msg *Message)

// Message is a published event.
type Message struct {
	Subject string
	Data    []byte
}

// Subscription represents an active subscription that can be cancelled.
type Subscription interface {
	// Unsubscribe stops receiving messages and cleans up resources.
	Unsubscribe() error

	// Subject returns the subject pattern this subscription is for.
	Subject() string
}
