// Package protocol defines the event contract between the gateway core and
// the external chat-protocol collaborator. The wire protocol itself (framing,
// encryption, media) lives behind the Client interface; the core only consumes
// typed lifecycle and message events and issues send/logout calls.
package protocol

import (
	"context"
	"errors"
)

// EventKind discriminates the events a Client can emit.
type EventKind string

const (
	// EventQR carries a fresh pairing code that must be scanned to authorize
	// a new session.
	EventQR EventKind = "qr"

	// EventConnecting signals the transport is dialing the remote endpoint.
	EventConnecting EventKind = "connecting"

	// EventOpen signals the session is authenticated and ready.
	EventOpen EventKind = "open"

	// EventClose signals the session ended; Reason distinguishes an explicit
	// logout from a transient drop.
	EventClose EventKind = "close"

	// EventMessage carries an inbound text message.
	EventMessage EventKind = "message"

	// EventCredsChanged signals the client rotated its internal key material
	// and the new blob should be persisted.
	EventCredsChanged EventKind = "creds-changed"
)

// CloseReason classifies why a session closed.
type CloseReason string

const (
	// CloseLoggedOut means the remote side invalidated the session; the
	// credentials are dead and re-pairing is required.
	CloseLoggedOut CloseReason = "logged-out"

	// CloseTransport means the connection dropped for a transient reason and
	// a reconnect with the same credentials may succeed.
	CloseTransport CloseReason = "transport"
)

// Event is the tagged union of everything a Client reports. Kind selects
// which of the payload fields are meaningful.
type Event struct {
	Kind EventKind

	// PairingCode is set for EventQR.
	PairingCode string

	// Reason is set for EventClose.
	Reason CloseReason

	// Message is set for EventMessage.
	Message *InboundMessage

	// Credentials is set for EventCredsChanged.
	Credentials []byte
}

// InboundMessage is a text message received over the session.
type InboundMessage struct {
	// ChatID addresses the conversation replies should go to.
	ChatID string

	// SenderID is the stable network address of the author. In direct chats
	// it equals ChatID.
	SenderID string

	// Text is the UTF-8 message body.
	Text string
}

// ErrNotConnected is returned by Client calls that require an open session.
var ErrNotConnected = errors.New("protocol: session not connected")

// Client is the chat-protocol collaborator. Implementations must deliver
// events on the channel returned by Events in the order they occurred and
// close it when the client shuts down for good.
type Client interface {
	// Connect opens a transport session. Previously persisted credentials are
	// supplied so the session can resume without re-pairing; nil means a
	// fresh pairing flow.
	Connect(ctx context.Context, credentials []byte) error

	// Events returns the stream of session and message events.
	Events() <-chan Event

	// SendText delivers a text reply to the given chat.
	SendText(ctx context.Context, chatID, text string) error

	// Logout invalidates the session server-side. After a successful logout
	// the persisted credentials are useless.
	Logout(ctx context.Context) error

	// Close tears down the transport without logging out.
	Close() error
}
