// Package protocoltest provides a scriptable protocol.Client for lifecycle
// and router tests.
package protocoltest

import (
	"context"
	"sync"

	"github.com/officialznkxproject-sys/tohang/pkg/protocol"
)

// SentText records one outbound SendText call.
type SentText struct {
	ChatID string
	Text   string
}

// FakeClient implements protocol.Client. Tests push events with Emit and
// inspect outbound calls afterwards.
type FakeClient struct {
	mu           sync.Mutex
	events       chan protocol.Event
	connects     [][]byte
	sent         []SentText
	logouts      int
	closed       bool
	connectErr   error
	sendTextErr  error
	onConnect    func(credentials []byte)
	eventsClosed bool
}

var _ protocol.Client = (*FakeClient)(nil)

// NewFakeClient returns a fake with a generously buffered event channel.
func NewFakeClient() *FakeClient {
	return &FakeClient{events: make(chan protocol.Event, 128)}
}

// FailConnect makes subsequent Connect calls return err.
func (f *FakeClient) FailConnect(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

// FailSendText makes subsequent SendText calls return err.
func (f *FakeClient) FailSendText(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendTextErr = err
}

// OnConnect registers a hook invoked with the credentials each Connect gets.
func (f *FakeClient) OnConnect(fn func(credentials []byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnect = fn
}

// Emit delivers an event to the consumer.
func (f *FakeClient) Emit(evt protocol.Event) {
	f.events <- evt
}

// CloseEvents closes the event channel, as a real client does on shutdown.
func (f *FakeClient) CloseEvents() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.eventsClosed {
		f.eventsClosed = true
		close(f.events)
	}
}

func (f *FakeClient) Connect(ctx context.Context, credentials []byte) error {
	f.mu.Lock()
	err := f.connectErr
	hook := f.onConnect
	if err == nil {
		blob := append([]byte(nil), credentials...)
		f.connects = append(f.connects, blob)
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(credentials)
	}
	return nil
}

func (f *FakeClient) Events() <-chan protocol.Event {
	return f.events
}

func (f *FakeClient) SendText(ctx context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendTextErr != nil {
		return f.sendTextErr
	}
	f.sent = append(f.sent, SentText{ChatID: chatID, Text: text})
	return nil
}

func (f *FakeClient) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return nil
}

func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// ConnectCount reports how many successful Connect calls were made.
func (f *FakeClient) ConnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.connects)
}

// ConnectCredentials returns the credentials passed to the i-th Connect.
func (f *FakeClient) ConnectCredentials(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.connects) {
		return nil
	}
	return f.connects[i]
}

// Sent returns a copy of all outbound texts.
func (f *FakeClient) Sent() []SentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentText(nil), f.sent...)
}

// LogoutCount reports how many Logout calls were made.
func (f *FakeClient) LogoutCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logouts
}

// Closed reports whether Close was called.
func (f *FakeClient) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
