package session

import (
	"context"
	"encoding/json"

	"github.com/officialznkxproject-sys/tohang/pkg/bus"
	"github.com/officialznkxproject-sys/tohang/pkg/logging"
)

// QRPayload is published on bus.SubjectQR.
type QRPayload struct {
	// Image is a PNG data URL of the pairing code.
	Image string `json:"image"`
}

// StatusPayload is published on bus.SubjectStatus.
type StatusPayload struct {
	Message string `json:"message"`
}

// ConnectedPayload is published on bus.SubjectConnected.
type ConnectedPayload struct {
	Connected bool `json:"connected"`
}

// ReplyPayload is published on bus.SubjectReply.
type ReplyPayload struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Bridge pushes lifecycle events to external observers over the event bus.
// Publishing is best-effort; a bus failure is logged and dropped.
type Bridge struct {
	bus    bus.EventBus
	logger *logging.Logger
}

// NewBridge creates a bridge over the given bus.
func NewBridge(b bus.EventBus, logger *logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Bridge{bus: b, logger: logger}
}

// PublishQR pushes a rendered pairing image.
func (b *Bridge) PublishQR(ctx context.Context, image string) {
	b.publish(ctx, bus.SubjectQR, QRPayload{Image: image})
}

// PublishStatus pushes a human-readable status line.
func (b *Bridge) PublishStatus(ctx context.Context, message string) {
	b.publish(ctx, bus.SubjectStatus, StatusPayload{Message: message})
}

// PublishConnected pushes the connected flag.
func (b *Bridge) PublishConnected(ctx context.Context, connected bool) {
	b.publish(ctx, bus.SubjectConnected, ConnectedPayload{Connected: connected})
}

// PublishReply mirrors an outbound command reply for observers.
func (b *Bridge) PublishReply(ctx context.Context, chatID, text string) {
	b.publish(ctx, bus.SubjectReply, ReplyPayload{ChatID: chatID, Text: text})
}

func (b *Bridge) publish(ctx context.Context, subject string, payload any) {
	if b.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := b.bus.Publish(ctx, subject, data); err != nil {
		b.logger.Warn(logging.CategoryNetwork, "bridge_publish_failed", "failed to publish bridge event",
			map[string]any{"subject": subject, "error": err.Error()})
	}
}
