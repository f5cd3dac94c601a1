package bus

import "context"

// Tee publishes every message to all wrapped buses. Subscriptions are served
// by the first bus, which the gateway uses for the in-process web UI fanout
// while mirroring events to an external NATS observer.
type Tee struct {
	buses []EventBus
}

// NewTee wraps one or more buses. The first bus is the subscription source.
func NewTee(buses ...EventBus) *Tee {
	return &Tee{buses: buses}
}

func (t *Tee) Publish(ctx context.Context, subject string, data []byte) error {
	var firstErr error
	for _, b := range t.buses {
		if err := b.Publish(ctx, subject, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *Tee) Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error) {
	if len(t.buses) == 0 {
		return nil, ErrClosed
	}
	return t.buses[0].Subscribe(ctx, subject, handler)
}

func (t *Tee) Close() error {
	var firstErr error
	for _, b := range t.buses {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
