package reconcile

import (
	"go.uber.org/zap"
)

// Trigger is the in-process cart-changed event bus. Publishing never blocks
// the request path: when the buffer is full the event is dropped with a
// warning, which is safe because the next natural mutation re-triggers
// reconciliation.
type Trigger struct {
	ch chan string
	lg *zap.Logger
}

// NewTrigger creates a Trigger with the given buffer size.
func NewTrigger(buffer int, lg *zap.Logger) *Trigger {
	if buffer <= 0 {
		buffer = 256
	}
	return &Trigger{
		ch: make(chan string, buffer),
		lg: lg.Named("trigger"),
	}
}

// CartChanged publishes a cart-changed event. The payload is the cart id.
func (t *Trigger) CartChanged(cartID string) {
	select {
	case t.ch <- cartID:
	default:
		t.lg.Warn("event buffer full, dropping cart-changed event",
			zap.String("cart_id", cartID))
	}
}

// Events exposes the event stream to the worker.
func (t *Trigger) Events() <-chan string {
	return t.ch
}
