// Package reconcile drives the asynchronous reconciliation path: an
// in-process cart-changed event bus, a debounce stage that coalesces bursts
// of events per cart, and a guard that keeps at most one pass in flight per
// cart within the process.
package reconcile

import "sync"

// Guard is a per-cart test-and-set lock. A cart id is either idle or
// reconciling; a concurrent attempt observing reconciling is a no-op for the
// caller, because the in-flight pass will see the same final cart state.
//
// Entries never persist across process restarts: a crash mid-pass just means
// the next triggering event re-runs it.
type Guard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{inflight: make(map[string]struct{})}
}

// TryAcquire transitions the cart to reconciling. It returns false when a
// pass is already in flight for the cart.
func (g *Guard) TryAcquire(cartID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.inflight[cartID]; held {
		return false
	}
	g.inflight[cartID] = struct{}{}
	return true
}

// Release transitions the cart back to idle. Callers must defer it
// immediately after a successful TryAcquire so no exit path, panic included,
// can leave a cart locked out of reconciliation for the life of the process.
func (g *Guard) Release(cartID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, cartID)
}
