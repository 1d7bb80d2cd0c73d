package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	domain "github.com/storelane/cartsync/internal/domain/cart"
)

// Worker consumes cart-changed events and runs full reconciliation passes.
//
// Events for the same cart arriving within the debounce window coalesce into
// one pass. The window also gives an in-flight synchronous mutation time to
// commit and release its row lock before the pass reads the cart; this
// reduces, but does not eliminate, the chance of reading a half-updated cart.
type Worker struct {
	events     <-chan string
	guard      *Guard
	reconciler *domain.Reconciler
	debounce   time.Duration
	lg         *zap.Logger

	mu      sync.Mutex
	pending map[string]struct{}

	passes  metric.Int64Counter
	skipped metric.Int64Counter
}

// NewWorker creates a Worker. mp may be nil; a noop meter is used.
func NewWorker(
	trigger *Trigger,
	guard *Guard,
	reconciler *domain.Reconciler,
	debounce time.Duration,
	lg *zap.Logger,
	mp metric.MeterProvider,
) *Worker {
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}

	meter := mp.Meter("cartsync/reconcile")
	passes, _ := meter.Int64Counter("reconcile.passes")
	skipped, _ := meter.Int64Counter("reconcile.skipped")

	return &Worker{
		events:     trigger.Events(),
		guard:      guard,
		reconciler: reconciler,
		debounce:   debounce,
		lg:         lg.Named("worker"),
		pending:    make(map[string]struct{}),
		passes:     passes,
		skipped:    skipped,
	}
}

// Run consumes events until ctx is cancelled. It is intended to be started
// once as a background goroutine.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cartID := <-w.events:
			w.schedule(ctx, cartID)
		}
	}
}

// schedule coalesces the event: if a pass is already pending for the cart
// the event is absorbed, otherwise a debounced pass is scheduled.
func (w *Worker) schedule(ctx context.Context, cartID string) {
	w.mu.Lock()
	if _, ok := w.pending[cartID]; ok {
		w.mu.Unlock()
		w.skipped.Add(ctx, 1,
			metric.WithAttributes(attribute.String("reason", "coalesced")))
		return
	}
	w.pending[cartID] = struct{}{}
	w.mu.Unlock()

	go func() {
		timer := time.NewTimer(w.debounce)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		w.mu.Lock()
		delete(w.pending, cartID)
		w.mu.Unlock()

		w.runPass(ctx, cartID)
	}()
}

// runPass executes one guarded reconciliation pass. Errors are never
// surfaced to any user from the async path; they are logged and the next
// mutation event retries naturally.
func (w *Worker) runPass(ctx context.Context, cartID string) {
	if !w.guard.TryAcquire(cartID) {
		w.lg.Debug("reconciliation already in flight",
			zap.String("cart_id", cartID))
		w.skipped.Add(ctx, 1,
			metric.WithAttributes(attribute.String("reason", "in_flight")))
		return
	}
	defer w.guard.Release(cartID)

	w.passes.Add(ctx, 1)

	diff, err := w.reconciler.Reconcile(ctx, cartID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.lg.Info("cart deleted before reconciliation",
				zap.String("cart_id", cartID))
			return
		}
		w.lg.Error("reconciliation failed",
			zap.String("cart_id", cartID), zap.Error(err))
		return
	}

	if diff.Empty() {
		return
	}

	if err := w.reconciler.Apply(ctx, diff); err != nil {
		w.lg.Error("applying reconciliation diff failed",
			zap.String("cart_id", cartID), zap.Error(err))
		return
	}

	w.lg.Info("cart reconciled",
		zap.String("cart_id", cartID),
		zap.Int("removals", len(diff.Removals)),
		zap.Int("updates", len(diff.Updates)))
}
