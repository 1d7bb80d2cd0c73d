package reconcile

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storelane/cartsync/internal/domain/cart"
	"github.com/storelane/cartsync/internal/domain/catalog"
	"github.com/storelane/cartsync/internal/domain/loyalty"
	"github.com/storelane/cartsync/internal/domain/pricing"
	"github.com/storelane/cartsync/internal/domain/pwp"
)

// --- Mock implementations ---

// countingCartRepo serves a fixed, already-consistent cart and counts reads.
// One Get per reconciliation pass, so the counter measures passes run.
type countingCartRepo struct {
	gets   atomic.Int64
	applys atomic.Int64
	carts  map[string]*cart.Cart
}

func (m *countingCartRepo) Get(_ context.Context, id string) (*cart.Cart, error) {
	m.gets.Add(1)
	c, ok := m.carts[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	cp := *c
	cp.Items = append([]cart.Item(nil), c.Items...)
	return &cp, nil
}

func (m *countingCartRepo) UpsertItem(_ context.Context, _ string, _ cart.Item) error {
	return nil
}

func (m *countingCartRepo) DeleteItem(_ context.Context, _, _ string) error {
	return nil
}

func (m *countingCartRepo) ApplyDiff(_ context.Context, _ string, _ []string, _ []cart.ItemUpdate) error {
	m.applys.Add(1)
	return nil
}

type staticCatalog struct {
	variants map[string]*catalog.Variant
}

func (m *staticCatalog) GetVariant(_ context.Context, id string) (*catalog.Variant, error) {
	v, ok := m.variants[id]
	if !ok {
		return nil, catalog.ErrVariantNotFound
	}
	return v, nil
}

func (m *staticCatalog) GetVariants(_ context.Context, _ []string) ([]catalog.Variant, error) {
	return nil, nil
}

func (m *staticCatalog) GetTierTable(_ context.Context, variantID string) (*catalog.TierTable, error) {
	return &catalog.TierTable{VariantID: variantID}, nil
}

type emptyRules struct{}

func (emptyRules) GetRule(_ context.Context, _ string) (*pwp.Rule, error) {
	return nil, pwp.ErrRuleNotFound
}

type emptyLoyalty struct{}

func (emptyLoyalty) Ladder(_ context.Context) ([]loyalty.Tier, error) {
	return nil, nil
}

func (emptyLoyalty) ActivityFor(_ context.Context, _ string) (loyalty.Activity, error) {
	return loyalty.Activity{}, nil
}

// --- Helpers ---

func newTestWorker(repo *countingCartRepo, debounce time.Duration) (*Worker, *Trigger) {
	lg := zap.NewNop()
	trigger := NewTrigger(64, lg)
	reconciler := cart.NewReconciler(
		repo,
		&staticCatalog{variants: map[string]*catalog.Variant{
			"v1": {ID: "v1", ProductID: "p1", Currency: "USD", BasePrice: 1000},
		}},
		pwp.NewChecker(emptyRules{}),
		emptyLoyalty{},
		lg,
		nil,
	)
	return NewWorker(trigger, NewGuard(), reconciler, debounce, lg, nil), trigger
}

func consistentCart(id string) *cart.Cart {
	return &cart.Cart{
		ID:       id,
		Currency: "USD",
		Items: []cart.Item{
			{ID: "i1", VariantID: "v1", ProductID: "p1", Quantity: 1, UnitPrice: 1000, Annotation: pricing.None{}},
		},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, "condition not met before deadline")
}

// --- Tests ---

func TestWorker_CoalescesBurstIntoOnePass(t *testing.T) {
	repo := &countingCartRepo{carts: map[string]*cart.Cart{"c1": consistentCart("c1")}}
	w, trigger := newTestWorker(repo, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for i := 0; i < 10; i++ {
		trigger.CartChanged("c1")
	}

	waitFor(t, func() bool { return repo.gets.Load() >= 1 })
	// Give a second pass time to show up if coalescing were broken.
	time.Sleep(100 * time.Millisecond)

	assert.EqualValues(t, 1, repo.gets.Load())
	assert.EqualValues(t, 0, repo.applys.Load(), "consistent cart needs no diff applied")
}

func TestWorker_DistinctCartsRunIndependently(t *testing.T) {
	repo := &countingCartRepo{carts: map[string]*cart.Cart{
		"c1": consistentCart("c1"),
		"c2": consistentCart("c2"),
	}}
	w, trigger := newTestWorker(repo, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	trigger.CartChanged("c1")
	trigger.CartChanged("c2")

	waitFor(t, func() bool { return repo.gets.Load() == 2 })
}

func TestWorker_EventAfterPassRunsAgain(t *testing.T) {
	repo := &countingCartRepo{carts: map[string]*cart.Cart{"c1": consistentCart("c1")}}
	w, trigger := newTestWorker(repo, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	trigger.CartChanged("c1")
	waitFor(t, func() bool { return repo.gets.Load() == 1 })

	trigger.CartChanged("c1")
	waitFor(t, func() bool { return repo.gets.Load() == 2 })
}

func TestWorker_DeletedCartIsQuietlySkipped(t *testing.T) {
	repo := &countingCartRepo{carts: map[string]*cart.Cart{}}
	w, trigger := newTestWorker(repo, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	trigger.CartChanged("gone")

	waitFor(t, func() bool { return repo.gets.Load() == 1 })
	assert.EqualValues(t, 0, repo.applys.Load())
}

func TestTrigger_PublishNeverBlocks(t *testing.T) {
	trigger := NewTrigger(1, zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			trigger.CartChanged("c1")
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full buffer")
	}

	// Exactly the buffered event survives.
	assert.Len(t, trigger.Events(), 1)
}
