package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetAndLookup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(100)

	ok, err := s.Has(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "evt-1", "cart-42", time.Hour))

	ok, err = s.Has(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)

	v, ok, err := s.Get(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cart-42", v)
}

func TestMemoryStore_DuplicateWithinTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(100)

	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "evt-1", "cart-42", DefaultTTL))

	// Redelivered just before the 72h window closes: still a duplicate.
	now = base.Add(DefaultTTL - time.Minute)
	ok, err := s.Has(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Redelivered after the window: treated as new.
	now = base.Add(DefaultTTL + time.Minute)
	ok, err = s.Has(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_ZeroTTLUsesDefault(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(100)

	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "evt-1", "", 0))

	now = base.Add(71 * time.Hour)
	ok, err := s.Has(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(100)

	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	require.NoError(t, s.Set(ctx, "old", "", time.Hour))
	require.NoError(t, s.Set(ctx, "fresh", "", 10*time.Hour))

	s.sweep(base.Add(2 * time.Hour))

	s.mu.Lock()
	_, oldKept := s.entries["old"]
	_, freshKept := s.entries["fresh"]
	s.mu.Unlock()

	assert.False(t, oldKept)
	assert.True(t, freshKept)
}

func TestMemoryStore_OverwriteExtendsExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(100)

	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "evt-1", "first", time.Hour))

	now = base.Add(30 * time.Minute)
	require.NoError(t, s.Set(ctx, "evt-1", "second", time.Hour))

	now = base.Add(80 * time.Minute)
	v, ok, err := s.Get(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", v)
}
