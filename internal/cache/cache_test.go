package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kernel/internal/cache"
)

func TestSetGet_RoundTrip(t *testing.T) {
	c := cache.New()
	ctx := context.Background()

	c.Set(ctx, "k1", "v1", time.Minute)
	v, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, "v1", v)
}

func TestGet_MissingKey(t *testing.T) {
	c := cache.New()
	_, ok := c.Get(context.Background(), "absent")
	assert.False(t, ok)
}

func TestGet_ExpiredEntry(t *testing.T) {
	c := cache.New()
	ctx := context.Background()

	c.Set(ctx, "k1", "v1", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestSet_NeverExpiresWhenTTLNonPositive(t *testing.T) {
	c := cache.New()
	ctx := context.Background()

	c.Set(ctx, "k1", "v1", 0)
	time.Sleep(5 * time.Millisecond)

	v, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, "v1", v)
}

func TestDelete(t *testing.T) {
	c := cache.New()
	ctx := context.Background()

	c.Set(ctx, "k1", "v1", time.Minute)
	c.Delete(ctx, "k1")

	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	c := cache.New()
	ctx := context.Background()

	c.Set(ctx, "k1", "v1", time.Minute)
	c.Set(ctx, "k2", "v2", time.Minute)
	c.Clear(ctx)

	assert.Equal(t, 0, c.Len())
}

func TestLen_ExcludesExpiredEntries(t *testing.T) {
	c := cache.New()
	ctx := context.Background()

	c.Set(ctx, "live", "v", time.Minute)
	c.Set(ctx, "dead", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, 1, c.Len())
}

func TestSet_OverwritesExistingKey(t *testing.T) {
	c := cache.New()
	ctx := context.Background()

	c.Set(ctx, "k1", "v1", time.Minute)
	c.Set(ctx, "k1", "v2", time.Minute)

	v, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
}
