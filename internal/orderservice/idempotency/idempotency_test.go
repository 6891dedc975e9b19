package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGetExpire(t *testing.T) {
	c := NewMemoryCache("order-service").(*memoryCache)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	key := c.GenerateKey("create_order", "b1:abc")
	assert.Equal(t, "order-service:create_order:b1:abc", key)

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, c.Set(ctx, key, []byte(`{"id":"o1"}`), DefaultTTL))
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"o1"}`, got)

	now = now.Add(DefaultTTL)
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisCache_KeyFormat(t *testing.T) {
	c := NewRedisCache("localhost:0", "", 0, "order-service")
	defer Close(c)
	assert.Equal(t, "order-service:create_order:k", c.GenerateKey("create_order", "k"))
}

func TestMemoryCache_PingAndCloseAreNoops(t *testing.T) {
	c := NewMemoryCache("svc")
	assert.NoError(t, Ping(context.Background(), c))
	assert.NoError(t, Close(c))
}

func TestMemoryCache_SetNXClaimsOnce(t *testing.T) {
	c := NewMemoryCache("order-service").(*memoryCache)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()
	key := c.GenerateKey("create_order", "b1:emp:k")

	ok, err := c.SetNX(ctx, key, Pending, PendingTTL)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, key, Pending, PendingTTL)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, Pending, got)

	require.NoError(t, c.Delete(ctx, key))
	ok, err = c.SetNX(ctx, key, Pending, PendingTTL)
	require.NoError(t, err)
	assert.True(t, ok, "key is free again after delete")

	now = now.Add(PendingTTL)
	ok, err = c.SetNX(ctx, key, Pending, PendingTTL)
	require.NoError(t, err)
	assert.True(t, ok, "expired claim can be taken over")
}
