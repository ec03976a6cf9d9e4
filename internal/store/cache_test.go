package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	// An unreachable address forces the in-memory fallback.
	cache, err := NewCache("invalid:6379", logger.Sugar(), nil)
	require.NoError(t, err)
	require.True(t, cache.IsInMemoryMode())
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestCacheSetGet(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	value := map[string]string{"side": "buy", "rate": "500"}
	require.NoError(t, cache.Set(ctx, KeyBondRates("buy"), value, time.Minute))

	var got map[string]string
	require.NoError(t, cache.Get(ctx, KeyBondRates("buy"), &got))
	assert.Equal(t, value, got)

	var missing map[string]string
	assert.ErrorIs(t, cache.Get(ctx, KeyBondRates("sell"), &missing), ErrCacheMiss)
}

func TestCacheExpiry(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, KeyMinPurchase, "1000000", 10*time.Millisecond))

	var got string
	require.NoError(t, cache.Get(ctx, KeyMinPurchase, &got))
	assert.Equal(t, "1000000", got)

	time.Sleep(30 * time.Millisecond)
	assert.ErrorIs(t, cache.Get(ctx, KeyMinPurchase, &got), ErrCacheMiss)
}

func TestCacheDelete(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "vb:a", 1, 0))
	require.NoError(t, cache.Set(ctx, "vb:b", 2, 0))

	exists, err := cache.Exists(ctx, "vb:a")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, cache.Delete(ctx, "vb:a", "vb:b"))

	exists, err = cache.Exists(ctx, "vb:a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPubSub(t *testing.T) {
	cache := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := cache.Subscribe(ctx, ChannelVesting)
	defer sub.Close()

	payload := map[string]string{"event": "vesting_tick", "address": "0xabc"}
	require.NoError(t, cache.Publish(ctx, ChannelVesting, payload))

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, ChannelVesting, msg.Channel)
		var got map[string]string
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, payload, got)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for pubsub message")
	}
}

func TestPubSubIgnoresOtherChannels(t *testing.T) {
	cache := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := cache.Subscribe(ctx, ChannelVesting)
	defer sub.Close()

	require.NoError(t, cache.Publish(ctx, "vb:other", "ignored"))

	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
