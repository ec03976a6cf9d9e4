package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vestafi/bonding-backend/internal/metrics"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache keys and pubsub channels.
const (
	KeyMinPurchase  = "vb:minpurchase"
	KeyPoolOverview = "vb:pool"

	ChannelVesting = "vb:vesting"
)

func KeyBondRates(side string) string {
	return "vb:rates:" + side
}

func KeyHolderBonds(address string) string {
	return "vb:bonds:" + address
}

// Cache is a JSON value cache with pubsub, backed by Redis when reachable and
// an in-process store otherwise. The fallback keeps local development working
// without a Redis instance; it is not shared across processes.
type Cache struct {
	client *redis.Client
	mem    *memoryStore
	hub    *pubsubHub

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewCache(addr string, logger *zap.SugaredLogger, m *metrics.Metrics) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if logger != nil {
			logger.Warnw("redis unavailable; using in-memory cache", "addr", addr, "error", err)
		}
		return &Cache{
			mem:     newMemoryStore(),
			hub:     newPubSubHub(),
			logger:  logger,
			metrics: m,
		}, nil
	}

	return &Cache{client: client, logger: logger, metrics: m}, nil
}

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte
	if c.client != nil {
		val, err := c.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				c.recordMiss(ctx, key)
				return ErrCacheMiss
			}
			return fmt.Errorf("cache get %s: %w", key, err)
		}
		data = val
	} else {
		val, ok := c.mem.get(key)
		if !ok {
			c.recordMiss(ctx, key)
			return ErrCacheMiss
		}
		data = val
	}

	c.recordHit(ctx, key)
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}
	if c.client != nil {
		if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
			return fmt.Errorf("cache set %s: %w", key, err)
		}
		return nil
	}
	c.mem.set(key, data, ttl)
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if c.client != nil {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("cache delete: %w", err)
		}
		return nil
	}
	c.mem.del(keys...)
	return nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if c.client != nil {
		count, err := c.client.Exists(ctx, key).Result()
		if err != nil {
			return false, fmt.Errorf("cache exists %s: %w", key, err)
		}
		return count > 0, nil
	}
	_, ok := c.mem.get(key)
	return ok, nil
}

// Publish fans a JSON message out to subscribers of the channel.
func (c *Cache) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("pubsub marshal: %w", err)
	}
	if c.client != nil {
		if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
			return fmt.Errorf("pubsub publish %s: %w", channel, err)
		}
		return nil
	}
	c.hub.publish(channel, string(data))
	return nil
}

// Subscribe opens a subscription on the given channels. The subscription is
// closed when ctx is cancelled or Close is called.
func (c *Cache) Subscribe(ctx context.Context, channels ...string) Subscription {
	if c.client != nil {
		return newRedisSubscription(c.client.Subscribe(ctx, channels...))
	}
	return c.hub.subscribe(ctx, channels...)
}

func (c *Cache) IsInMemoryMode() bool {
	return c.client == nil
}

func (c *Cache) Ping(ctx context.Context) error {
	if c.client != nil {
		return c.client.Ping(ctx).Err()
	}
	return nil
}

func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Cache) recordHit(ctx context.Context, key string) {
	if c.metrics != nil {
		c.metrics.RecordCacheHit(ctx, key)
	}
}

func (c *Cache) recordMiss(ctx context.Context, key string) {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(ctx, key)
	}
}
