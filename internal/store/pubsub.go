package store

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Message is one pubsub delivery.
type Message struct {
	Channel string
	Payload string
}

// Subscription is a stream of messages from one or more channels, uniform
// across the Redis and in-memory backends.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan Message
	once   sync.Once
}

func newRedisSubscription(ps *redis.PubSub) *redisSubscription {
	s := &redisSubscription{pubsub: ps, out: make(chan Message, 64)}
	go func() {
		defer close(s.out)
		for msg := range ps.Channel() {
			s.out <- Message{Channel: msg.Channel, Payload: msg.Payload}
		}
	}()
	return s
}

func (s *redisSubscription) Messages() <-chan Message { return s.out }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() { err = s.pubsub.Close() })
	return err
}

type memorySubscription struct {
	hub      *pubsubHub
	channels map[string]bool
	out      chan Message
	once     sync.Once
}

func (s *memorySubscription) Messages() <-chan Message { return s.out }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
		close(s.out)
	})
	return nil
}

// pubsubHub fans messages out to in-process subscribers when Redis is not
// available. Slow subscribers drop messages rather than block the publisher.
type pubsubHub struct {
	mu   sync.RWMutex
	subs map[*memorySubscription]struct{}
}

func newPubSubHub() *pubsubHub {
	return &pubsubHub{subs: make(map[*memorySubscription]struct{})}
}

func (h *pubsubHub) subscribe(ctx context.Context, channels ...string) Subscription {
	sub := &memorySubscription{
		hub:      h,
		channels: make(map[string]bool, len(channels)),
		out:      make(chan Message, 64),
	}
	for _, ch := range channels {
		sub.channels[ch] = true
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub
}

func (h *pubsubHub) unsubscribe(sub *memorySubscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

func (h *pubsubHub) publish(channel, payload string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if !sub.channels[channel] {
			continue
		}
		select {
		case sub.out <- Message{Channel: channel, Payload: payload}:
		default:
		}
	}
}
