package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisBus EventBus 的 Redis Pub/Sub 实现
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus 连接 Redis 并创建 RedisBus 实例
func NewRedisBus(redisURL string) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisBus{client: client}, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan Message
	once   sync.Once
	done   chan struct{}
}

func (s *redisSubscription) Messages() <-chan Message {
	return s.ch
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *redisSubscription) pump() {
	defer close(s.ch)
	src := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-src:
			if !ok {
				return
			}
			select {
			case s.ch <- Message{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-s.done:
				return
			}
		}
	}
}

// Publish 实现 EventBus 接口
func (b *RedisBus) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe 实现 EventBus 接口
func (b *RedisBus) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, topics...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return newRedisSubscription(pubsub), nil
}

// PSubscribe 实现 EventBus 接口
func (b *RedisBus) PSubscribe(ctx context.Context, patterns ...string) (Subscription, error) {
	pubsub := b.client.PSubscribe(ctx, patterns...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to psubscribe: %w", err)
	}
	return newRedisSubscription(pubsub), nil
}

func newRedisSubscription(pubsub *redis.PubSub) *redisSubscription {
	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan Message, 256),
		done:   make(chan struct{}),
	}
	go sub.pump()
	return sub
}

// Close 实现 EventBus 接口
func (b *RedisBus) Close() error {
	return b.client.Close()
}
