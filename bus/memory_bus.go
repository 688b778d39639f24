package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"matchcenter/logger"
)

// MemoryBus EventBus 的进程内实现，用于测试和单进程部署
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[*memorySubscription]struct{}
	closed bool
}

// NewMemoryBus 创建 MemoryBus 实例
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs: make(map[*memorySubscription]struct{}),
	}
}

type memorySubscription struct {
	bus      *MemoryBus
	topics   []string
	patterns []string
	ch       chan Message
	once     sync.Once
}

func (s *memorySubscription) Messages() <-chan Message {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
	return nil
}

func (s *memorySubscription) matches(topic string) bool {
	for _, t := range s.topics {
		if t == topic {
			return true
		}
	}
	for _, p := range s.patterns {
		if matchPattern(p, topic) {
			return true
		}
	}
	return false
}

// Publish 实现 EventBus 接口
func (b *MemoryBus) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("bus is closed")
	}

	for sub := range b.subs {
		if !sub.matches(topic) {
			continue
		}
		// 通道满时丢弃，订阅方跟不上不应阻塞发布方
		select {
		case sub.ch <- Message{Topic: topic, Payload: data}:
		default:
			logger.Errorf("[MemoryBus] subscriber channel full, dropping message on topic %s", topic)
		}
	}
	return nil
}

// Subscribe 实现 EventBus 接口
func (b *MemoryBus) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	return b.addSubscription(topics, nil)
}

// PSubscribe 实现 EventBus 接口
func (b *MemoryBus) PSubscribe(ctx context.Context, patterns ...string) (Subscription, error) {
	return b.addSubscription(nil, patterns)
}

func (b *MemoryBus) addSubscription(topics, patterns []string) (*memorySubscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	sub := &memorySubscription{
		bus:      b,
		topics:   topics,
		patterns: patterns,
		ch:       make(chan Message, 256),
	}
	b.subs[sub] = struct{}{}
	return sub, nil
}

// SubscriberCount 返回当前能收到指定 Topic 的订阅数
func (b *MemoryBus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for sub := range b.subs {
		if sub.matches(topic) {
			count++
		}
	}
	return count
}

// Close 实现 EventBus 接口，幂等
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	subs := make([]*memorySubscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}

// matchPattern 按段匹配 Topic 模式，* 通配任意一段
func matchPattern(pattern, topic string) bool {
	pp := strings.Split(pattern, ":")
	tp := strings.Split(topic, ":")
	if len(pp) != len(tp) {
		return false
	}
	for i := range pp {
		if pp[i] != "*" && pp[i] != tp[i] {
			return false
		}
	}
	return true
}
