package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"matchcenter/logger"
)

const amqpExchange = "matchcenter"

// AMQPBus EventBus 的 AMQP 实现，基于 topic exchange 做模式订阅
type AMQPBus struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
}

// NewAMQPBus 建立 AMQP 连接并声明 exchange
func NewAMQPBus(amqpURL string) (*AMQPBus, error) {
	conn, err := amqp.DialConfig(amqpURL, amqp.Config{
		Heartbeat: 60 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		amqpExchange,
		"topic",
		false, // durable
		true,  // auto-delete
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Printf("[AMQPBus] Connected, exchange %s declared", amqpExchange)

	return &AMQPBus{conn: conn, channel: channel}, nil
}

type amqpSubscription struct {
	channel *amqp.Channel
	queue   string
	ch      chan Message
	once    sync.Once
	done    chan struct{}
}

func (s *amqpSubscription) Messages() <-chan Message {
	return s.ch
}

func (s *amqpSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.channel.Close()
	})
	return err
}

func (s *amqpSubscription) pump(deliveries <-chan amqp.Delivery) {
	defer close(s.ch)
	for {
		select {
		case <-s.done:
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			msg := Message{Topic: routingKeyToTopic(d.RoutingKey), Payload: d.Body}
			select {
			case s.ch <- msg:
			case <-s.done:
				return
			}
		}
	}
}

// Publish 实现 EventBus 接口
func (b *AMQPBus) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.channel.Publish(
		amqpExchange,
		topicToRoutingKey(topic),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        data,
		},
	); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe 实现 EventBus 接口
func (b *AMQPBus) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	return b.subscribe(topics)
}

// PSubscribe 实现 EventBus 接口，模式绑定直接交给 topic exchange
func (b *AMQPBus) PSubscribe(ctx context.Context, patterns ...string) (Subscription, error) {
	return b.subscribe(patterns)
}

func (b *AMQPBus) subscribe(bindings []string) (Subscription, error) {
	channel, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	queue, err := channel.QueueDeclare(
		"",    // name (auto-generated)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, binding := range bindings {
		if err := channel.QueueBind(
			queue.Name,
			topicToRoutingKey(binding),
			amqpExchange,
			false,
			nil,
		); err != nil {
			channel.Close()
			return nil, fmt.Errorf("failed to bind queue: %w", err)
		}
	}

	deliveries, err := channel.Consume(
		queue.Name,
		"",    // consumer
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("failed to consume: %w", err)
	}

	sub := &amqpSubscription{
		channel: channel,
		queue:   queue.Name,
		ch:      make(chan Message, 256),
		done:    make(chan struct{}),
	}
	go sub.pump(deliveries)
	return sub, nil
}

// Close 实现 EventBus 接口
func (b *AMQPBus) Close() error {
	return b.conn.Close()
}

// topicToRoutingKey Topic 的冒号分隔在 AMQP 侧映射为点分隔
func topicToRoutingKey(topic string) string {
	return strings.ReplaceAll(topic, ":", ".")
}

func routingKeyToTopic(key string) string {
	return strings.ReplaceAll(key, ".", ":")
}
