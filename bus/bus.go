package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Message 总线上传输的一条消息
type Message struct {
	Topic   string
	Payload []byte
}

// Subscription 一次订阅，Close 之后 Messages 通道会被关闭
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// EventBus 事件总线抽象，Redis / AMQP / 内存三种实现
type EventBus interface {
	// Publish 发布消息到指定 Topic，payload 非 []byte 时按 JSON 序列化
	Publish(ctx context.Context, topic string, payload interface{}) error
	// Subscribe 订阅若干具体 Topic
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)
	// PSubscribe 按模式订阅，模式中每段可用 * 通配
	PSubscribe(ctx context.Context, patterns ...string) (Subscription, error)
	// Close 关闭总线连接
	Close() error
}

// ScoreTopic 比分更新的 Topic
func ScoreTopic(matchID string) string {
	return fmt.Sprintf("match:%s:score", matchID)
}

// EventTopic 比赛事件的 Topic
func EventTopic(matchID string) string {
	return fmt.Sprintf("match:%s:event", matchID)
}

// StatsTopic 统计数据的 Topic
func StatsTopic(matchID string) string {
	return fmt.Sprintf("match:%s:stats", matchID)
}

// MatchTopics 一场比赛的全部三个 Topic
func MatchTopics(matchID string) []string {
	return []string{ScoreTopic(matchID), EventTopic(matchID), StatsTopic(matchID)}
}

// AllMatchPatterns 覆盖所有比赛的订阅模式
func AllMatchPatterns() []string {
	return []string{"match:*:score", "match:*:event", "match:*:stats"}
}

// MatchIDFromTopic 从 Topic 中取出比赛 ID，格式不符时返回空串
func MatchIDFromTopic(topic string) string {
	parts := strings.Split(topic, ":")
	if len(parts) != 3 || parts[0] != "match" {
		return ""
	}
	return parts[1]
}

// TopicKind 取 Topic 的末段（score / event / stats）
func TopicKind(topic string) string {
	idx := strings.LastIndex(topic, ":")
	if idx < 0 {
		return ""
	}
	return topic[idx+1:]
}

func encodePayload(payload interface{}) ([]byte, error) {
	if raw, ok := payload.([]byte); ok {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}
