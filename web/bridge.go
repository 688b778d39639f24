package web

import (
	"context"
	"encoding/json"
	"fmt"

	"matchcenter/bus"
	"matchcenter/logger"
	"matchcenter/services"
)

// BusBridge 订阅全部比赛 Topic，把总线消息转发到对应房间。
// 不读取也不修改模拟状态，消息原样透传。
type BusBridge struct {
	bus bus.EventBus
	hub *Hub
	sub bus.Subscription
}

// NewBusBridge 创建 BusBridge 实例
func NewBusBridge(eventBus bus.EventBus, hub *Hub) *BusBridge {
	return &BusBridge{bus: eventBus, hub: hub}
}

// Start 建立模式订阅并开始转发
func (b *BusBridge) Start(ctx context.Context) error {
	sub, err := b.bus.PSubscribe(ctx, bus.AllMatchPatterns()...)
	if err != nil {
		return fmt.Errorf("failed to subscribe to match topics: %w", err)
	}
	b.sub = sub

	go func() {
		for msg := range sub.Messages() {
			b.route(msg)
		}
	}()

	logger.Println("[Bridge] Subscribed to match topics")
	return nil
}

// Stop 取消订阅
func (b *BusBridge) Stop() {
	if b.sub != nil {
		b.sub.Close()
	}
}

// route 按 Topic 后缀路由到房间，未知格式丢弃
func (b *BusBridge) route(msg bus.Message) {
	matchID := bus.MatchIDFromTopic(msg.Topic)
	if matchID == "" {
		logger.Errorf("[Bridge] Dropping message with unexpected topic %s", msg.Topic)
		return
	}

	event := OutboundType(msg.Topic)
	if event == "" {
		logger.Errorf("[Bridge] Dropping message with unexpected topic %s", msg.Topic)
		return
	}

	b.hub.BroadcastRoom(services.MatchRoom(matchID), event, json.RawMessage(msg.Payload))
}

// OutboundType 由 Topic 后缀得到出站消息类型
func OutboundType(topic string) string {
	switch bus.TopicKind(topic) {
	case "score":
		return "match:score"
	case "stats":
		return "match:stats"
	case "event":
		return "match:event"
	default:
		return ""
	}
}
