package web

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"matchcenter/services"
)

const maxChatMessageLength = 280

// clientMessage 入站消息帧
type clientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type matchSubscriptionPayload struct {
	MatchID string `json:"matchId"`
}

func (p *matchSubscriptionPayload) validate() error {
	return requireUUID("matchId", p.MatchID)
}

type chatJoinPayload struct {
	MatchID  string `json:"matchId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	TabID    string `json:"tabId"`
}

func (p *chatJoinPayload) validate() error {
	if err := requireUUID("matchId", p.MatchID); err != nil {
		return err
	}
	if err := requireString("userId", p.UserID, 64); err != nil {
		return err
	}
	if err := requireString("userName", p.UserName, 64); err != nil {
		return err
	}
	if p.TabID != "" && len(p.TabID) > 64 {
		return fmt.Errorf("tabId must be at most 64 characters")
	}
	return nil
}

type chatLeavePayload struct {
	MatchID string `json:"matchId"`
	UserID  string `json:"userId"`
	TabID   string `json:"tabId"`
}

func (p *chatLeavePayload) validate() error {
	if err := requireUUID("matchId", p.MatchID); err != nil {
		return err
	}
	if err := requireString("userId", p.UserID, 64); err != nil {
		return err
	}
	if p.TabID != "" && len(p.TabID) > 64 {
		return fmt.Errorf("tabId must be at most 64 characters")
	}
	return nil
}

type chatMessagePayload struct {
	MatchID  string `json:"matchId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Message  string `json:"message"`
}

func (p *chatMessagePayload) validate() error {
	if err := requireUUID("matchId", p.MatchID); err != nil {
		return err
	}
	if err := requireString("userId", p.UserID, 64); err != nil {
		return err
	}
	if err := requireString("userName", p.UserName, 64); err != nil {
		return err
	}
	return requireString("message", p.Message, maxChatMessageLength)
}

type typingStartPayload struct {
	MatchID  string `json:"matchId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

func (p *typingStartPayload) validate() error {
	if err := requireUUID("matchId", p.MatchID); err != nil {
		return err
	}
	if err := requireString("userId", p.UserID, 64); err != nil {
		return err
	}
	return requireString("userName", p.UserName, 64)
}

type typingStopPayload struct {
	MatchID string `json:"matchId"`
	UserID  string `json:"userId"`
}

func (p *typingStopPayload) validate() error {
	if err := requireUUID("matchId", p.MatchID); err != nil {
		return err
	}
	return requireString("userId", p.UserID, 64)
}

func requireUUID(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if _, err := uuid.Parse(value); err != nil {
		return fmt.Errorf("%s must be a UUID", field)
	}
	return nil
}

func requireString(field, value string, max int) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(value) > max {
		return fmt.Errorf("%s must be at most %d characters", field, max)
	}
	return nil
}

// handleMessage 处理客户端发来的一条入站消息。
// 校验失败只通知发起方，不产生任何状态变化和广播。
func (c *Client) handleMessage(raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("BAD_REQUEST", "Invalid message", err.Error())
		return
	}

	switch msg.Type {
	case "match:subscribe":
		var payload matchSubscriptionPayload
		if !c.decode(msg.Payload, &payload, payload.validate) {
			return
		}
		c.hub.joinRoom(c, services.MatchRoom(payload.MatchID))

	case "match:unsubscribe":
		var payload matchSubscriptionPayload
		if !c.decode(msg.Payload, &payload, payload.validate) {
			return
		}
		c.hub.leaveRoom(c, services.MatchRoom(payload.MatchID))

	case "chat:join":
		var payload chatJoinPayload
		if !c.decode(msg.Payload, &payload, payload.validate) {
			return
		}
		c.handleChatJoin(payload)

	case "chat:leave":
		var payload chatLeavePayload
		if !c.decode(msg.Payload, &payload, payload.validate) {
			return
		}
		c.handleChatLeave(payload)

	case "chat:message":
		var payload chatMessagePayload
		if !c.decode(msg.Payload, &payload, payload.validate) {
			return
		}
		c.handleChatMessage(payload)

	case "chat:typing_start":
		var payload typingStartPayload
		if !c.decode(msg.Payload, &payload, payload.validate) {
			return
		}
		c.hub.realtime.StartTyping(payload.MatchID, payload.UserID, payload.UserName)

	case "chat:typing_stop":
		var payload typingStopPayload
		if !c.decode(msg.Payload, &payload, payload.validate) {
			return
		}
		c.hub.realtime.StopTyping(payload.MatchID, payload.UserID)

	default:
		c.sendError("BAD_REQUEST", "Unknown action type", msg.Type)
	}
}

// decode 解析并校验入站 payload，失败时已向客户端发送错误
func (c *Client) decode(raw json.RawMessage, target interface{}, validate func() error) bool {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			c.sendError("BAD_REQUEST", "Invalid payload", err.Error())
			return false
		}
	}
	if err := validate(); err != nil {
		c.sendError("BAD_REQUEST", "Invalid payload", err.Error())
		return false
	}
	return true
}

func (c *Client) handleChatJoin(payload chatJoinPayload) {
	tabID := payload.TabID
	if tabID == "" {
		tabID = c.id
	}

	c.hub.joinRoom(c, services.ChatRoom(payload.MatchID))
	c.hub.realtime.RegisterPresence(payload.MatchID, payload.UserID, tabID, payload.UserName)
	c.addPresence(presenceEntry{
		MatchID:  payload.MatchID,
		UserID:   payload.UserID,
		UserName: payload.UserName,
		TabID:    tabID,
	})

	userCount := c.hub.realtime.GetUserCount(payload.MatchID)
	c.hub.BroadcastRoom(services.ChatRoom(payload.MatchID), "chat:user_joined", map[string]interface{}{
		"matchId":   payload.MatchID,
		"userId":    payload.UserID,
		"userName":  payload.UserName,
		"userCount": userCount,
	})
}

func (c *Client) handleChatLeave(payload chatLeavePayload) {
	tabID := payload.TabID
	if tabID == "" {
		tabID = c.id
	}

	c.hub.leaveRoom(c, services.ChatRoom(payload.MatchID))
	c.hub.realtime.RemovePresence(payload.MatchID, payload.UserID, tabID)
	c.removePresence(payload.MatchID, payload.UserID, tabID)

	userCount := c.hub.realtime.GetUserCount(payload.MatchID)
	c.hub.BroadcastRoom(services.ChatRoom(payload.MatchID), "chat:user_left", map[string]interface{}{
		"matchId":   payload.MatchID,
		"userId":    payload.UserID,
		"userCount": userCount,
	})
}

func (c *Client) handleChatMessage(payload chatMessagePayload) {
	trimmed := strings.TrimSpace(payload.Message)
	if trimmed == "" {
		c.sendError("BAD_REQUEST", "Message cannot be empty", nil)
		return
	}

	if !c.hub.realtime.CanSendMessage(payload.MatchID, payload.UserID) {
		c.sendError("RATE_LIMIT", "Too many messages. Slow down.", nil)
		return
	}

	saved, err := c.hub.realtime.SaveChatMessage(payload.MatchID, payload.UserID, payload.UserName, trimmed)
	if err != nil {
		c.sendError("INTERNAL", "Failed to store chat message", nil)
		return
	}

	c.hub.BroadcastRoom(services.ChatRoom(payload.MatchID), "chat:message", map[string]interface{}{
		"matchId": payload.MatchID,
		"message": saved,
	})
}
