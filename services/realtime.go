package services

import (
	"fmt"
	"sync"
	"time"

	"matchcenter/logger"
	"matchcenter/models"
)

const (
	// PresenceTTL 在线状态的存活时长，连接侧按固定节奏刷新
	PresenceTTL = 60 * time.Second

	// TypingTTL 输入状态自动停止的时长
	TypingTTL = 5 * time.Second

	// 聊天限流：固定窗口内最多 rateLimitCount 条
	rateLimitCount    = 5
	rateLimitWindowMs = 10_000
)

// ChatRoom 一场比赛聊天室的房间名
func ChatRoom(matchID string) string {
	return fmt.Sprintf("chat:%s", matchID)
}

// MatchRoom 一场比赛实时数据的房间名
func MatchRoom(matchID string) string {
	return fmt.Sprintf("match:%s", matchID)
}

type presenceKey struct {
	matchID string
	userID  string
	tabID   string
}

type presenceEntry struct {
	userName  string
	expiresAt time.Time
}

type typingKey struct {
	matchID string
	userID  string
}

type rateWindow struct {
	window int64
	count  int
}

// RealtimeService 管理在线状态、输入状态和聊天限流。
// 全部状态在内存中，靠 TTL 过期和惰性清理维持正确性。
type RealtimeService struct {
	store       Store
	scheduler   Scheduler
	broadcaster RoomBroadcaster
	now         func() time.Time

	mu           sync.Mutex
	presence     map[presenceKey]*presenceEntry
	typingTimers map[typingKey]TimerHandle
	rateWindows  map[typingKey]*rateWindow
}

// NewRealtimeService 创建 RealtimeService 实例
func NewRealtimeService(store Store, scheduler Scheduler) *RealtimeService {
	return &RealtimeService{
		store:        store,
		scheduler:    scheduler,
		now:          time.Now,
		presence:     make(map[presenceKey]*presenceEntry),
		typingTimers: make(map[typingKey]TimerHandle),
		rateWindows:  make(map[typingKey]*rateWindow),
	}
}

// SetBroadcaster 注入房间广播实现（由 web.Hub 提供）
func (s *RealtimeService) SetBroadcaster(b RoomBroadcaster) {
	s.broadcaster = b
}

// SetNow 替换时钟，测试用
func (s *RealtimeService) SetNow(now func() time.Time) {
	s.now = now
}

// RegisterPresence 登记一条在线记录，重复调用只会刷新过期时间
func (s *RealtimeService) RegisterPresence(matchID, userID, tabID, userName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[presenceKey{matchID, userID, tabID}] = &presenceEntry{
		userName:  userName,
		expiresAt: s.now().Add(PresenceTTL),
	}
}

// RefreshPresence 刷新在线记录的过期时间，记录不存在时不做任何事
func (s *RealtimeService) RefreshPresence(matchID, userID, tabID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.presence[presenceKey{matchID, userID, tabID}]; ok {
		entry.expiresAt = s.now().Add(PresenceTTL)
	}
}

// RemovePresence 删除一条在线记录，幂等
func (s *RealtimeService) RemovePresence(matchID, userID, tabID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.presence, presenceKey{matchID, userID, tabID})
}

// GetUserCount 统计一场比赛下未过期在线记录的去重用户数
func (s *RealtimeService) GetUserCount(matchID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	users := make(map[string]struct{})
	for key, entry := range s.presence {
		if !entry.expiresAt.After(now) {
			delete(s.presence, key)
			continue
		}
		if key.matchID == matchID {
			users[key.userID] = struct{}{}
		}
	}
	return len(users)
}

// StartTyping 广播开始输入，并调度一次自动停止；
// 同一 (matchId,userId) 重复开始会取消并替换之前的定时器，保证只触发一次自动停止。
func (s *RealtimeService) StartTyping(matchID, userID, userName string) {
	s.broadcastTyping(matchID, userID, userName, true)

	key := typingKey{matchID, userID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.typingTimers[key]; ok {
		existing.Cancel()
	}

	var handle TimerHandle
	handle = s.scheduler.AfterFunc(TypingTTL, func() {
		s.mu.Lock()
		if s.typingTimers[key] != handle {
			// 已被新的开始替换或被显式停止
			s.mu.Unlock()
			return
		}
		delete(s.typingTimers, key)
		s.mu.Unlock()

		s.broadcastTyping(matchID, userID, userName, false)
	})
	s.typingTimers[key] = handle
}

// StopTyping 取消自动停止定时器并广播停止输入
func (s *RealtimeService) StopTyping(matchID, userID string) {
	key := typingKey{matchID, userID}

	s.mu.Lock()
	if existing, ok := s.typingTimers[key]; ok {
		existing.Cancel()
		delete(s.typingTimers, key)
	}
	s.mu.Unlock()

	s.broadcastTyping(matchID, userID, "", false)
}

func (s *RealtimeService) broadcastTyping(matchID, userID, userName string, isTyping bool) {
	if s.broadcaster == nil {
		logger.Errorln("[Realtime] No broadcaster configured, dropping typing update")
		return
	}

	payload := map[string]interface{}{
		"matchId":  matchID,
		"userId":   userID,
		"isTyping": isTyping,
	}
	if userName != "" {
		payload["userName"] = userName
	}
	s.broadcaster.BroadcastRoom(ChatRoom(matchID), "chat:typing", payload)
}

// CanSendMessage 固定窗口限流：窗口索引前进时计数重置。
// 已知边界行为：跨窗口瞬间最多放行两倍限额，按约定保留。
func (s *RealtimeService) CanSendMessage(matchID, userID string) bool {
	window := s.now().UnixMilli() / rateLimitWindowMs
	key := typingKey{matchID, userID}

	s.mu.Lock()
	defer s.mu.Unlock()

	rw, ok := s.rateWindows[key]
	if !ok || rw.window != window {
		rw = &rateWindow{window: window}
		s.rateWindows[key] = rw
	}
	rw.count++
	return rw.count <= rateLimitCount
}

// SaveChatMessage 持久化聊天消息，失败时调用方不得广播
func (s *RealtimeService) SaveChatMessage(matchID, userID, userName, message string) (*models.ChatMessage, error) {
	saved, err := s.store.InsertChatMessage(matchID, userID, userName, message)
	if err != nil {
		logger.Errorf("[Realtime] Failed to store chat message: %v", err)
		return nil, fmt.Errorf("failed to store chat message: %w", err)
	}
	return saved, nil
}
