package services

import (
	"time"

	"matchcenter/models"
)

// Store 比赛数据持久化接口，由 MatchStore 实现，测试中用内存假实现替换
type Store interface {
	// ListActiveMatches 列出所有未结束的比赛，按开赛时间升序
	ListActiveMatches() ([]models.Match, error)
	// GetMatch 按 ID 查询比赛，不存在时返回 (nil, nil)
	GetMatch(id string) (*models.Match, error)
	InsertMatch(m *models.Match) error
	UpdateMatch(m *models.Match) error
	InsertStats(s *models.MatchStats) error
	UpdateStats(s *models.MatchStats) error
	// GetStats 按比赛 ID 查询统计，不存在时返回 (nil, nil)
	GetStats(matchID string) (*models.MatchStats, error)
	// InsertEvent 追加一条比赛事件并返回落库后的记录
	InsertEvent(matchID string, minute int, eventType string, payload interface{}) (*models.MatchEvent, error)
	// ListEventsSince 查询 created_at >= since 的事件，按时间升序，最多 limit 条
	ListEventsSince(matchID string, since time.Time, limit int) ([]models.MatchEvent, error)
	// ListRecentEvents 查询最近的事件，按时间降序，最多 limit 条
	ListRecentEvents(matchID string, limit int) ([]models.MatchEvent, error)
	// InsertChatMessage 保存一条聊天消息并返回落库后的记录
	InsertChatMessage(matchID, userID, userName, message string) (*models.ChatMessage, error)
	// CountsByStatus 按状态统计比赛数量
	CountsByStatus() (map[string]int, error)
}

// RoomBroadcaster 房间广播接口，由 web.Hub 实现，避免循环依赖
type RoomBroadcaster interface {
	BroadcastRoom(room, event string, payload interface{})
}
