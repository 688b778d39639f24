package models

import (
	"encoding/json"
	"time"
)

// 比赛状态，按固定顺序推进，不会回退
const (
	StatusNotStarted = "NOT_STARTED"
	StatusFirstHalf  = "FIRST_HALF"
	StatusHalfTime   = "HALF_TIME"
	StatusSecondHalf = "SECOND_HALF"
	StatusFullTime   = "FULL_TIME"
)

// 比赛事件类型
const (
	EventStartHalf    = "START_HALF"
	EventGoal         = "GOAL"
	EventYellowCard   = "YELLOW_CARD"
	EventRedCard      = "RED_CARD"
	EventFoul         = "FOUL"
	EventShot         = "SHOT"
	EventSubstitution = "SUBSTITUTION"
	EventHalfTime     = "HALF_TIME"
	EventFullTime     = "FULL_TIME"
)

// Match 比赛记录
type Match struct {
	ID        string    `json:"id"`
	HomeTeam  string    `json:"homeTeam"`
	AwayTeam  string    `json:"awayTeam"`
	HomeScore int       `json:"homeScore"`
	AwayScore int       `json:"awayScore"`
	Minute    int       `json:"minute"`
	Status    string    `json:"status"`
	StartsAt  time.Time `json:"startsAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsTerminal 判断比赛是否已结束
func (m *Match) IsTerminal() bool {
	return m.Status == StatusFullTime
}

// MatchStats 比赛统计数据，控球率两边合计恒为 100
type MatchStats struct {
	MatchID        string `json:"matchId"`
	PossessionHome int    `json:"possession_home"`
	PossessionAway int    `json:"possession_away"`
	ShotsHome      int    `json:"shots_home"`
	ShotsAway      int    `json:"shots_away"`
	FoulsHome      int    `json:"fouls_home"`
	FoulsAway      int    `json:"fouls_away"`
	CornersHome    int    `json:"corners_home"`
	CornersAway    int    `json:"corners_away"`
}

// MatchEvent 比赛事件，插入后不可变更
type MatchEvent struct {
	ID        string          `json:"id"`
	MatchID   string          `json:"matchId"`
	Minute    int             `json:"minute"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ChatMessage 聊天消息记录
type ChatMessage struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"matchId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
