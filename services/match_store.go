package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"matchcenter/models"
)

// MatchStore Store 接口的 Postgres 实现
type MatchStore struct {
	db *sql.DB
}

// NewMatchStore 创建 MatchStore 实例
func NewMatchStore(db *sql.DB) *MatchStore {
	return &MatchStore{db: db}
}

const matchColumns = `id, home_team, away_team, home_score, away_score, minute, status, starts_at, created_at, updated_at`

func scanMatch(row interface{ Scan(...interface{}) error }) (*models.Match, error) {
	var m models.Match
	var startsAt sql.NullTime
	if err := row.Scan(&m.ID, &m.HomeTeam, &m.AwayTeam, &m.HomeScore, &m.AwayScore,
		&m.Minute, &m.Status, &startsAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if startsAt.Valid {
		m.StartsAt = startsAt.Time
	}
	return &m, nil
}

// ListActiveMatches 列出未结束的比赛，按开赛时间升序
func (s *MatchStore) ListActiveMatches() ([]models.Match, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM matches
		WHERE status <> $1
		ORDER BY starts_at ASC
	`, matchColumns)

	rows, err := s.db.Query(query, models.StatusFullTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

// GetMatch 按 ID 查询比赛
func (s *MatchStore) GetMatch(id string) (*models.Match, error) {
	query := fmt.Sprintf(`SELECT %s FROM matches WHERE id = $1`, matchColumns)

	m, err := scanMatch(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// InsertMatch 插入一场新比赛，ID 为空时自动生成
func (s *MatchStore) InsertMatch(m *models.Match) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	query := `
		INSERT INTO matches (id, home_team, away_team, home_score, away_score, minute, status, starts_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.Exec(query, m.ID, m.HomeTeam, m.AwayTeam, m.HomeScore, m.AwayScore,
		m.Minute, m.Status, m.StartsAt, m.CreatedAt, m.UpdatedAt)
	return err
}

// UpdateMatch 更新比赛的比分、时间和状态
func (s *MatchStore) UpdateMatch(m *models.Match) error {
	query := `
		UPDATE matches
		SET home_score = $2, away_score = $3, minute = $4, status = $5, updated_at = $6
		WHERE id = $1
	`
	_, err := s.db.Exec(query, m.ID, m.HomeScore, m.AwayScore, m.Minute, m.Status, time.Now())
	return err
}

// InsertStats 插入比赛统计初始行
func (s *MatchStore) InsertStats(st *models.MatchStats) error {
	query := `
		INSERT INTO match_stats (match_id, possession_home, possession_away, shots_home, shots_away, fouls_home, fouls_away, corners_home, corners_away, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (match_id) DO NOTHING
	`
	_, err := s.db.Exec(query, st.MatchID, st.PossessionHome, st.PossessionAway,
		st.ShotsHome, st.ShotsAway, st.FoulsHome, st.FoulsAway, st.CornersHome, st.CornersAway, time.Now())
	return err
}

// UpdateStats 更新比赛统计
func (s *MatchStore) UpdateStats(st *models.MatchStats) error {
	query := `
		UPDATE match_stats
		SET possession_home = $2, possession_away = $3, shots_home = $4, shots_away = $5,
		    fouls_home = $6, fouls_away = $7, corners_home = $8, corners_away = $9, updated_at = $10
		WHERE match_id = $1
	`
	_, err := s.db.Exec(query, st.MatchID, st.PossessionHome, st.PossessionAway,
		st.ShotsHome, st.ShotsAway, st.FoulsHome, st.FoulsAway, st.CornersHome, st.CornersAway, time.Now())
	return err
}

// GetStats 按比赛 ID 查询统计
func (s *MatchStore) GetStats(matchID string) (*models.MatchStats, error) {
	query := `
		SELECT match_id, possession_home, possession_away, shots_home, shots_away,
		       fouls_home, fouls_away, corners_home, corners_away
		FROM match_stats
		WHERE match_id = $1
	`

	var st models.MatchStats
	err := s.db.QueryRow(query, matchID).Scan(&st.MatchID, &st.PossessionHome, &st.PossessionAway,
		&st.ShotsHome, &st.ShotsAway, &st.FoulsHome, &st.FoulsAway, &st.CornersHome, &st.CornersAway)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// InsertEvent 追加一条比赛事件并返回落库后的记录
func (s *MatchStore) InsertEvent(matchID string, minute int, eventType string, payload interface{}) (*models.MatchEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	event := &models.MatchEvent{
		ID:      uuid.NewString(),
		MatchID: matchID,
		Minute:  minute,
		Type:    eventType,
		Payload: data,
	}

	query := `
		INSERT INTO match_events (id, match_id, minute, type, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	// lib/pq 会把 []byte 编码成 bytea，JSONB 列必须传字符串
	if err := s.db.QueryRow(query, event.ID, event.MatchID, event.Minute, event.Type, string(event.Payload)).
		Scan(&event.CreatedAt); err != nil {
		return nil, err
	}
	return event, nil
}

// ListEventsSince 查询 created_at >= since 的事件，按时间升序
func (s *MatchStore) ListEventsSince(matchID string, since time.Time, limit int) ([]models.MatchEvent, error) {
	query := `
		SELECT id, match_id, minute, type, payload, created_at
		FROM match_events
		WHERE match_id = $1 AND created_at >= $2
		ORDER BY created_at ASC
		LIMIT $3
	`
	return s.queryEvents(query, matchID, since, limit)
}

// ListRecentEvents 查询最近的事件，按时间降序
func (s *MatchStore) ListRecentEvents(matchID string, limit int) ([]models.MatchEvent, error) {
	query := `
		SELECT id, match_id, minute, type, payload, created_at
		FROM match_events
		WHERE match_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return s.queryEvents(query, matchID, limit)
}

func (s *MatchStore) queryEvents(query string, args ...interface{}) ([]models.MatchEvent, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.MatchEvent
	for rows.Next() {
		var e models.MatchEvent
		if err := rows.Scan(&e.ID, &e.MatchID, &e.Minute, &e.Type, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertChatMessage 保存一条聊天消息并返回落库后的记录
func (s *MatchStore) InsertChatMessage(matchID, userID, userName, message string) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{
		ID:       uuid.NewString(),
		MatchID:  matchID,
		UserID:   userID,
		UserName: userName,
		Message:  message,
	}

	query := `
		INSERT INTO chat_messages (id, match_id, user_id, user_name, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	if err := s.db.QueryRow(query, msg.ID, msg.MatchID, msg.UserID, msg.UserName, msg.Message).
		Scan(&msg.CreatedAt); err != nil {
		return nil, err
	}
	return msg, nil
}

// CountsByStatus 按状态统计比赛数量
func (s *MatchStore) CountsByStatus() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM matches GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
