package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Connect 连接到数据库
func Connect(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 设置连接池
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

// Migrate 运行数据库迁移
func Migrate(db *sql.DB) error {
	for _, migration := range Migrations() {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Migrations 返回全部迁移语句
func Migrations() []string {
	return []string{
		// 比赛表
		`CREATE TABLE IF NOT EXISTS matches (
			id UUID PRIMARY KEY,
			home_team VARCHAR(100) NOT NULL,
			away_team VARCHAR(100) NOT NULL,
			home_score INTEGER NOT NULL DEFAULT 0,
			away_score INTEGER NOT NULL DEFAULT 0,
			minute INTEGER NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'NOT_STARTED',
			starts_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_starts_at ON matches(starts_at)`,

		// 比赛统计表
		`CREATE TABLE IF NOT EXISTS match_stats (
			match_id UUID PRIMARY KEY REFERENCES matches(id),
			possession_home INTEGER NOT NULL DEFAULT 50,
			possession_away INTEGER NOT NULL DEFAULT 50,
			shots_home INTEGER NOT NULL DEFAULT 0,
			shots_away INTEGER NOT NULL DEFAULT 0,
			fouls_home INTEGER NOT NULL DEFAULT 0,
			fouls_away INTEGER NOT NULL DEFAULT 0,
			corners_home INTEGER NOT NULL DEFAULT 0,
			corners_away INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// 比赛事件表（仅追加）
		`CREATE TABLE IF NOT EXISTS match_events (
			id UUID PRIMARY KEY,
			match_id UUID NOT NULL REFERENCES matches(id),
			minute INTEGER NOT NULL,
			type VARCHAR(30) NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_match_events_match_created ON match_events(match_id, created_at)`,

		// 聊天消息表
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id UUID PRIMARY KEY,
			match_id UUID NOT NULL REFERENCES matches(id),
			user_id VARCHAR(100) NOT NULL,
			user_name VARCHAR(100) NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_match_created ON chat_messages(match_id, created_at)`,
	}
}
