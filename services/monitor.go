package services

import (
	"time"

	"matchcenter/logger"
	"matchcenter/models"
)

// MatchMonitor 定期汇报比赛状态分布
type MatchMonitor struct {
	store Store
	done  chan struct{}
}

// NewMatchMonitor 创建 MatchMonitor 实例
func NewMatchMonitor(store Store) *MatchMonitor {
	return &MatchMonitor{
		store: store,
		done:  make(chan struct{}),
	}
}

// Start 按固定间隔输出一次汇总，先立即执行一次
func (m *MatchMonitor) Start(interval time.Duration) {
	go func() {
		m.Report()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				m.Report()
			}
		}
	}()
}

// Stop 停止监控
func (m *MatchMonitor) Stop() {
	close(m.done)
}

// Report 输出一次比赛状态汇总
func (m *MatchMonitor) Report() {
	counts, err := m.store.CountsByStatus()
	if err != nil {
		logger.Errorf("[Monitor] Failed to count matches: %v", err)
		return
	}

	live := counts[models.StatusFirstHalf] + counts[models.StatusHalfTime] + counts[models.StatusSecondHalf]
	logger.Printf("[Monitor] Matches: %d not started, %d live, %d finished",
		counts[models.StatusNotStarted], live, counts[models.StatusFullTime])
}
