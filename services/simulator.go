package services

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"matchcenter/bus"
	"matchcenter/logger"
	"matchcenter/models"
)

const halfTimeTicks = 2

var seedTeams = []string{
	"Arsenal",
	"Chelsea",
	"Liverpool",
	"Manchester City",
	"Manchester United",
	"Tottenham",
	"Barcelona",
	"Real Madrid",
	"Bayern Munich",
	"PSG",
}

// simMatch 模拟器持有的单场比赛状态，中场倒计时只存在于内存
type simMatch struct {
	models.Match
	halfTimeRemaining int
}

// Simulator 比赛模拟引擎，每个 tick 推进一场比赛恰好一步
type Simulator struct {
	store      Store
	bus        bus.EventBus
	rng        *rand.Rand
	matchCount int

	mu      sync.Mutex
	matches map[string]*simMatch
	stats   map[string]*models.MatchStats

	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewSimulator 创建 Simulator 实例
func NewSimulator(store Store, eventBus bus.EventBus, matchCount int) *Simulator {
	return &Simulator{
		store:      store,
		bus:        eventBus,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		matchCount: matchCount,
		matches:    make(map[string]*simMatch),
		stats:      make(map[string]*models.MatchStats),
		done:       make(chan struct{}),
	}
}

// SetRand 替换随机源，测试用
func (s *Simulator) SetRand(rng *rand.Rand) {
	s.rng = rng
}

// Seed 幂等初始化：没有未结束的比赛时创建一批，否则加载已有比赛
func (s *Simulator) Seed() error {
	active, err := s.store.ListActiveMatches()
	if err != nil {
		return err
	}

	if len(active) == 0 {
		logger.Printf("[Simulator] No active matches, seeding %d matches", s.matchCount)
		for i := 0; i < s.matchCount; i++ {
			match := &models.Match{
				HomeTeam: seedTeams[(i*2)%len(seedTeams)],
				AwayTeam: seedTeams[(i*2+1)%len(seedTeams)],
				Status:   models.StatusNotStarted,
				StartsAt: time.Now().Add(time.Duration(i) * time.Minute),
			}
			if err := s.store.InsertMatch(match); err != nil {
				logger.Errorf("[Simulator] Failed to seed match: %v", err)
				continue
			}
			if err := s.store.InsertStats(&models.MatchStats{
				MatchID:        match.ID,
				PossessionHome: 50,
				PossessionAway: 50,
			}); err != nil {
				logger.Errorf("[Simulator] Failed to seed stats for match %s: %v", match.ID, err)
			}
		}

		active, err = s.store.ListActiveMatches()
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range active {
		s.matches[m.ID] = &simMatch{Match: m}

		st, err := s.store.GetStats(m.ID)
		if err != nil {
			logger.Errorf("[Simulator] Failed to load stats for match %s: %v", m.ID, err)
		}
		if st == nil {
			st = &models.MatchStats{MatchID: m.ID, PossessionHome: 50, PossessionAway: 50}
		}
		s.stats[m.ID] = st
	}

	logger.Printf("[Simulator] Loaded %d active matches", len(s.matches))
	return nil
}

// Start 按固定间隔驱动 tick，直到 Stop 被调用
func (s *Simulator) Start(interval time.Duration) {
	s.ticker = time.NewTicker(interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.done:
				return
			case <-s.ticker.C:
				s.Tick()
			}
		}
	}()
	logger.Printf("[Simulator] Started (tick interval %v)", interval)
}

// Stop 停止模拟器
func (s *Simulator) Stop() {
	close(s.done)
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.wg.Wait()
	logger.Println("[Simulator] Stopped")
}

// ActiveMatchCount 返回仍在推进的比赛数
func (s *Simulator) ActiveMatchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matches)
}

// Tick 推进所有活跃比赛各一步，已结束的比赛从活跃集合移除
func (s *Simulator) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, match := range s.matches {
		s.advanceMatch(match)
		if match.Status == models.StatusFullTime {
			delete(s.matches, id)
			delete(s.stats, id)
		}
	}
}

// pendingEvent 本次 tick 产生、待持久化并发布的事件
type pendingEvent struct {
	eventType string
	payload   map[string]interface{}
}

// advanceMatch 按状态机推进一场比赛恰好一个转移。
// 先改内存，再持久化，持久化成功后才发布；持久化失败只记日志，
// 内存状态照常推进，下一个 tick 自然重试。
func (s *Simulator) advanceMatch(match *simMatch) {
	var (
		events       []pendingEvent
		scoreChanged bool
		statsTouched bool
	)

	switch match.Status {
	case models.StatusNotStarted:
		match.Status = models.StatusFirstHalf
		match.Minute = 1
		events = append(events, pendingEvent{models.EventStartHalf, map[string]interface{}{"half": 1}})

	case models.StatusFirstHalf:
		if match.Minute >= 45 {
			match.Status = models.StatusHalfTime
			match.halfTimeRemaining = halfTimeTicks
			events = append(events, pendingEvent{models.EventHalfTime, map[string]interface{}{}})
		} else {
			match.Minute++
			events, scoreChanged = s.runRandomPass(match)
			statsTouched = true
		}

	case models.StatusHalfTime:
		if match.halfTimeRemaining > 1 {
			match.halfTimeRemaining--
			return
		}
		match.Status = models.StatusSecondHalf
		match.Minute = 46
		events = append(events, pendingEvent{models.EventStartHalf, map[string]interface{}{"half": 2}})

	case models.StatusSecondHalf:
		if match.Minute >= 90 {
			match.Status = models.StatusFullTime
			events = append(events, pendingEvent{models.EventFullTime, map[string]interface{}{}})
		} else {
			match.Minute++
			events, scoreChanged = s.runRandomPass(match)
			statsTouched = true
		}

	default:
		return
	}

	// 比赛状态先落库，失败则跳过本 tick 的全部广播
	if err := s.store.UpdateMatch(&match.Match); err != nil {
		logger.Errorf("[Simulator] Failed to persist match %s: %v", match.ID, err)
		return
	}

	ctx := context.Background()

	for _, ev := range events {
		s.emitEvent(ctx, match, ev)
	}

	if scoreChanged {
		s.publishScore(ctx, match)
	}

	if statsTouched {
		s.persistAndPublishStats(ctx, match.ID)
	}
}

// runRandomPass 单次均匀抽样映射到互不重叠的概率区间，按固定顺序判定
func (s *Simulator) runRandomPass(match *simMatch) ([]pendingEvent, bool) {
	stats := s.stats[match.ID]
	if stats == nil {
		return nil, false
	}

	var events []pendingEvent
	scoreChanged := false

	roll := s.rng.Float64()
	switch {
	case roll < 0.03:
		isHome := s.rng.Float64() > 0.5
		team := match.AwayTeam
		if isHome {
			match.HomeScore++
			team = match.HomeTeam
		} else {
			match.AwayScore++
		}
		events = append(events, pendingEvent{models.EventGoal, map[string]interface{}{"team": team}})
		scoreChanged = true

	case roll < 0.07:
		events = append(events, pendingEvent{models.EventYellowCard, map[string]interface{}{
			"team":       s.pickTeam(match),
			"cardReason": "Late tackle",
		}})

	case roll < 0.08:
		events = append(events, pendingEvent{models.EventRedCard, map[string]interface{}{
			"team":       s.pickTeam(match),
			"cardReason": "Serious foul play",
		}})

	case roll < 0.18:
		isHome := s.rng.Float64() > 0.5
		team := match.AwayTeam
		if isHome {
			stats.FoulsHome++
			team = match.HomeTeam
		} else {
			stats.FoulsAway++
		}
		events = append(events, pendingEvent{models.EventFoul, map[string]interface{}{"team": team}})

	case roll < 0.28:
		isHome := s.rng.Float64() > 0.5
		team := match.AwayTeam
		if isHome {
			stats.ShotsHome++
			team = match.HomeTeam
		} else {
			stats.ShotsAway++
		}
		events = append(events, pendingEvent{models.EventShot, map[string]interface{}{
			"team":     team,
			"shotType": "On target",
		}})

	case roll < 0.32 && match.Minute > 60:
		events = append(events, pendingEvent{models.EventSubstitution, map[string]interface{}{
			"team":   s.pickTeam(match),
			"subIn":  "Player In",
			"subOut": "Player Out",
		}})
	}

	// 控球率扰动 [-3,+3]，主队夹在 [40,60]，客队取补
	swing := s.rng.Intn(7) - 3
	stats.PossessionHome = clamp(stats.PossessionHome+swing, 40, 60)
	stats.PossessionAway = 100 - stats.PossessionHome

	return events, scoreChanged
}

func (s *Simulator) pickTeam(match *simMatch) string {
	if s.rng.Float64() > 0.5 {
		return match.HomeTeam
	}
	return match.AwayTeam
}

// emitEvent 先落库后发布，落库失败则该事件不广播
func (s *Simulator) emitEvent(ctx context.Context, match *simMatch, ev pendingEvent) {
	stored, err := s.store.InsertEvent(match.ID, match.Minute, ev.eventType, ev.payload)
	if err != nil {
		logger.Errorf("[Simulator] Failed to insert %s event for match %s: %v", ev.eventType, match.ID, err)
		return
	}

	if err := s.bus.Publish(ctx, bus.EventTopic(match.ID), map[string]interface{}{
		"matchId": match.ID,
		"event":   stored,
	}); err != nil {
		logger.Errorf("[Simulator] Failed to publish event for match %s: %v", match.ID, err)
	}
}

func (s *Simulator) publishScore(ctx context.Context, match *simMatch) {
	if err := s.bus.Publish(ctx, bus.ScoreTopic(match.ID), map[string]interface{}{
		"matchId":   match.ID,
		"homeScore": match.HomeScore,
		"awayScore": match.AwayScore,
		"minute":    match.Minute,
		"status":    match.Status,
	}); err != nil {
		logger.Errorf("[Simulator] Failed to publish score for match %s: %v", match.ID, err)
	}
}

func (s *Simulator) persistAndPublishStats(ctx context.Context, matchID string) {
	stats := s.stats[matchID]
	if stats == nil {
		return
	}

	if err := s.store.UpdateStats(stats); err != nil {
		logger.Errorf("[Simulator] Failed to persist stats for match %s: %v", matchID, err)
		return
	}

	if err := s.bus.Publish(ctx, bus.StatsTopic(matchID), map[string]interface{}{
		"matchId": matchID,
		"stats":   stats,
	}); err != nil {
		logger.Errorf("[Simulator] Failed to publish stats for match %s: %v", matchID, err)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
