package services

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"matchcenter/models"
)

// fakeStore Store 接口的内存实现，测试用
type fakeStore struct {
	mu      sync.Mutex
	matches map[string]models.Match
	stats   map[string]models.MatchStats
	events  []models.MatchEvent
	chats   []models.ChatMessage

	matchInserts int
	matchUpdates int
	statsUpdates int

	failMatchUpdate bool
	failChatInsert  bool

	clock time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		matches: make(map[string]models.Match),
		stats:   make(map[string]models.MatchStats),
		clock:   time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) nextTime() time.Time {
	f.clock = f.clock.Add(time.Millisecond)
	return f.clock
}

func (f *fakeStore) ListActiveMatches() ([]models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var active []models.Match
	for _, m := range f.matches {
		if m.Status != models.StatusFullTime {
			active = append(active, m)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].StartsAt.Before(active[j].StartsAt)
	})
	return active, nil
}

func (f *fakeStore) GetMatch(id string) (*models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.matches[id]; ok {
		return &m, nil
	}
	return nil, nil
}

func (f *fakeStore) InsertMatch(m *models.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	f.matches[m.ID] = *m
	f.matchInserts++
	return nil
}

func (f *fakeStore) UpdateMatch(m *models.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMatchUpdate {
		return errors.New("store unavailable")
	}
	f.matches[m.ID] = *m
	f.matchUpdates++
	return nil
}

func (f *fakeStore) InsertStats(s *models.MatchStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stats[s.MatchID]; !ok {
		f.stats[s.MatchID] = *s
	}
	return nil
}

func (f *fakeStore) UpdateStats(s *models.MatchStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[s.MatchID] = *s
	f.statsUpdates++
	return nil
}

func (f *fakeStore) GetStats(matchID string) (*models.MatchStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.stats[matchID]; ok {
		return &s, nil
	}
	return nil, nil
}

func (f *fakeStore) InsertEvent(matchID string, minute int, eventType string, payload interface{}) (*models.MatchEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event := models.MatchEvent{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		Minute:    minute,
		Type:      eventType,
		Payload:   []byte("{}"),
		CreatedAt: f.nextTime(),
	}
	f.events = append(f.events, event)
	return &event, nil
}

func (f *fakeStore) ListEventsSince(matchID string, since time.Time, limit int) ([]models.MatchEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MatchEvent
	for _, e := range f.events {
		if e.MatchID == matchID && !e.CreatedAt.Before(since) {
			out = append(out, e)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListRecentEvents(matchID string, limit int) ([]models.MatchEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MatchEvent
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		if f.events[i].MatchID == matchID {
			out = append(out, f.events[i])
		}
	}
	return out, nil
}

func (f *fakeStore) InsertChatMessage(matchID, userID, userName, message string) (*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failChatInsert {
		return nil, errors.New("store unavailable")
	}
	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		UserID:    userID,
		UserName:  userName,
		Message:   message,
		CreatedAt: f.nextTime(),
	}
	f.chats = append(f.chats, msg)
	return &msg, nil
}

func (f *fakeStore) CountsByStatus() (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int)
	for _, m := range f.matches {
		counts[m.Status]++
	}
	return counts, nil
}

func (f *fakeStore) eventTypes(matchID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, e := range f.events {
		if e.MatchID == matchID {
			types = append(types, e.Type)
		}
	}
	return types
}
