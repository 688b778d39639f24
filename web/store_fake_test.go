package web

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"matchcenter/models"
)

// fakeStore services.Store 的内存假实现，只覆盖 HTTP 层测试需要的行为
type fakeStore struct {
	matches map[string]*models.Match
	stats   map[string]*models.MatchStats
	events  []models.MatchEvent
	chat    []models.ChatMessage

	failChatInsert bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		matches: make(map[string]*models.Match),
		stats:   make(map[string]*models.MatchStats),
	}
}

func (f *fakeStore) ListActiveMatches() ([]models.Match, error) {
	var out []models.Match
	for _, m := range f.matches {
		if !m.IsTerminal() {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (f *fakeStore) GetMatch(id string) (*models.Match, error) {
	m, ok := f.matches[id]
	if !ok {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (f *fakeStore) InsertMatch(m *models.Match) error {
	copied := *m
	f.matches[m.ID] = &copied
	return nil
}

func (f *fakeStore) UpdateMatch(m *models.Match) error {
	copied := *m
	f.matches[m.ID] = &copied
	return nil
}

func (f *fakeStore) InsertStats(s *models.MatchStats) error {
	copied := *s
	f.stats[s.MatchID] = &copied
	return nil
}

func (f *fakeStore) UpdateStats(s *models.MatchStats) error {
	return f.InsertStats(s)
}

func (f *fakeStore) GetStats(matchID string) (*models.MatchStats, error) {
	s, ok := f.stats[matchID]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (f *fakeStore) InsertEvent(matchID string, minute int, eventType string, payload interface{}) (*models.MatchEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	event := models.MatchEvent{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		Minute:    minute,
		Type:      eventType,
		Payload:   data,
		CreatedAt: time.Now(),
	}
	f.events = append(f.events, event)
	return &event, nil
}

func (f *fakeStore) ListEventsSince(matchID string, since time.Time, limit int) ([]models.MatchEvent, error) {
	var out []models.MatchEvent
	for _, e := range f.events {
		if e.MatchID == matchID && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListRecentEvents(matchID string, limit int) ([]models.MatchEvent, error) {
	var out []models.MatchEvent
	for _, e := range f.events {
		if e.MatchID == matchID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) InsertChatMessage(matchID, userID, userName, message string) (*models.ChatMessage, error) {
	if f.failChatInsert {
		return nil, fmt.Errorf("insert failed")
	}
	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		UserID:    userID,
		UserName:  userName,
		Message:   message,
		CreatedAt: time.Now(),
	}
	f.chat = append(f.chat, msg)
	return &msg, nil
}

func (f *fakeStore) CountsByStatus() (map[string]int, error) {
	counts := make(map[string]int)
	for _, m := range f.matches {
		counts[m.Status]++
	}
	return counts, nil
}
