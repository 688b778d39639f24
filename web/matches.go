package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"matchcenter/models"
)

// handleHealth 健康检查
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// handleGetMatches 列出未结束的比赛
func (s *Server) handleGetMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := s.store.ListActiveMatches()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []models.Match{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"matches": matches,
	})
}

// handleGetMatch 比赛详情：比赛记录、最近 20 条事件和统计
func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["id"]

	match, err := s.store.GetMatch(matchID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if match == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "match not found",
		})
		return
	}

	events, err := s.store.ListRecentEvents(matchID, 20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []models.MatchEvent{}
	}

	stats, err := s.store.GetStats(matchID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"match":  match,
		"events": events,
		"stats":  stats,
	})
}
