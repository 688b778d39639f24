package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"matchcenter/bus"
	"matchcenter/logger"
)

// streamPageSize 补发历史事件的单次上限
const streamPageSize = 50

// handleMatchEventStream 一场比赛的 SSE 补发流：
// 先发 connected 确认，带 since 游标时补发错过的事件，然后订阅总线实时转发。
// 每条投递带自增的 delivery id；客户端断开时先退订再释放流。
func (s *Server) handleMatchEventStream(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["id"]
	if _, err := uuid.Parse(matchID); err != nil {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid since cursor, expected RFC3339 timestamp", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	deliveryID := 0
	send := func(event string, data []byte) {
		deliveryID++
		fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", deliveryID, event, data)
		flusher.Flush()
	}
	sendJSON := func(event string, payload interface{}) {
		data, err := json.Marshal(payload)
		if err != nil {
			logger.Errorf("[Stream] Failed to marshal %s payload: %v", event, err)
			return
		}
		send(event, data)
	}

	sendJSON("connected", map[string]interface{}{
		"matchId":   matchID,
		"timestamp": time.Now().Format(time.RFC3339),
	})

	// 补发游标之后的历史事件，按时间升序
	if !since.IsZero() {
		events, err := s.store.ListEventsSince(matchID, since, streamPageSize)
		if err != nil {
			logger.Errorf("[Stream] Failed to load events for match %s: %v", matchID, err)
		} else {
			for i := range events {
				sendJSON("match:event", &events[i])
			}
		}
	}

	sub, err := s.bus.Subscribe(r.Context(), bus.MatchTopics(matchID)...)
	if err != nil {
		logger.Errorf("[Stream] Failed to subscribe for match %s: %v", matchID, err)
		return
	}
	defer sub.Close()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			event := OutboundType(msg.Topic)
			if event == "" {
				continue
			}
			send(event, msg.Payload)
		}
	}
}
