package web

import (
	"context"
	"testing"

	"matchcenter/bus"
	"matchcenter/services"
)

func TestOutboundType(t *testing.T) {
	cases := []struct {
		topic string
		want  string
	}{
		{"match:abc:score", "match:score"},
		{"match:abc:event", "match:event"},
		{"match:abc:stats", "match:stats"},
		{"match:abc:odds", ""},
		{"garbage", ""},
	}

	for _, c := range cases {
		if got := OutboundType(c.topic); got != c.want {
			t.Errorf("OutboundType(%q) = %q, want %q", c.topic, got, c.want)
		}
	}
}

func TestBridgeRoutesToMatchRoom(t *testing.T) {
	b := bus.NewMemoryBus()
	hub := newTestHub(newFakeStore())

	bridge := NewBusBridge(b, hub)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("Bridge start failed: %v", err)
	}
	defer bridge.Stop()

	subscriber := newTestClient(hub, "sub")
	other := newTestClient(hub, "other")
	hub.register <- subscriber
	hub.register <- other
	hub.joinRoom(subscriber, services.MatchRoom(testMatchID))
	hub.joinRoom(other, services.MatchRoom("other-match"))

	if err := b.Publish(context.Background(), bus.ScoreTopic(testMatchID), map[string]interface{}{
		"matchId":   testMatchID,
		"homeScore": 2,
	}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	frame := readFrame(t, subscriber)
	if frame.Type != "match:score" {
		t.Errorf("Expected match:score, got %s", frame.Type)
	}
	if got := framePayload(t, frame)["homeScore"]; got != float64(2) {
		t.Errorf("Unexpected homeScore %v", got)
	}

	assertNoFrame(t, other)
}

func TestBridgeDropsUnknownTopics(t *testing.T) {
	b := bus.NewMemoryBus()
	hub := newTestHub(newFakeStore())

	bridge := NewBusBridge(b, hub)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("Bridge start failed: %v", err)
	}
	defer bridge.Stop()

	client := newTestClient(hub, "c1")
	hub.register <- client
	hub.joinRoom(client, services.MatchRoom(testMatchID))

	// 模式只覆盖 score/event/stats，其他后缀根本不会被订阅到
	b.Publish(context.Background(), "match:"+testMatchID+":odds", []byte(`{}`))
	assertNoFrame(t, client)
}
