package web

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestPayloadValidation(t *testing.T) {
	long := strings.Repeat("x", 65)

	cases := []struct {
		name    string
		payload interface{ validate() error }
		wantErr bool
	}{
		{"valid subscription", &matchSubscriptionPayload{MatchID: testMatchID}, false},
		{"missing matchId", &matchSubscriptionPayload{}, true},
		{"matchId not a uuid", &matchSubscriptionPayload{MatchID: "match-1"}, true},

		{"valid join", &chatJoinPayload{MatchID: testMatchID, UserID: "u1", UserName: "Alice"}, false},
		{"join without tabId", &chatJoinPayload{MatchID: testMatchID, UserID: "u1", UserName: "Alice", TabID: ""}, false},
		{"join userId too long", &chatJoinPayload{MatchID: testMatchID, UserID: long, UserName: "Alice"}, true},
		{"join tabId too long", &chatJoinPayload{MatchID: testMatchID, UserID: "u1", UserName: "Alice", TabID: long}, true},
		{"join missing userName", &chatJoinPayload{MatchID: testMatchID, UserID: "u1"}, true},

		{"valid leave", &chatLeavePayload{MatchID: testMatchID, UserID: "u1"}, false},
		{"leave missing userId", &chatLeavePayload{MatchID: testMatchID}, true},

		{"valid message", &chatMessagePayload{MatchID: testMatchID, UserID: "u1", UserName: "Alice", Message: "hi"}, false},
		{"empty message", &chatMessagePayload{MatchID: testMatchID, UserID: "u1", UserName: "Alice"}, true},
		{"message too long", &chatMessagePayload{MatchID: testMatchID, UserID: "u1", UserName: "Alice", Message: strings.Repeat("x", 281)}, true},
		{"message at limit", &chatMessagePayload{MatchID: testMatchID, UserID: "u1", UserName: "Alice", Message: strings.Repeat("x", 280)}, false},

		{"valid typing start", &typingStartPayload{MatchID: testMatchID, UserID: "u1", UserName: "Alice"}, false},
		{"typing start missing userName", &typingStartPayload{MatchID: testMatchID, UserID: "u1"}, true},
		{"valid typing stop", &typingStopPayload{MatchID: testMatchID, UserID: "u1"}, false},
		{"typing stop bad matchId", &typingStopPayload{MatchID: "nope", UserID: "u1"}, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.payload.validate()
			if c.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !c.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestUnknownActionType(t *testing.T) {
	hub := newTestHub(newFakeStore())
	client := newTestClient(hub, "c1")
	hub.register <- client

	client.handleMessage([]byte(`{"type":"chat:nuke","payload":{}}`))

	frame := readFrame(t, client)
	if frame.Type != "error" {
		t.Fatalf("Expected error frame, got %s", frame.Type)
	}
	if got := framePayload(t, frame)["code"]; got != "BAD_REQUEST" {
		t.Errorf("Expected BAD_REQUEST, got %v", got)
	}
}

func TestInvalidPayloadOnlyNotifiesSender(t *testing.T) {
	hub := newTestHub(newFakeStore())
	sender := newTestClient(hub, "sender")
	other := newTestClient(hub, "other")
	hub.register <- sender
	hub.register <- other
	hub.joinRoom(other, "chat:"+testMatchID)

	sender.handleMessage([]byte(`{"type":"chat:message","payload":{"matchId":"bad","userId":"u1","userName":"Alice","message":"hi"}}`))

	frame := readFrame(t, sender)
	if frame.Type != "error" {
		t.Fatalf("Expected error frame, got %s", frame.Type)
	}
	assertNoFrame(t, other)
}

func TestChatJoinBroadcastsUserJoined(t *testing.T) {
	hub := newTestHub(newFakeStore())
	client := newTestClient(hub, "c1")
	hub.register <- client

	join := fmt.Sprintf(`{"type":"chat:join","payload":{"matchId":%q,"userId":"u1","userName":"Alice","tabId":"tab-1"}}`, testMatchID)
	client.handleMessage([]byte(join))

	frame := readFrame(t, client)
	if frame.Type != "chat:user_joined" {
		t.Fatalf("Expected chat:user_joined, got %s", frame.Type)
	}
	payload := framePayload(t, frame)
	if payload["userName"] != "Alice" {
		t.Errorf("Unexpected userName %v", payload["userName"])
	}
	if payload["userCount"] != float64(1) {
		t.Errorf("Expected userCount 1, got %v", payload["userCount"])
	}

	if got := hub.realtime.GetUserCount(testMatchID); got != 1 {
		t.Errorf("Expected presence registered, user count %d", got)
	}
	if got := client.snapshotPresence(); len(got) != 1 || got[0].TabID != "tab-1" {
		t.Errorf("Unexpected presence entries %v", got)
	}
}

func TestChatJoinDefaultsTabIDToConnection(t *testing.T) {
	hub := newTestHub(newFakeStore())
	client := newTestClient(hub, "conn-9")
	hub.register <- client

	join := fmt.Sprintf(`{"type":"chat:join","payload":{"matchId":%q,"userId":"u1","userName":"Alice"}}`, testMatchID)
	client.handleMessage([]byte(join))
	readFrame(t, client)

	if got := client.snapshotPresence(); len(got) != 1 || got[0].TabID != "conn-9" {
		t.Errorf("Expected tabId to default to connection id, got %v", got)
	}
}

func TestChatMessageStoredAndBroadcast(t *testing.T) {
	store := newFakeStore()
	hub := newTestHub(store)
	client := newTestClient(hub, "c1")
	hub.register <- client
	hub.joinRoom(client, "chat:"+testMatchID)

	msg := fmt.Sprintf(`{"type":"chat:message","payload":{"matchId":%q,"userId":"u1","userName":"Alice","message":"  hello  "}}`, testMatchID)
	client.handleMessage([]byte(msg))

	frame := readFrame(t, client)
	if frame.Type != "chat:message" {
		t.Fatalf("Expected chat:message, got %s", frame.Type)
	}

	if len(store.chat) != 1 {
		t.Fatalf("Expected 1 stored message, got %d", len(store.chat))
	}
	if store.chat[0].Message != "hello" {
		t.Errorf("Expected trimmed message, got %q", store.chat[0].Message)
	}
}

func TestWhitespaceOnlyMessageRejected(t *testing.T) {
	store := newFakeStore()
	hub := newTestHub(store)
	client := newTestClient(hub, "c1")
	hub.register <- client

	msg := fmt.Sprintf(`{"type":"chat:message","payload":{"matchId":%q,"userId":"u1","userName":"Alice","message":"   "}}`, testMatchID)
	client.handleMessage([]byte(msg))

	frame := readFrame(t, client)
	if frame.Type != "error" {
		t.Fatalf("Expected error frame, got %s", frame.Type)
	}
	if got := framePayload(t, frame)["message"]; got != "Message cannot be empty" {
		t.Errorf("Unexpected error message %v", got)
	}
	if len(store.chat) != 0 {
		t.Errorf("Expected no stored messages, got %d", len(store.chat))
	}
}

func TestChatMessageRateLimited(t *testing.T) {
	store := newFakeStore()
	hub := newTestHub(store)
	// 固定时钟，避免测试跨越限流窗口边界
	fixed := time.Now()
	hub.realtime.SetNow(func() time.Time { return fixed })
	client := newTestClient(hub, "c1")
	hub.register <- client
	hub.joinRoom(client, "chat:"+testMatchID)

	msg := fmt.Sprintf(`{"type":"chat:message","payload":{"matchId":%q,"userId":"u1","userName":"Alice","message":"hi"}}`, testMatchID)
	for i := 0; i < 5; i++ {
		client.handleMessage([]byte(msg))
		if frame := readFrame(t, client); frame.Type != "chat:message" {
			t.Fatalf("Message %d: expected chat:message, got %s", i+1, frame.Type)
		}
	}

	client.handleMessage([]byte(msg))
	frame := readFrame(t, client)
	if frame.Type != "error" {
		t.Fatalf("Expected error frame, got %s", frame.Type)
	}
	if got := framePayload(t, frame)["code"]; got != "RATE_LIMIT" {
		t.Errorf("Expected RATE_LIMIT, got %v", got)
	}
	if len(store.chat) != 5 {
		t.Errorf("Expected 5 stored messages, got %d", len(store.chat))
	}
}

func TestChatMessageStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failChatInsert = true
	hub := newTestHub(store)
	client := newTestClient(hub, "c1")
	hub.register <- client
	hub.joinRoom(client, "chat:"+testMatchID)

	msg := fmt.Sprintf(`{"type":"chat:message","payload":{"matchId":%q,"userId":"u1","userName":"Alice","message":"hi"}}`, testMatchID)
	client.handleMessage([]byte(msg))

	frame := readFrame(t, client)
	if frame.Type != "error" {
		t.Fatalf("Expected error frame, got %s", frame.Type)
	}
	if got := framePayload(t, frame)["code"]; got != "INTERNAL" {
		t.Errorf("Expected INTERNAL, got %v", got)
	}
}

func TestTypingStartBroadcast(t *testing.T) {
	hub := newTestHub(newFakeStore())
	client := newTestClient(hub, "c1")
	hub.register <- client
	hub.joinRoom(client, "chat:"+testMatchID)

	start := fmt.Sprintf(`{"type":"chat:typing_start","payload":{"matchId":%q,"userId":"u1","userName":"Alice"}}`, testMatchID)
	client.handleMessage([]byte(start))

	frame := readFrame(t, client)
	if frame.Type != "chat:typing" {
		t.Fatalf("Expected chat:typing, got %s", frame.Type)
	}
	payload := framePayload(t, frame)
	if payload["isTyping"] != true {
		t.Errorf("Expected isTyping true, got %v", payload["isTyping"])
	}

	stop := fmt.Sprintf(`{"type":"chat:typing_stop","payload":{"matchId":%q,"userId":"u1"}}`, testMatchID)
	client.handleMessage([]byte(stop))

	frame = readFrame(t, client)
	if framePayload(t, frame)["isTyping"] != false {
		t.Errorf("Expected isTyping false after stop")
	}
}

func TestRateLimitErrorCountsAttempt(t *testing.T) {
	// 被限流的尝试同样计入窗口
	store := newFakeStore()
	hub := newTestHub(store)
	fixed := time.Now()
	hub.realtime.SetNow(func() time.Time { return fixed })
	client := newTestClient(hub, "c1")
	hub.register <- client
	hub.joinRoom(client, "chat:"+testMatchID)

	msg := fmt.Sprintf(`{"type":"chat:message","payload":{"matchId":%q,"userId":"u1","userName":"Alice","message":"hi"}}`, testMatchID)
	for i := 0; i < 8; i++ {
		client.handleMessage([]byte(msg))
		readFrame(t, client)
	}
	if len(store.chat) != 5 {
		t.Errorf("Expected 5 stored messages, got %d", len(store.chat))
	}
}
