package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/event"
)

// fakeAPI is a minimal stand-in for the conversation REST surface.
type fakeAPI struct {
	mu            sync.Mutex
	conversations []map[string]any
	histories     map[string][]Message
	readCalls     []string
	sentTexts     []string
	listCalls     int
	failRead      bool
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{
		histories: make(map[string][]Message),
		conversations: []map[string]any{
			{"id": "conv-a", "type": "private", "displayName": "Aisha", "displayId": "aisha",
				"lastMessage": map[string]any{"body": "salaam"}, "lastMessageAt": "2026-03-01T12:00:00Z", "unreadCount": 1},
			{"id": "conv-b", "type": "group", "displayName": "Quran Circle",
				"lastMessageAt": "2026-03-01T11:00:00Z", "unreadCount": 0},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(api.handle))
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) handle(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/conversations":
		a.listCalls++
		json.NewEncoder(w).Encode(map[string]any{"conversations": a.conversations})

	case r.Method == http.MethodGet && r.URL.Path == "/api/conversations/conv-a/messages":
		json.NewEncoder(w).Encode(map[string]any{"messages": a.histories["conv-a"]})

	case r.Method == http.MethodGet && r.URL.Path == "/api/conversations/conv-b/messages":
		json.NewEncoder(w).Encode(map[string]any{"messages": a.histories["conv-b"]})

	case r.Method == http.MethodPost && r.URL.Path == "/api/conversations/conv-a/read":
		if a.failRead {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "internal error"})
			return
		}
		a.readCalls = append(a.readCalls, "conv-a")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})

	case r.Method == http.MethodPost && r.URL.Path == "/api/conversations/conv-a/messages":
		var body struct {
			Text string `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		a.sentTexts = append(a.sentTexts, body.Text)
		msg := Message{
			ID: "srv-msg-1", ConversationID: "conv-a", SenderID: "me", SenderName: "me",
			Text: body.Text, CreatedAt: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"message": msg})

	default:
		http.NotFound(w, r)
	}
}

func (a *fakeAPI) reads() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.readCalls))
	copy(out, a.readCalls)
	return out
}

func (a *fakeAPI) lists() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listCalls
}

func startTestSession(t *testing.T) (*Session, *fakeAPI, *fakeSocketServer) {
	t.Helper()
	api, apiSrv := newFakeAPI(t)
	sock, sockSrv := newFakeSocketServer(t)

	session := NewSession(Options{
		SocketURL:      wsURL(sockSrv),
		BaseURL:        apiSrv.URL,
		Token:          "good-token",
		MaxRetries:     2,
		RetryBackoff:   20 * time.Millisecond,
		TypingDebounce: 30 * time.Millisecond,
		TypingIdle:     60 * time.Millisecond,
		TypingExpiry:   50 * time.Millisecond,
	})
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(session.Close)
	return session, api, sock
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSessionStartSeedsAndAcks(t *testing.T) {
	session, _, _ := startTestSession(t)

	waitFor(t, "handshake ack", func() bool { return session.Self() == "me" })

	convs := session.Conversations()
	assert.Len(t, convs, 2)
	assert.Equal(t, "conv-a", convs[0].ID)
	assert.Equal(t, "salaam", convs[0].LastMessage)
	assert.Equal(t, 1, convs[0].UnreadCount)
	assert.True(t, session.Connected())
}

func TestSessionPresence(t *testing.T) {
	session, _, sock := startTestSession(t)
	waitFor(t, "handshake ack", func() bool { return session.Self() == "me" })

	state, _ := event.New(event.EventPresenceState, event.PresenceStatePayload{Online: []string{"aisha", "bilal"}})
	sock.push(t, state)
	waitFor(t, "presence snapshot", func() bool { return session.IsOnline("bilal") })

	off, _ := event.New(event.EventPresenceOffline, event.PresencePayload{UserID: "bilal"})
	sock.push(t, off)
	waitFor(t, "bilal offline", func() bool { return !session.IsOnline("bilal") })
	assert.Equal(t, []string{"aisha"}, session.OnlineUsers())
}

func TestSessionUnreadAndDedup(t *testing.T) {
	session, api, sock := startTestSession(t)
	waitFor(t, "handshake ack", func() bool { return session.Self() == "me" })

	if err := session.SelectConversation(context.Background(), "conv-a"); err != nil {
		t.Fatalf("SelectConversation() failed: %v", err)
	}
	assert.Equal(t, []string{"conv-a"}, api.reads())

	// inbound message for a background conversation bumps its counter
	bg := event.Message{ID: "m-bg", ConversationID: "conv-b", SenderID: "bilal", SenderName: "Bilal",
		Text: "jumu'ah reminder", CreatedAt: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)}
	ev, _ := event.New(event.EventMessageNew, bg)
	sock.push(t, ev)
	waitFor(t, "unread bump", func() bool {
		conv, ok := session.store.Conversation("conv-b")
		return ok && conv.UnreadCount == 1
	})

	// the user's own send: REST echo lands first, the broadcast is a dup
	sent, err := session.SendMessage(context.Background(), "wa alaikum salaam")
	if err != nil {
		t.Fatalf("SendMessage() failed: %v", err)
	}
	assert.Equal(t, "srv-msg-1", sent.ID)

	echo, _ := event.New(event.EventMessageNew, event.Message{
		ID: sent.ID, ConversationID: sent.ConversationID, SenderID: sent.SenderID,
		SenderName: sent.SenderName, Text: sent.Text, CreatedAt: sent.CreatedAt,
	})
	sock.push(t, echo)

	// a later message on the same socket proves the echo was processed;
	// events apply in order
	follow, _ := event.New(event.EventMessageNew, event.Message{
		ID: "m-follow", ConversationID: "conv-a", SenderID: "aisha", SenderName: "Aisha",
		Text: "barakallahu feek", CreatedAt: time.Date(2026, 3, 1, 13, 1, 0, 0, time.UTC),
	})
	sock.push(t, follow)
	waitFor(t, "follow-up message", func() bool { return len(session.Messages()) == 2 })

	msgs := session.Messages()
	assert.Equal(t, "srv-msg-1", msgs[0].ID)
	assert.Equal(t, "m-follow", msgs[1].ID)

	// active conversation stays read
	conv, _ := session.ActiveConversation()
	assert.Equal(t, 0, conv.UnreadCount)
}

func TestSessionSelectIsIdempotent(t *testing.T) {
	session, api, _ := startTestSession(t)
	waitFor(t, "handshake ack", func() bool { return session.Self() == "me" })

	if err := session.SelectConversation(context.Background(), "conv-a"); err != nil {
		t.Fatalf("SelectConversation() failed: %v", err)
	}
	if err := session.SelectConversation(context.Background(), "conv-a"); err != nil {
		t.Fatalf("SelectConversation() failed: %v", err)
	}
	// re-selecting must not re-mark
	assert.Equal(t, []string{"conv-a"}, api.reads())
}

func TestSessionSelectReportsMarkReadFailure(t *testing.T) {
	session, api, _ := startTestSession(t)
	waitFor(t, "handshake ack", func() bool { return session.Self() == "me" })

	api.mu.Lock()
	api.failRead = true
	api.mu.Unlock()

	err := session.SelectConversation(context.Background(), "conv-a")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)

	// the conversation is still on screen and locally read; only the
	// server-side receipt is outstanding
	conv, ok := session.ActiveConversation()
	if !ok {
		t.Fatal("conversation should still be active")
	}
	assert.Equal(t, "conv-a", conv.ID)
	assert.Equal(t, 0, conv.UnreadCount)
}

func TestSessionRemoteTyping(t *testing.T) {
	session, _, sock := startTestSession(t)
	waitFor(t, "handshake ack", func() bool { return session.Self() == "me" })

	start, _ := event.New(event.EventTypingStart, event.TypingPayload{ConversationID: "conv-a", UserID: "aisha"})
	sock.push(t, start)
	waitFor(t, "aisha typing", func() bool {
		typists := session.Typists("conv-a")
		return len(typists) == 1 && typists[0] == "aisha"
	})

	// the relay echoing our own signal back must not show us as typing
	self, _ := event.New(event.EventTypingStart, event.TypingPayload{ConversationID: "conv-a", UserID: "me"})
	sock.push(t, self)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"aisha"}, session.Typists("conv-a"))

	stop, _ := event.New(event.EventTypingStop, event.TypingPayload{ConversationID: "conv-a", UserID: "aisha"})
	sock.push(t, stop)
	waitFor(t, "aisha stopped", func() bool { return len(session.Typists("conv-a")) == 0 })
}

func TestSessionConversationCreatedRefetches(t *testing.T) {
	session, api, sock := startTestSession(t)
	waitFor(t, "handshake ack", func() bool { return session.Self() == "me" })

	api.mu.Lock()
	api.conversations = append(api.conversations, map[string]any{
		"id": "conv-new", "type": "group", "displayName": "Arabic 101",
		"lastMessageAt": "2026-03-01T13:00:00Z", "unreadCount": 0,
	})
	api.mu.Unlock()

	created, _ := event.New(event.EventConversationCreated, event.ConversationCreatedPayload{
		ConversationID: "conv-new", ConversationType: "group", ConversationName: "Arabic 101", CreatedBy: "imam",
	})
	sock.push(t, created)

	waitFor(t, "conversation list refetch", func() bool {
		_, ok := session.store.Conversation("conv-new")
		return ok
	})
	assert.GreaterOrEqual(t, api.lists(), 2)
}

func TestSessionSendWithoutActiveConversation(t *testing.T) {
	session, _, _ := startTestSession(t)
	waitFor(t, "handshake ack", func() bool { return session.Self() == "me" })

	_, err := session.SendMessage(context.Background(), "hello?")
	assert.ErrorIs(t, err, ErrNoActiveConversation)
}
