package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/auth"
	"github.com/Manzilah-gp/manzilah-web-sub001/internal/event"
)

var testSecret = []byte("hub-test-secret")

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := NewHub(testSecret, nil, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(func() {
		srv.Close()
		h.Stop()
	})
	return h, srv
}

// dialAs connects as the given user and consumes the handshake ack plus the
// presence snapshot, returning the live socket.
func dialAs(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	token, err := auth.NewToken(testSecret, userID, userID, "student", time.Hour)
	if err != nil {
		t.Fatalf("NewToken() failed: %v", err)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial as %s failed: %v", userID, err)
	}
	t.Cleanup(func() { conn.Close() })

	ack := readEvent(t, conn)
	assert.Equal(t, event.EventConnectionAck, ack.Event)
	state := readEvent(t, conn)
	assert.Equal(t, event.EventPresenceState, state.Event)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) event.WsEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev event.WsEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON() failed: %v", err)
	}
	return ev
}

func sendEvent(t *testing.T, conn *websocket.Conn, name string, payload any) {
	t.Helper()
	ev, err := event.New(name, payload)
	if err != nil {
		t.Fatalf("event.New() failed: %v", err)
	}
	if err := conn.WriteJSON(ev); err != nil {
		t.Fatalf("WriteJSON() failed: %v", err)
	}
}

func waitOnline(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(h.OnlineUsers()) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d online users, have %v", want, h.OnlineUsers())
}

func TestServeWSRejectsBadToken(t *testing.T) {
	_, srv := newTestHub(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	assert.Error(t, err)
	if resp == nil {
		t.Fatal("expected an http response")
	}
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer not-a-token")
	_, resp, err = websocket.DefaultDialer.Dial(url, header)
	assert.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPresenceLifecycle(t *testing.T) {
	h, srv := newTestHub(t)

	connA := dialAs(t, srv, "user-a")
	waitOnline(t, h, 1)

	// second user: A sees the online toggle
	connB := dialAs(t, srv, "user-b")
	waitOnline(t, h, 2)

	online := readEvent(t, connA)
	assert.Equal(t, event.EventPresenceOnline, online.Event)
	var p event.PresencePayload
	if err := json.Unmarshal(online.Payload, &p); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	assert.Equal(t, "user-b", p.UserID)

	// second tab for user-b: no extra presence traffic expected
	dialAs(t, srv, "user-b")
	waitOnline(t, h, 2)

	connB.Close()
	// user-b still has a live tab, so no offline yet
	time.Sleep(50 * time.Millisecond)
	assert.ElementsMatch(t, []string{"user-a", "user-b"}, h.OnlineUsers())
}

func TestTypingRelayStampsSender(t *testing.T) {
	_, srv := newTestHub(t)

	connA := dialAs(t, srv, "user-a")
	connB := dialAs(t, srv, "user-b")
	_ = readEvent(t, connA) // user-b online

	sendEvent(t, connA, event.EventRoomJoin, event.RoomPayload{ConversationID: "conv-1"})
	sendEvent(t, connB, event.EventRoomJoin, event.RoomPayload{ConversationID: "conv-1"})
	time.Sleep(50 * time.Millisecond) // joins are async

	// peer-supplied sender id must be overwritten with the authenticated one
	sendEvent(t, connA, event.EventTypingStart, event.TypingPayload{ConversationID: "conv-1", UserID: "spoofed"})

	relayed := readEvent(t, connB)
	assert.Equal(t, event.EventTypingStart, relayed.Event)
	var typing event.TypingPayload
	if err := json.Unmarshal(relayed.Payload, &typing); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	assert.Equal(t, "user-a", typing.UserID)
	assert.Equal(t, "conv-1", typing.ConversationID)

	// the sender gets no echo
	connA.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var echo event.WsEvent
	assert.Error(t, connA.ReadJSON(&echo))
}

func TestTypingRelayWithoutSenderID(t *testing.T) {
	_, srv := newTestHub(t)

	connA := dialAs(t, srv, "user-a")
	connB := dialAs(t, srv, "user-b")
	_ = readEvent(t, connA) // user-b online

	sendEvent(t, connA, event.EventRoomJoin, event.RoomPayload{ConversationID: "conv-1"})
	sendEvent(t, connB, event.EventRoomJoin, event.RoomPayload{ConversationID: "conv-1"})
	time.Sleep(50 * time.Millisecond)

	// the sdk sends only the conversation id; the relay must still go out,
	// stamped with the authenticated sender
	sendEvent(t, connA, event.EventTypingStart, event.TypingPayload{ConversationID: "conv-1"})

	relayed := readEvent(t, connB)
	assert.Equal(t, event.EventTypingStart, relayed.Event)
	var typing event.TypingPayload
	if err := json.Unmarshal(relayed.Payload, &typing); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	assert.Equal(t, "user-a", typing.UserID)

	sendEvent(t, connA, event.EventTypingStop, event.TypingPayload{ConversationID: "conv-1"})
	relayed = readEvent(t, connB)
	assert.Equal(t, event.EventTypingStop, relayed.Event)
}

func TestTypingOutsideRoomNotRelayed(t *testing.T) {
	_, srv := newTestHub(t)

	connA := dialAs(t, srv, "user-a")
	connB := dialAs(t, srv, "user-b")
	_ = readEvent(t, connA) // user-b online

	// only A joins; B never subscribed to the room
	sendEvent(t, connA, event.EventRoomJoin, event.RoomPayload{ConversationID: "conv-1"})
	time.Sleep(50 * time.Millisecond)

	sendEvent(t, connA, event.EventTypingStart, event.TypingPayload{ConversationID: "conv-1"})

	connB.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var ev event.WsEvent
	assert.Error(t, connB.ReadJSON(&ev))
}

func TestNotifyParticipants(t *testing.T) {
	h, srv := newTestHub(t)

	connA := dialAs(t, srv, "user-a")
	connB := dialAs(t, srv, "user-b")
	_ = readEvent(t, connA) // user-b online
	waitOnline(t, h, 2)

	msg, err := event.New(event.EventMessageNew, event.Message{
		ID: "m1", ConversationID: "conv-1", SenderID: "user-a", SenderName: "A", Text: "salaam",
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("event.New() failed: %v", err)
	}
	// user-c is offline; delivery silently skips them
	h.NotifyParticipants([]string{"user-a", "user-b", "user-c"}, msg)

	for _, conn := range []*websocket.Conn{connA, connB} {
		got := readEvent(t, conn)
		assert.Equal(t, event.EventMessageNew, got.Event)
	}
}

func TestSnapshot(t *testing.T) {
	h, srv := newTestHub(t)

	connA := dialAs(t, srv, "user-a")
	dialAs(t, srv, "user-b")
	_ = readEvent(t, connA) // user-b online
	waitOnline(t, h, 2)

	sendEvent(t, connA, event.EventRoomJoin, event.RoomPayload{ConversationID: "conv-1"})
	time.Sleep(50 * time.Millisecond)

	stats := h.Snapshot()
	assert.Equal(t, 2, stats.Connections.TotalConnections)
	assert.Equal(t, 2, stats.Connections.TotalUsers)
	assert.Equal(t, []string{"user-a", "user-b"}, stats.OnlineUsers)
	if len(stats.Rooms) != 1 {
		t.Fatalf("expected 1 room, got %d", len(stats.Rooms))
	}
	assert.Equal(t, "conv-1", stats.Rooms[0].ConversationID)
	assert.Equal(t, 1, stats.Rooms[0].JoinedClients)
}
