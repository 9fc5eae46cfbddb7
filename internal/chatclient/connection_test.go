package chatclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/event"
)

// fakeSocketServer accepts websocket upgrades, acks the handshake and records
// every inbound envelope. rejectAuth makes it refuse the upgrade like the real
// server does for a bad credential.
type fakeSocketServer struct {
	t          *testing.T
	upgrader   websocket.Upgrader
	rejectAuth bool

	mu       sync.Mutex
	conns    []*websocket.Conn
	inbound  []event.WsEvent
	upgrades int

	// gorilla allows one concurrent writer per conn; the handler goroutine
	// (ack) and the test goroutine (push) share this lock
	writeMu sync.Mutex
}

func (f *fakeSocketServer) writeJSON(conn *websocket.Conn, v any) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func newFakeSocketServer(t *testing.T) (*fakeSocketServer, *httptest.Server) {
	t.Helper()
	fake := &fakeSocketServer{t: t}
	srv := httptest.NewServer(http.HandlerFunc(fake.handle))
	t.Cleanup(func() {
		fake.closeAll()
		srv.Close()
	})
	return fake, srv
}

func (f *fakeSocketServer) handle(w http.ResponseWriter, r *http.Request) {
	if f.rejectAuth || r.Header.Get("Authorization") != "Bearer good-token" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.upgrades++
	f.mu.Unlock()

	ack, _ := event.New(event.EventConnectionAck, event.AckPayload{UserID: "me"})
	if err := f.writeJSON(conn, ack); err != nil {
		return
	}

	for {
		var envelope event.WsEvent
		if err := conn.ReadJSON(&envelope); err != nil {
			return
		}
		f.mu.Lock()
		f.inbound = append(f.inbound, envelope)
		f.mu.Unlock()
	}
}

func (f *fakeSocketServer) push(t *testing.T, ev event.WsEvent) {
	t.Helper()
	f.mu.Lock()
	if len(f.conns) == 0 {
		f.mu.Unlock()
		t.Fatal("no connection to push to")
	}
	conn := f.conns[len(f.conns)-1]
	f.mu.Unlock()

	if err := f.writeJSON(conn, ev); err != nil {
		t.Fatalf("push failed: %v", err)
	}
}

func (f *fakeSocketServer) dropAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conn := range f.conns {
		conn.Close()
	}
	f.conns = nil
}

func (f *fakeSocketServer) closeAll() {
	f.dropAll()
}

func (f *fakeSocketServer) received() []event.WsEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]event.WsEvent, len(f.inbound))
	copy(out, f.inbound)
	return out
}

func (f *fakeSocketServer) upgradeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upgrades
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testOptions(srv *httptest.Server) Options {
	return Options{
		SocketURL:    wsURL(srv),
		Token:        "good-token",
		MaxRetries:   2,
		RetryBackoff: 20 * time.Millisecond,
	}
}

func waitReceived(t *testing.T, f *fakeSocketServer, want int) []event.WsEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.received(); len(got) >= want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d inbound envelopes, got %d", want, len(f.received()))
	return nil
}

func TestConnectRequiresToken(t *testing.T) {
	_, err := Connect(context.Background(), Options{SocketURL: "ws://irrelevant"})
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestConnectAuthRejected(t *testing.T) {
	fake, srv := newFakeSocketServer(t)
	fake.rejectAuth = true

	opts := testOptions(srv)
	_, err := Connect(context.Background(), opts)
	assert.ErrorIs(t, err, ErrAuthRejected)
}

func TestConnectDeliversAck(t *testing.T) {
	_, srv := newFakeSocketServer(t)

	conn, err := Connect(context.Background(), testOptions(srv))
	if err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	defer conn.Disconnect()

	assert.True(t, conn.Connected())

	select {
	case ev := <-conn.Events():
		ack, ok := ev.(event.ConnectionAck)
		if !ok {
			t.Fatalf("expected ConnectionAck, got %T", ev)
		}
		assert.Equal(t, "me", ack.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("no ack delivered")
	}
}

func TestJoinRoomIdempotent(t *testing.T) {
	fake, srv := newFakeSocketServer(t)

	conn, err := Connect(context.Background(), testOptions(srv))
	if err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	defer conn.Disconnect()

	if err := conn.JoinRoom("conv-a"); err != nil {
		t.Fatalf("JoinRoom() failed: %v", err)
	}
	_ = conn.JoinRoom("conv-a") // already joined: no frame

	got := waitReceived(t, fake, 1)
	assert.Len(t, got, 1)
	assert.Equal(t, event.EventRoomJoin, got[0].Event)

	_ = conn.LeaveRoom("conv-a")
	_ = conn.LeaveRoom("conv-a") // already left: no frame

	got = waitReceived(t, fake, 2)
	assert.Len(t, got, 2)
	assert.Equal(t, event.EventRoomLeave, got[1].Event)
}

func TestReconnectRejoinsRooms(t *testing.T) {
	fake, srv := newFakeSocketServer(t)

	conn, err := Connect(context.Background(), testOptions(srv))
	if err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	defer conn.Disconnect()

	if err := conn.JoinRoom("conv-a"); err != nil {
		t.Fatalf("JoinRoom() failed: %v", err)
	}
	waitReceived(t, fake, 1)

	fake.dropAll()

	// the second ack proves the reconnect; the rejoin follows it
	deadline := time.Now().Add(2 * time.Second)
	for fake.upgradeCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 2, fake.upgradeCount())

	got := waitReceived(t, fake, 2)
	assert.Equal(t, event.EventRoomJoin, got[1].Event)
	assert.True(t, conn.Connected())
}

func TestReconnectGivesUp(t *testing.T) {
	fake, srv := newFakeSocketServer(t)

	conn, err := Connect(context.Background(), testOptions(srv))
	if err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	defer conn.Disconnect()

	// refuse all further upgrades, then drop the live socket
	fake.rejectAuth = true
	fake.dropAll()

	// drain until the channel closes
	timeout := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-conn.Events():
			if !ok {
				assert.False(t, conn.Connected())
				assert.Error(t, conn.Err())
				return
			}
		case <-timeout:
			t.Fatal("events channel never closed")
		}
	}
}

func TestDisconnectClosesEvents(t *testing.T) {
	_, srv := newFakeSocketServer(t)

	conn, err := Connect(context.Background(), testOptions(srv))
	if err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}

	conn.Disconnect()
	conn.Disconnect() // second call is a no-op

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-conn.Events():
			if !ok {
				assert.False(t, conn.Connected())
				assert.True(t, errors.Is(conn.Err(), ErrConnectionClosed))
				return
			}
		case <-timeout:
			t.Fatal("events channel never closed")
		}
	}
}

func TestConnectionDeliversDecodedEvents(t *testing.T) {
	fake, srv := newFakeSocketServer(t)

	conn, err := Connect(context.Background(), testOptions(srv))
	if err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	defer conn.Disconnect()

	<-conn.Events() // ack

	online, _ := event.New(event.EventPresenceOnline, event.PresencePayload{UserID: "aisha"})
	fake.push(t, online)

	select {
	case ev := <-conn.Events():
		p, ok := ev.(event.PresenceOnline)
		if !ok {
			t.Fatalf("expected PresenceOnline, got %T", ev)
		}
		assert.Equal(t, "aisha", p.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("presence event not delivered")
	}
}
