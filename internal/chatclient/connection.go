package chatclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/event"
)

var (
	// ErrNoToken means Connect was called without a credential. No connection
	// attempt is made; this is a precondition failure, not a retryable error.
	ErrNoToken = errors.New("chatclient: auth token required")

	// ErrAuthRejected means the server refused the handshake credential. The
	// connection is not retried; the caller must re-authenticate.
	ErrAuthRejected = errors.New("chatclient: handshake rejected, re-authentication required")

	// ErrConnectionClosed means the connection was torn down, either
	// explicitly or after the retry budget ran out.
	ErrConnectionClosed = errors.New("chatclient: connection closed")
)

const (
	defaultMaxRetries       = 5
	defaultRetryBackoff     = time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

// Connection owns one live socket for an authenticated session. It dials,
// waits for the server's handshake acknowledgement, keeps a joined-room set,
// and reconnects with explicit, bounded backoff on unexpected drops.
// Connection problems are exposed as state (Connected, Err), never as panics
// or surprise errors on unrelated calls.
type Connection struct {
	socketURL string
	token     string

	maxRetries       int
	retryBackoff     time.Duration
	handshakeTimeout time.Duration
	logger           *zap.Logger

	events chan event.Event

	connected atomic.Bool

	mu      sync.Mutex // guards conn, joined, err
	conn    *websocket.Conn
	joined  map[string]struct{}
	lastErr error

	writeMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Connect validates the credential, dials the socket server and waits for the
// handshake acknowledgement. An empty token fails fast with ErrNoToken. A 401
// or 403 during the upgrade returns ErrAuthRejected; any other failure is a
// transient error the caller may retry.
func Connect(ctx context.Context, opts Options) (*Connection, error) {
	if opts.Token == "" {
		return nil, ErrNoToken
	}
	opts = opts.withDefaults()

	connCtx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		socketURL:        opts.SocketURL,
		token:            opts.Token,
		maxRetries:       opts.MaxRetries,
		retryBackoff:     opts.RetryBackoff,
		handshakeTimeout: opts.HandshakeTimeout,
		logger:           opts.Logger,
		events:           make(chan event.Event, 64),
		joined:           make(map[string]struct{}),
		ctx:              connCtx,
		cancel:           cancel,
	}

	if err := c.dial(ctx); err != nil {
		cancel()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

// Events is the stream of decoded inbound events. It closes when the
// connection is permanently down (explicit disconnect, auth rejection on
// reconnect, or retry budget exhausted); check Err afterwards.
func (c *Connection) Events() <-chan event.Event {
	return c.events
}

// Connected reports whether the handshake-acknowledged socket is up.
func (c *Connection) Connected() bool {
	return c.connected.Load()
}

// Err returns the error that permanently ended the connection, if any.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// dial opens the socket, authenticates, waits for the ack event and rejoins
// any previously joined rooms.
func (c *Connection) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, resp, err := dialer.DialContext(ctx, c.socketURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return ErrAuthRejected
		}
		return fmt.Errorf("chatclient: dial %s: %w", c.socketURL, err)
	}

	// the connection only counts once the server acknowledges the handshake
	conn.SetReadDeadline(time.Now().Add(c.handshakeTimeout))
	var envelope event.WsEvent
	if err := conn.ReadJSON(&envelope); err != nil {
		conn.Close()
		return fmt.Errorf("chatclient: waiting for handshake ack: %w", err)
	}
	decoded, err := event.Decode(envelope)
	if err != nil {
		conn.Close()
		return fmt.Errorf("chatclient: bad handshake ack: %w", err)
	}
	ack, ok := decoded.(event.ConnectionAck)
	if !ok {
		conn.Close()
		return fmt.Errorf("chatclient: expected %s, got %s", event.EventConnectionAck, envelope.Event)
	}
	conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.conn = conn
	rooms := make([]string, 0, len(c.joined))
	for id := range c.joined {
		rooms = append(rooms, id)
	}
	c.mu.Unlock()
	c.connected.Store(true)

	// re-establish room interest after a reconnect
	for _, id := range rooms {
		if err := c.send(event.EventRoomJoin, event.RoomPayload{ConversationID: id}); err != nil {
			c.logger.Warn("rejoin failed", zap.String("conversation_id", id), zap.Error(err))
		}
	}

	c.deliver(ack)
	return nil
}

// readLoop pumps inbound events and drives reconnection. It is the only
// reader of the socket.
func (c *Connection) readLoop() {
	defer close(c.events)

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		var envelope event.WsEvent
		err := conn.ReadJSON(&envelope)
		if err == nil {
			decoded, decodeErr := event.Decode(envelope)
			if decodeErr != nil {
				// fail closed: drop the event, keep the loop alive
				c.logger.Warn("dropping undecodable event", zap.Error(decodeErr))
				continue
			}
			c.deliver(decoded)
			continue
		}

		c.connected.Store(false)
		conn.Close()

		select {
		case <-c.ctx.Done():
			return
		default:
		}

		if !c.reconnect() {
			return
		}
	}
}

// reconnect retries the dial with a growing delay until it succeeds, the
// retry budget runs out, or the server rejects the credential. Returns true
// when a fresh socket is up.
func (c *Connection) reconnect() bool {
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		delay := time.Duration(attempt) * c.retryBackoff
		select {
		case <-c.ctx.Done():
			return false
		case <-time.After(delay):
		}

		err := c.dial(c.ctx)
		if err == nil {
			c.logger.Info("reconnected", zap.Int("attempt", attempt))
			return true
		}
		if errors.Is(err, ErrAuthRejected) {
			// terminal: retrying with the same credential cannot succeed
			c.fail(ErrAuthRejected)
			return false
		}
		c.logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}
	c.fail(fmt.Errorf("chatclient: gave up after %d reconnect attempts: %w", c.maxRetries, ErrConnectionClosed))
	return false
}

func (c *Connection) fail(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Connection) deliver(ev event.Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

// JoinRoom subscribes to a conversation's room-scoped traffic. Joining an
// already-joined room is a no-op.
func (c *Connection) JoinRoom(conversationID string) error {
	c.mu.Lock()
	if _, ok := c.joined[conversationID]; ok {
		c.mu.Unlock()
		return nil
	}
	c.joined[conversationID] = struct{}{}
	c.mu.Unlock()

	return c.send(event.EventRoomJoin, event.RoomPayload{ConversationID: conversationID})
}

// LeaveRoom cancels interest in a conversation's room-scoped traffic. Leaving
// a room that was never joined is a no-op.
func (c *Connection) LeaveRoom(conversationID string) error {
	c.mu.Lock()
	if _, ok := c.joined[conversationID]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.joined, conversationID)
	c.mu.Unlock()

	return c.send(event.EventRoomLeave, event.RoomPayload{ConversationID: conversationID})
}

// SendTyping emits a typing start/stop signal for a conversation. Delivery is
// best effort; a lost signal is covered by the server relay's expiry.
func (c *Connection) SendTyping(eventName, conversationID string) {
	if err := c.send(eventName, event.TypingPayload{ConversationID: conversationID}); err != nil {
		c.logger.Debug("typing signal dropped", zap.String("event", eventName), zap.Error(err))
	}
}

func (c *Connection) send(name string, payload any) error {
	if !c.connected.Load() {
		return ErrConnectionClosed
	}
	envelope, err := event.New(name, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	return conn.WriteJSON(envelope)
}

// Disconnect tears the connection down exactly once. Pending reconnects are
// cancelled and the event channel closes.
func (c *Connection) Disconnect() {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		c.fail(ErrConnectionClosed)
		c.cancel()
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.mu.Unlock()
	})
}
