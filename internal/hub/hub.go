package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/auth"
	"github.com/Manzilah-gp/manzilah-web-sub001/internal/event"
)

type inboundEvent struct {
	event  event.WsEvent
	client *Client
}

// Hub routes live events between connected clients. It owns the only mutable
// view of who is connected and which conversation rooms each socket joined.
type Hub struct {
	logger         *zap.Logger
	secret         []byte
	allowedOrigins map[string]bool

	mu            sync.RWMutex
	clientsByUser map[string]map[string]*Client // userID -> clientID -> client
	rooms         map[string]map[string]*Client // conversationID -> clientID -> client

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub starts the manager loop and the inbound worker pool.
func NewHub(secret []byte, allowedOrigins []string, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	h := &Hub{
		logger:         logger,
		secret:         secret,
		allowedOrigins: origins,
		clientsByUser:  make(map[string]map[string]*Client),
		rooms:          make(map[string]map[string]*Client),
		register:       make(chan *Client, 1024),
		unregister:     make(chan *Client, 1024),
		inbound:        make(chan inboundEvent, 4096),
		ctx:            ctx,
		cancel:         cancel,
	}

	go h.run()

	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in, ok := <-h.inbound:
					if !ok {
						return
					}
					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

// addClient registers the socket, acknowledges the handshake, seeds the
// presence snapshot and announces the user if this is their first connection.
func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	clients, known := h.clientsByUser[c.userID]
	if !known {
		clients = make(map[string]*Client)
		h.clientsByUser[c.userID] = clients
	}
	firstConnection := len(clients) == 0
	clients[c.ID] = c
	online := make([]string, 0, len(h.clientsByUser))
	for userID := range h.clientsByUser {
		online = append(online, userID)
	}
	h.mu.Unlock()

	if ack, err := event.New(event.EventConnectionAck, event.AckPayload{UserID: c.userID}); err == nil {
		c.SafeSend(ack, sendTimeout)
	}
	if snapshot, err := event.New(event.EventPresenceState, event.PresenceStatePayload{Online: online}); err == nil {
		c.SafeSend(snapshot, sendTimeout)
	}
	if firstConnection {
		if ev, err := event.New(event.EventPresenceOnline, event.PresencePayload{UserID: c.userID}); err == nil {
			h.broadcast(ev, c.ID)
		}
	}
}

// removeClient drops the socket from all rooms and announces the user offline
// when their last connection goes away.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	for _, conversationID := range c.joinedRooms() {
		if room, ok := h.rooms[conversationID]; ok {
			delete(room, c.ID)
			if len(room) == 0 {
				delete(h.rooms, conversationID)
			}
		}
	}
	lastConnection := false
	if clients, ok := h.clientsByUser[c.userID]; ok {
		delete(clients, c.ID)
		if len(clients) == 0 {
			delete(h.clientsByUser, c.userID)
			lastConnection = true
		}
	}
	h.mu.Unlock()

	c.Close()
	h.logger.Info("client removed", zap.String("client_id", c.ID), zap.String("user_id", c.userID))

	if lastConnection {
		if ev, err := event.New(event.EventPresenceOffline, event.PresencePayload{UserID: c.userID}); err == nil {
			h.broadcast(ev, "")
		}
	}
}

// handleEvent routes one inbound client event. Unknown or malformed events are
// logged and dropped; the worker loop never dies on bad input.
func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	switch ev.Event {
	case event.EventRoomJoin:
		payload, ok := h.roomPayload(ev, c)
		if !ok {
			return
		}
		h.joinRoom(c, payload.ConversationID)

	case event.EventRoomLeave:
		payload, ok := h.roomPayload(ev, c)
		if !ok {
			return
		}
		h.leaveRoom(c, payload.ConversationID)

	case event.EventTypingStart, event.EventTypingStop:
		// clients send only the conversation id; the sender is whoever
		// authenticated the socket, never a client-supplied value
		var payload event.TypingPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.ConversationID == "" {
			h.logger.Warn("bad typing payload", zap.String("client_id", c.ID), zap.String("event", ev.Event))
			return
		}
		relay, err := event.New(ev.Event, event.TypingPayload{
			ConversationID: payload.ConversationID,
			UserID:         c.userID,
		})
		if err != nil {
			return
		}
		h.publishToRoom(relay, payload.ConversationID, c.ID)

	default:
		h.logger.Warn("unknown event type", zap.String("event", ev.Event), zap.String("client_id", c.ID))
	}
}

func (h *Hub) roomPayload(ev event.WsEvent, c *Client) (event.RoomPayload, bool) {
	var payload event.RoomPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.ConversationID == "" {
		h.logger.Warn("bad room payload", zap.String("client_id", c.ID), zap.String("event", ev.Event))
		return payload, false
	}
	return payload, true
}

// joinRoom is idempotent; joining twice leaves one membership.
func (h *Hub) joinRoom(c *Client, conversationID string) {
	h.mu.Lock()
	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[conversationID] = room
	}
	room[c.ID] = c
	h.mu.Unlock()

	c.joinRoom(conversationID)
	h.logger.Debug("room joined", zap.String("client_id", c.ID), zap.String("conversation_id", conversationID))
}

// leaveRoom is idempotent; leaving a room the client never joined is a no-op.
func (h *Hub) leaveRoom(c *Client, conversationID string) {
	h.mu.Lock()
	if room, ok := h.rooms[conversationID]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	h.mu.Unlock()

	c.leaveRoom(conversationID)
}

// publishToRoom delivers an event to every socket joined to the conversation,
// except the originating client.
func (h *Hub) publishToRoom(ev event.WsEvent, conversationID, excludeClientID string) {
	h.mu.RLock()
	room := h.rooms[conversationID]
	clients := make([]*Client, 0, len(room))
	for id, c := range room {
		if id != excludeClientID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.SafeSend(ev, sendTimeout) {
			h.logger.Warn("egress full, kicking client",
				zap.String("client_id", c.ID),
				zap.String("conversation_id", conversationID),
			)
			h.unregister <- c
		}
	}
}

// NotifyParticipants delivers an event to every connection of the listed
// users, joined to the room or not. This is what keeps unread counts moving
// for conversations the user is not currently looking at.
func (h *Hub) NotifyParticipants(participantIDs []string, ev event.WsEvent) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(participantIDs))
	for _, userID := range participantIDs {
		for _, c := range h.clientsByUser[userID] {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.SafeSend(ev, sendTimeout) {
			h.unregister <- c
		}
	}
}

func (h *Hub) broadcast(ev event.WsEvent, excludeClientID string) {
	h.mu.RLock()
	clients := make([]*Client, 0)
	for _, conns := range h.clientsByUser {
		for id, c := range conns {
			if id != excludeClientID {
				clients = append(clients, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.SafeSend(ev, sendTimeout)
	}
}

// OnlineUsers returns the ids of users with at least one live connection.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	online := make([]string, 0, len(h.clientsByUser))
	for userID := range h.clientsByUser {
		online = append(online, userID)
	}
	return online
}

// Stop closes every connection and drains the workers.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.RLock()
	for _, conns := range h.clientsByUser {
		for _, c := range conns {
			c.Close()
		}
	}
	h.mu.RUnlock()

	// workers exit on ctx cancellation; the inbound channel stays open so a
	// read pump racing shutdown never sends on a closed channel
	h.wg.Wait()
}

var upgradeBufferSize = 1024

// ServeWS authenticates the handshake and upgrades the connection. A missing
// or invalid bearer token is rejected with 401 before any upgrade happens, so
// clients can tell auth rejection apart from a transient network failure.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	raw := auth.BearerToken(r.Header.Get("Authorization"))
	if raw == "" {
		// browsers cannot set headers on WebSocket upgrades
		raw = r.URL.Query().Get("token")
	}
	claims, err := auth.ParseToken(h.secret, raw)
	if err != nil {
		h.logger.Warn("handshake rejected", zap.Error(err))
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  upgradeBufferSize,
		WriteBufferSize: upgradeBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	RegisterClient(claims.UserID, claims.Username, conn, h)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients
	}
	return h.allowedOrigins[origin]
}
