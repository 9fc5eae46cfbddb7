package chatclient

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/event"
)

// ErrNoActiveConversation means a message-level action was attempted before
// any conversation was selected.
var ErrNoActiveConversation = errors.New("chatclient: no active conversation")

// Session ties the pieces together for one signed-in user: REST client for
// durable state, websocket connection for live events, and the store,
// presence tracker and typing coordinator they feed. All inbound events are
// applied by a single goroutine so reducers never race each other.
type Session struct {
	opts    Options
	rest    *restClient
	conn    *Connection
	store   *Store
	present *PresenceTracker
	typing  *TypingCoordinator
	logger  *zap.Logger

	// seedCh funnels conversation-list refetches back onto the reducer
	// goroutine, keeping the store's single-writer discipline.
	seedCh chan []Conversation

	mu     sync.Mutex
	closed bool

	done chan struct{}
}

// NewSession builds an unstarted session. Call Start to seed state and bring
// the socket up.
func NewSession(opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		opts:    opts,
		rest:    newRESTClient(opts),
		store:   NewStore(),
		present: NewPresenceTracker(),
		typing:  NewTypingCoordinator(opts.TypingDebounce, opts.TypingIdle, opts.TypingExpiry),
		logger:  opts.Logger,
		seedCh:  make(chan []Conversation, 1),
		done:    make(chan struct{}),
	}
	return s
}

// Start seeds the conversation list over REST, connects the socket and begins
// dispatching events. It returns once the handshake is acknowledged.
func (s *Session) Start(ctx context.Context) error {
	convs, err := s.rest.ListConversations(ctx)
	if err != nil {
		return err
	}
	s.store.Seed(convs)

	conn, err := Connect(ctx, s.opts)
	if err != nil {
		return err
	}
	s.conn = conn
	s.typing.SetEmitter(conn.SendTyping)

	go s.run()
	return nil
}

// SelectConversation makes a conversation active: loads its history, joins
// its room and marks it read, exactly once per activation. Selecting the
// already-active conversation is a no-op. A failed read-receipt call is
// returned to the caller with the conversation left active, so the server's
// read mark can still be retried; the local counter is already zeroed
// because the thread is on screen.
func (s *Session) SelectConversation(ctx context.Context, conversationID string) error {
	prev := s.store.ActiveID()
	if prev == conversationID {
		return nil
	}

	// fetch before touching any state so a REST failure leaves the previous
	// conversation fully intact
	history, err := s.rest.GetHistory(ctx, conversationID)
	if err != nil {
		return err
	}

	if prev != "" {
		if err := s.conn.LeaveRoom(prev); err != nil {
			s.logger.Warn("leave room failed", zap.String("conversation_id", prev), zap.Error(err))
		}
		s.typing.Forget(prev)
	}
	s.store.SetActive(conversationID, history)

	if err := s.conn.JoinRoom(conversationID); err != nil {
		s.logger.Warn("join room failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}

	s.store.MarkReadLocal(conversationID)
	return s.rest.MarkRead(ctx, conversationID)
}

// SendMessage posts a message to the active conversation and echoes it into
// the store immediately. The server's message:new for the same ID is a
// duplicate and gets ignored by the store.
func (s *Session) SendMessage(ctx context.Context, text string) (Message, error) {
	conversationID := s.store.ActiveID()
	if conversationID == "" {
		return Message{}, ErrNoActiveConversation
	}
	msg, err := s.rest.SendMessage(ctx, conversationID, text)
	if err != nil {
		return Message{}, err
	}
	s.store.UpsertMessage(msg)
	s.typing.LocalStop(conversationID)
	return msg, nil
}

// DeleteMessage removes one of the user's own messages. The local removal
// happens on the server echo, same as for other participants.
func (s *Session) DeleteMessage(ctx context.Context, messageID string) error {
	conversationID := s.store.ActiveID()
	if conversationID == "" {
		return ErrNoActiveConversation
	}
	return s.rest.DeleteMessage(ctx, conversationID, messageID)
}

// NotifyTyping reports local keystrokes in the active conversation. Debounce
// and auto-stop are handled by the coordinator.
func (s *Session) NotifyTyping() {
	if id := s.store.ActiveID(); id != "" {
		s.typing.LocalStart(id)
	}
}

// SearchUsers queries the people directory.
func (s *Session) SearchUsers(ctx context.Context, query string) ([]User, error) {
	return s.rest.SearchUsers(ctx, query)
}

// CreateConversation starts a private or group conversation and refreshes the
// local list so the new entry shows up without waiting for the broadcast.
func (s *Session) CreateConversation(ctx context.Context, convType, name string, participantIDs []string) (Conversation, error) {
	conv, err := s.rest.CreateConversation(ctx, convType, name, participantIDs)
	if err != nil {
		return Conversation{}, err
	}
	go s.refetchConversations()
	return conv, nil
}

// Conversations returns the cached list, most recent activity first.
func (s *Session) Conversations() []Conversation { return s.store.Ordered() }

// Messages returns the active conversation's messages, oldest first.
func (s *Session) Messages() []Message { return s.store.Messages() }

// ActiveConversation returns the active conversation, if any.
func (s *Session) ActiveConversation() (Conversation, bool) {
	return s.store.Conversation(s.store.ActiveID())
}

// Self returns the authenticated user's ID, known after the handshake ack.
func (s *Session) Self() string { return s.store.Self() }

// IsOnline reports whether a user currently has a live connection.
func (s *Session) IsOnline(userID string) bool { return s.present.IsOnline(userID) }

// OnlineUsers returns the known online set, sorted.
func (s *Session) OnlineUsers() []string { return s.present.Snapshot() }

// Typists returns who is composing in a conversation, sorted.
func (s *Session) Typists(conversationID string) []string {
	return s.typing.Typists(conversationID)
}

// Connected reports whether the live socket is up.
func (s *Session) Connected() bool {
	return s.conn != nil && s.conn.Connected()
}

// Close tears the session down: typing timers stop, the socket disconnects
// and the reducer loop drains.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.typing.Close()
	if s.conn != nil {
		s.conn.Disconnect()
		<-s.done
	}
}

func toClientMessage(m event.Message) Message {
	return Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Text:           m.Text,
		CreatedAt:      m.CreatedAt,
	}
}
