package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/event"
	"github.com/Manzilah-gp/manzilah-web-sub001/internal/model"
	"github.com/Manzilah-gp/manzilah-web-sub001/internal/repo"
)

var (
	ErrNotParticipant          = errors.New("user is not a participant of this conversation")
	ErrConversationNotFound    = errors.New("conversation not found")
	ErrEmptyMessage            = errors.New("message text cannot be empty")
	ErrQueryTooShort           = errors.New("search query must be at least 2 characters")
	ErrMissingParticipants     = errors.New("conversation needs at least one other participant")
	ErrInvalidConversationType = errors.New("conversation type must be private or group")
)

const minSearchQueryLen = 2

// Notifier delivers a live event to every listed participant. The hub
// implements it; the service never blocks on delivery.
type Notifier interface {
	NotifyParticipants(participantIDs []string, ev event.WsEvent)
}

// ConversationView is the client-facing projection of a conversation,
// enriched with the caller's unread count and private-peer display fields.
type ConversationView struct {
	ID            string             `json:"id"`
	Type          string             `json:"type"`
	DisplayName   string             `json:"displayName"`
	DisplayID     string             `json:"displayId"`
	LastMessage   *model.LastMessage `json:"lastMessage"`
	LastMessageAt time.Time          `json:"lastMessageAt"`
	UnreadCount   int64              `json:"unreadCount"`
}

// CreateConversationRequest is the payload for starting a new thread.
type CreateConversationRequest struct {
	Type           string   `json:"type"`
	Name           string   `json:"name"`
	ParticipantIDs []string `json:"participantIds"`
}

type ChatService interface {
	ListConversations(ctx context.Context, userID string) ([]ConversationView, error)
	GetHistory(ctx context.Context, userID, conversationID string) ([]event.Message, error)
	SendMessage(ctx context.Context, userID, username, conversationID, text string) (*event.Message, error)
	MarkRead(ctx context.Context, userID, conversationID string) error
	DeleteMessage(ctx context.Context, userID, conversationID, messageID string) error
	SearchUsers(ctx context.Context, userID, query string) ([]model.User, error)
	CreateConversation(ctx context.Context, userID, username string, req CreateConversationRequest) (*ConversationView, error)
}

type chatService struct {
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	users         repo.UserRepository
	notifier      Notifier
	logger        *zap.Logger
}

func NewChatService(
	conversations repo.ConversationRepository,
	messages repo.MessageRepository,
	users repo.UserRepository,
	notifier Notifier,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		notifier:      notifier,
		logger:        logger,
	}
}

// ListConversations returns the caller's conversations ordered by recency,
// each with its unread count. This is the seed call for the client store.
func (s *chatService) ListConversations(ctx context.Context, userID string) ([]ConversationView, error) {
	conversations, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	marks, err := s.conversations.ReadStatesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]ConversationView, 0, len(conversations))
	for i := range conversations {
		conv := &conversations[i]
		unread, err := s.messages.CountUnread(ctx, conv.ID, userID, marks[conv.ID.Hex()])
		if err != nil {
			s.logger.Warn("unread count failed, defaulting to zero",
				zap.String("conversation_id", conv.ID.Hex()),
				zap.Error(err),
			)
			unread = 0
		}
		views = append(views, s.toView(conv, userID, unread))
	}
	return views, nil
}

// GetHistory returns a conversation's messages, oldest first.
func (s *chatService) GetHistory(ctx context.Context, userID, conversationID string) ([]event.Message, error) {
	conv, err := s.requireParticipant(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	messages, err := s.messages.ListMessages(ctx, conv.ID.Hex(), 0)
	if err != nil {
		return nil, err
	}
	wire := make([]event.Message, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, toWireMessage(&m))
	}
	return wire, nil
}

// SendMessage persists a message and fans it out to every participant. The
// returned record carries the same message id as the live echo event, which is
// what lets clients deduplicate their optimistic copy.
func (s *chatService) SendMessage(ctx context.Context, userID, username, conversationID, text string) (*event.Message, error) {
	if text == "" {
		return nil, ErrEmptyMessage
	}
	conv, err := s.requireParticipant(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		MessageID:      uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       userID,
		SenderName:     username,
		Body:           text,
		CreatedAt:      time.Now().UTC(),
		Status:         model.MessageStatusActive,
	}
	if _, err := s.messages.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.conversations.UpdateLastMessage(ctx, conv.ID, &model.LastMessage{
		MessageID:  msg.MessageID,
		Body:       msg.Body,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		SentAt:     msg.CreatedAt,
	}); err != nil {
		s.logger.Warn("preview update failed", zap.String("conversation_id", conv.ID.Hex()), zap.Error(err))
	}

	wire := toWireMessage(msg)
	if ev, err := event.New(event.EventMessageNew, wire); err == nil {
		s.notifier.NotifyParticipants(conv.ParticipantIDs, ev)
	}
	return &wire, nil
}

// MarkRead records that the caller has seen the conversation up to now.
// Idempotent server-side; repeated calls only move the read mark forward.
func (s *chatService) MarkRead(ctx context.Context, userID, conversationID string) error {
	conv, err := s.requireParticipant(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	return s.conversations.MarkRead(ctx, conv.ID, userID, time.Now().UTC())
}

// DeleteMessage soft-deletes a sender's own message and notifies participants.
func (s *chatService) DeleteMessage(ctx context.Context, userID, conversationID, messageID string) error {
	conv, err := s.requireParticipant(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	if err := s.messages.MarkDeleted(ctx, conv.ID.Hex(), messageID, userID); err != nil {
		return err
	}
	ev, err := event.New(event.EventMessageDeleted, event.MessageDeletedPayload{
		ConversationID: conv.ID.Hex(),
		MessageID:      messageID,
	})
	if err == nil {
		s.notifier.NotifyParticipants(conv.ParticipantIDs, ev)
	}
	return nil
}

// SearchUsers returns candidates for starting a conversation.
func (s *chatService) SearchUsers(ctx context.Context, userID, query string) ([]model.User, error) {
	if len(query) < minSearchQueryLen {
		return nil, ErrQueryTooShort
	}
	return s.users.SearchUsers(ctx, query, userID)
}

// CreateConversation starts a private or group thread. Private threads are
// deduplicated: asking for a private chat with the same peer twice returns the
// existing conversation.
func (s *chatService) CreateConversation(ctx context.Context, userID, username string, req CreateConversationRequest) (*ConversationView, error) {
	others := Filter(req.ParticipantIDs, func(id string) bool { return id != "" && id != userID })
	if len(others) == 0 {
		return nil, ErrMissingParticipants
	}

	switch req.Type {
	case model.ConversationPrivate:
		if existing, err := s.conversations.FindPrivateBetween(ctx, userID, others[0]); err != nil {
			return nil, err
		} else if existing != nil {
			view := s.toView(existing, userID, 0)
			return &view, nil
		}
		others = others[:1]
	case model.ConversationGroup:
		// group membership is open-ended
	default:
		return nil, ErrInvalidConversationType
	}

	memberIDs := append([]string{userID}, others...)
	members, err := s.users.ListByUserIDs(ctx, memberIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	participants := make([]model.Participant, 0, len(members))
	for _, u := range members {
		role := "member"
		if u.UserID == userID {
			role = "owner"
		}
		participants = append(participants, model.Participant{
			UserID:   u.UserID,
			Username: u.DisplayName(),
			JoinedAt: now,
			Role:     role,
		})
	}

	conv := &model.Conversation{
		ConversationType: req.Type,
		Participants:     participants,
		ParticipantIDs:   memberIDs,
		ConversationName: req.Name,
		CreatedBy:        userID,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastMessageAt:    now,
		IsActive:         true,
	}
	conv, err = s.conversations.CreateConversation(ctx, conv)
	if err != nil {
		return nil, err
	}

	ev, err := event.New(event.EventConversationCreated, event.ConversationCreatedPayload{
		ConversationID:   conv.ID.Hex(),
		ConversationType: conv.ConversationType,
		ConversationName: conv.ConversationName,
		CreatedBy:        userID,
	})
	if err == nil {
		s.notifier.NotifyParticipants(conv.ParticipantIDs, ev)
	}

	view := s.toView(conv, userID, 0)
	return &view, nil
}

// requireParticipant loads the conversation and checks membership.
func (s *chatService) requireParticipant(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

func (s *chatService) toView(conv *model.Conversation, selfID string, unread int64) ConversationView {
	view := ConversationView{
		ID:            conv.ID.Hex(),
		Type:          conv.ConversationType,
		DisplayName:   conv.ConversationName,
		LastMessage:   conv.LastMessage,
		LastMessageAt: conv.LastMessageAt,
		UnreadCount:   unread,
	}
	if conv.ConversationType == model.ConversationPrivate {
		view.DisplayID = conv.PeerID(selfID)
		for _, p := range conv.Participants {
			if p.UserID == view.DisplayID {
				view.DisplayName = p.Username
				break
			}
		}
	}
	return view
}

func toWireMessage(m *model.Message) event.Message {
	return event.Message{
		ID:             m.MessageID,
		ConversationID: m.ConversationID.Hex(),
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Text:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
}
