package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/db"
	"github.com/Manzilah-gp/manzilah-web-sub001/internal/model"
)

var (
	ErrInvalidMessage        = errors.New("invalid message: message cannot be nil")
	ErrInvalidConversationID = errors.New("invalid conversation ID: cannot be empty")
	ErrNotMessageSender      = errors.New("only the sender can delete a message")
	ErrMessageNotFound       = errors.New("message not found")
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	defaultHistoryLimit = 200
)

type messageRepository struct {
	messages *db.Repository[model.Message]
	logger   *zap.Logger
}

type MessageRepository interface {
	InsertMessage(ctx context.Context, msg *model.Message) (string, error)
	ListMessages(ctx context.Context, conversationID string, limit int64) ([]model.Message, error)
	MarkDeleted(ctx context.Context, conversationID, messageID, requesterID string) error
	CountUnread(ctx context.Context, conversationID primitive.ObjectID, userID string, since time.Time) (int64, error)
}

func NewMessageRepository(messages *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		messages: messages,
		logger:   logger,
	}
}

// InsertMessage persists a message. Writes are idempotent on message_id: a
// retry of an already-stored message returns the stored id without a second
// insert, so the message:new fan-out never produces two documents.
func (m *messageRepository) InsertMessage(ctx context.Context, msg *model.Message) (string, error) {
	if msg == nil {
		return "", ErrInvalidMessage
	}
	if msg.ConversationID.IsZero() {
		return "", ErrInvalidConversationID
	}
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	existing, err := m.messages.FindOne(ctx, bson.M{"message_id": msg.MessageID})
	if err == nil && existing != nil {
		m.logger.Debug("duplicate message insert skipped", zap.String("message_id", msg.MessageID))
		return existing.MessageID, nil
	}
	if err != nil && err != mongo.ErrNoDocuments {
		return "", fmt.Errorf("failed to check message existence: %w", err)
	}

	if _, err := m.messages.Create(ctx, *msg); err != nil {
		m.logger.Error("failed to insert message",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to insert message: %w", err)
	}
	return msg.MessageID, nil
}

// ListMessages returns active messages for a conversation, oldest first.
func (m *messageRepository) ListMessages(ctx context.Context, conversationID string, limit int64) ([]model.Message, error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}
	objectID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation ID format: %w", err)
	}
	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	filter := db.NewFilter().
		Eq("conversation_id", objectID).
		Eq("status", model.MessageStatusActive).
		Build()
	opts := options.Find().SetSort(bson.M{"created_at": 1}).SetLimit(limit)

	messages, err := m.messages.FindAll(ctx, filter, opts)
	if err != nil {
		m.logger.Error("failed to query messages",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}

// MarkDeleted soft-deletes a message. Only the original sender may delete.
func (m *messageRepository) MarkDeleted(ctx context.Context, conversationID, messageID, requesterID string) error {
	if conversationID == "" {
		return ErrInvalidConversationID
	}
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	msg, err := m.messages.FindOne(ctx, bson.M{"message_id": messageID})
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return ErrMessageNotFound
		}
		return fmt.Errorf("failed to load message: %w", err)
	}
	if msg.SenderID != requesterID {
		return ErrNotMessageSender
	}

	_, err = m.messages.UpdateOne(ctx,
		bson.M{"message_id": messageID},
		bson.M{"status": model.MessageStatusDeleted},
	)
	if err != nil {
		m.logger.Error("failed to delete message",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// CountUnread counts messages other users sent after the given read mark.
func (m *messageRepository) CountUnread(ctx context.Context, conversationID primitive.ObjectID, userID string, since time.Time) (int64, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("conversation_id", conversationID).
		Eq("status", model.MessageStatusActive).
		Ne("sender_id", userID).
		Gt("created_at", since).
		Build()

	count, err := m.messages.Count(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

func (m *messageRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
