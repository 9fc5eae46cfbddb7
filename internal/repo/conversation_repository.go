package repo

import (
	"context"
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

type conversationRepository struct {
	conversations *db.Repository[model.Conversation]
	readStates    *db.Repository[model.ReadState]
	logger        *zap.Logger
}

type ConversationRepository interface {
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]model.Conversation, error)
	FindPrivateBetween(ctx context.Context, userA, userB string) (*model.Conversation, error)
	CreateConversation(ctx context.Context, conversation *model.Conversation) (*model.Conversation, error)
	UpdateLastMessage(ctx context.Context, conversationID primitive.ObjectID, preview *model.LastMessage) error
	ReadStatesForUser(ctx context.Context, userID string) (map[string]time.Time, error)
	MarkRead(ctx context.Context, conversationID primitive.ObjectID, userID string, at time.Time) error
}

func NewConversationRepository(conversations *db.Repository[model.Conversation], readStates *db.Repository[model.ReadState], logger *zap.Logger) ConversationRepository {
	return &conversationRepository{
		conversations: conversations,
		readStates:    readStates,
		logger:        logger,
	}
}

// GetConversation fetches a conversation document by ID. Returns nil when the
// conversation does not exist.
func (r *conversationRepository) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		r.logger.Error("invalid conversation ID format",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("invalid conversation ID format: %w", err)
	}

	conversation, err := r.conversations.FindOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		if err == mongo.ErrNoDocuments {
			r.logger.Debug("conversation not found", zap.String("conversation_id", conversationID))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}
	return conversation, nil
}

// ListForUser returns the user's active conversations, most recent first.
func (r *conversationRepository) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("participant_ids", userID).
		Eq("is_active", true).
		Build()
	opts := options.Find().SetSort(bson.M{"last_message_at": -1})

	conversations, err := r.conversations.FindAll(ctx, filter, opts)
	if err != nil {
		r.logger.Error("failed to query conversations", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to get conversations: %w", err)
	}
	return conversations, nil
}

// FindPrivateBetween looks up an existing private thread for two users so that
// repeated "create private" requests converge on one conversation.
func (r *conversationRepository) FindPrivateBetween(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := bson.M{
		"conversation_type": model.ConversationPrivate,
		"is_active":         true,
		"participant_ids":   bson.M{"$all": []string{userA, userB}},
	}
	conversation, err := r.conversations.FindOne(ctx, filter)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up private conversation: %w", err)
	}
	return conversation, nil
}

// CreateConversation inserts a new conversation and returns it with the
// generated ID filled in.
func (r *conversationRepository) CreateConversation(ctx context.Context, conversation *model.Conversation) (*model.Conversation, error) {
	if conversation == nil {
		return nil, ErrInvalidMessage
	}
	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	res, err := r.conversations.Create(ctx, *conversation)
	if err != nil {
		r.logger.Error("failed to create conversation", zap.Error(err))
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		conversation.ID = oid
	}
	r.logger.Info("conversation created",
		zap.String("conversation_id", conversation.ID.Hex()),
		zap.String("type", conversation.ConversationType),
		zap.Int("participants", len(conversation.ParticipantIDs)),
	)
	return conversation, nil
}

// UpdateLastMessage refreshes the denormalized preview and recency stamp.
func (r *conversationRepository) UpdateLastMessage(ctx context.Context, conversationID primitive.ObjectID, preview *model.LastMessage) error {
	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := r.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{
			"last_message":    preview,
			"last_message_at": preview.SentAt,
			"updated_at":      time.Now(),
		},
	)
	if err != nil {
		r.logger.Error("failed to update last message",
			zap.String("conversation_id", conversationID.Hex()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to update last message: %w", err)
	}
	return nil
}

// ReadStatesForUser returns the user's read marks keyed by conversation hex id.
func (r *conversationRepository) ReadStatesForUser(ctx context.Context, userID string) (map[string]time.Time, error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	states, err := r.readStates.FindAll(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to get read states: %w", err)
	}
	marks := make(map[string]time.Time, len(states))
	for _, s := range states {
		marks[s.ConversationID.Hex()] = s.LastReadAt
	}
	return marks, nil
}

// MarkRead upserts the user's read mark. Safe to call repeatedly.
func (r *conversationRepository) MarkRead(ctx context.Context, conversationID primitive.ObjectID, userID string, at time.Time) error {
	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := r.readStates.Upsert(ctx,
		bson.M{"conversation_id": conversationID, "user_id": userID},
		bson.M{"last_read_at": at},
	)
	if err != nil {
		r.logger.Error("failed to mark conversation read",
			zap.String("conversation_id", conversationID.Hex()),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to mark read: %w", err)
	}
	return nil
}

func (r *conversationRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
