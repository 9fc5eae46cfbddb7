package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation type constants
const (
	ConversationPrivate = "private"
	ConversationGroup   = "group"
)

// Conversation represents a chat thread in MongoDB
type Conversation struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ConversationType string             `json:"conversationType" bson:"conversation_type"`
	Participants     []Participant      `json:"participants" bson:"participants"`
	ParticipantIDs   []string           `json:"participantIds" bson:"participant_ids"`
	ConversationName string             `json:"conversationName" bson:"conversation_name"`
	CreatedBy        string             `json:"createdBy" bson:"created_by"`
	CreatedAt        time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt        time.Time          `json:"updatedAt" bson:"updated_at"`
	LastMessageAt    time.Time          `json:"lastMessageAt" bson:"last_message_at"`
	LastMessage      *LastMessage       `json:"lastMessage" bson:"last_message"`
	IsActive         bool               `json:"isActive" bson:"is_active"`
}

// Participant represents a user enrolled in a conversation
type Participant struct {
	UserID   string    `json:"userId" bson:"user_id"`
	Username string    `json:"username" bson:"username"`
	JoinedAt time.Time `json:"joinedAt" bson:"joined_at"`
	Role     string    `json:"role" bson:"role"`
}

// LastMessage stores the most recent message preview
type LastMessage struct {
	MessageID  string    `json:"messageId" bson:"message_id"`
	Body       string    `json:"body" bson:"body"`
	SenderID   string    `json:"senderId" bson:"sender_id"`
	SenderName string    `json:"senderName" bson:"sender_name"`
	SentAt     time.Time `json:"sentAt" bson:"sent_at"`
}

// ReadState tracks how far a user has read a conversation. One document per
// (conversation, user) pair; mark-as-read upserts it, which keeps the endpoint
// idempotent.
type ReadState struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ConversationID primitive.ObjectID `json:"conversationId" bson:"conversation_id"`
	UserID         string             `json:"userId" bson:"user_id"`
	LastReadAt     time.Time          `json:"lastReadAt" bson:"last_read_at"`
}

// PeerID returns the other participant of a private conversation, or "" for
// groups. The dashboard uses it for presence lookup.
func (c *Conversation) PeerID(selfID string) string {
	if c.ConversationType != ConversationPrivate {
		return ""
	}
	for _, id := range c.ParticipantIDs {
		if id != selfID {
			return id
		}
	}
	return ""
}

// HasParticipant reports whether the user belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}
