package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message status constants
const (
	MessageStatusActive  = 1
	MessageStatusDeleted = -1
)

// Message represents a chat message in MongoDB. MessageID is the client-visible
// identifier and the deduplication key; it is assigned once at send time and
// echoed unchanged in the message:new event.
type Message struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	MessageID      string             `json:"messageId" bson:"message_id"`
	ConversationID primitive.ObjectID `json:"conversationId" bson:"conversation_id"`
	SenderID       string             `json:"senderId" bson:"sender_id"`
	SenderName     string             `json:"senderName" bson:"sender_name"`
	Body           string             `json:"body" bson:"body"`
	CreatedAt      time.Time          `json:"createdAt" bson:"created_at"`
	Status         int                `json:"status" bson:"status"`
}

// ErrorPayload represents an error response sent to a client over the socket
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
