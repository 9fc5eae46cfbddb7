package event

import (
	"encoding/json"
	"time"
)

// Event Types - Client to Server
const (
	// EventRoomJoin - client starts listening to a conversation's room traffic
	EventRoomJoin = "room:join"

	// EventRoomLeave - client stops listening to a conversation's room traffic
	EventRoomLeave = "room:leave"

	// EventTypingStart - local user started composing in a conversation
	EventTypingStart = "typing:start"

	// EventTypingStop - local user stopped composing
	EventTypingStop = "typing:stop"
)

// Event Types - Server to Client
const (
	// EventConnectionAck - handshake acknowledgement, sent once after a
	// successful upgrade; the connection counts as established only after it
	EventConnectionAck = "connection:ack"

	// EventPresenceState - full snapshot of online user ids, sent on connect
	EventPresenceState = "presence:state"

	// EventPresenceOnline - a user's first connection came up
	EventPresenceOnline = "presence:online"

	// EventPresenceOffline - a user's last connection went away
	EventPresenceOffline = "presence:offline"

	// EventMessageNew - a message was persisted; fanned out to all participants
	EventMessageNew = "message:new"

	// EventMessageDeleted - a message was removed by its sender
	EventMessageDeleted = "message:deleted"

	// EventConversationCreated - a conversation the user belongs to was created
	EventConversationCreated = "conversation:created"
)

// WsEvent is the wire envelope for every event in both directions.
type WsEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Message is the wire form of a chat message carried by message:new.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

// AckPayload confirms the handshake and echoes the authenticated user.
type AckPayload struct {
	UserID string `json:"userId"`
}

// PresenceStatePayload is the online-set snapshot sent on connect.
type PresenceStatePayload struct {
	Online []string `json:"online"`
}

// PresencePayload carries a single presence toggle.
type PresencePayload struct {
	UserID string `json:"userId"`
}

// RoomPayload is the join/leave request body.
type RoomPayload struct {
	ConversationID string `json:"conversationId"`
}

// TypingPayload carries a typing start/stop signal. UserID is filled in by the
// server on relay; clients never trust a peer-supplied sender id.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// MessageDeletedPayload identifies a removed message.
type MessageDeletedPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// ConversationCreatedPayload announces a new conversation. Membership is
// computed server-side, so clients treat this as a cue to re-fetch the list.
type ConversationCreatedPayload struct {
	ConversationID   string `json:"conversationId"`
	ConversationType string `json:"conversationType"`
	ConversationName string `json:"conversationName"`
	CreatedBy        string `json:"createdBy"`
}

// New wraps a payload into a wire envelope.
func New(name string, payload any) (WsEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return WsEvent{}, err
	}
	return WsEvent{Event: name, Payload: raw}, nil
}
