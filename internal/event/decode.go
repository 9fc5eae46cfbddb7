package event

import (
	"encoding/json"
	"fmt"
)

// Event is the decoded, typed form of an inbound wire event. The set of
// implementations is closed: routing is a total switch, never a string lookup.
type Event interface {
	isEvent()
}

// ConnectionAck - handshake acknowledgement.
type ConnectionAck struct {
	UserID string
}

// PresenceState - authoritative online-set snapshot.
type PresenceState struct {
	Online []string
}

// PresenceOnline - user came online.
type PresenceOnline struct {
	UserID string
}

// PresenceOffline - user went offline.
type PresenceOffline struct {
	UserID string
}

// TypingStart - a peer started composing in a conversation.
type TypingStart struct {
	ConversationID string
	UserID         string
}

// TypingStop - a peer stopped composing.
type TypingStop struct {
	ConversationID string
	UserID         string
}

// MessageNew - a message was delivered for one of the user's conversations.
type MessageNew struct {
	Message Message
}

// MessageDeleted - a message was removed.
type MessageDeleted struct {
	ConversationID string
	MessageID      string
}

// ConversationCreated - membership changed server-side; re-fetch the list.
type ConversationCreated struct {
	ConversationID   string
	ConversationType string
	ConversationName string
	CreatedBy        string
}

func (ConnectionAck) isEvent()       {}
func (PresenceState) isEvent()       {}
func (PresenceOnline) isEvent()      {}
func (PresenceOffline) isEvent()     {}
func (TypingStart) isEvent()         {}
func (TypingStop) isEvent()          {}
func (MessageNew) isEvent()          {}
func (MessageDeleted) isEvent()      {}
func (ConversationCreated) isEvent() {}

// ErrUnknownEvent is returned by Decode for event names outside the contract.
type ErrUnknownEvent struct {
	Name string
}

func (e ErrUnknownEvent) Error() string {
	return fmt.Sprintf("unknown event type: %s", e.Name)
}

// Decode turns a wire envelope into its typed variant. A payload that does not
// unmarshal into the expected shape is an error; callers drop the event rather
// than apply a half-parsed mutation.
func Decode(ev WsEvent) (Event, error) {
	switch ev.Event {
	case EventConnectionAck:
		var p AckPayload
		if err := unmarshal(ev, &p); err != nil {
			return nil, err
		}
		return ConnectionAck{UserID: p.UserID}, nil

	case EventPresenceState:
		var p PresenceStatePayload
		if err := unmarshal(ev, &p); err != nil {
			return nil, err
		}
		return PresenceState{Online: p.Online}, nil

	case EventPresenceOnline:
		var p PresencePayload
		if err := unmarshal(ev, &p); err != nil {
			return nil, err
		}
		if p.UserID == "" {
			return nil, fmt.Errorf("%s: missing userId", ev.Event)
		}
		return PresenceOnline{UserID: p.UserID}, nil

	case EventPresenceOffline:
		var p PresencePayload
		if err := unmarshal(ev, &p); err != nil {
			return nil, err
		}
		if p.UserID == "" {
			return nil, fmt.Errorf("%s: missing userId", ev.Event)
		}
		return PresenceOffline{UserID: p.UserID}, nil

	case EventTypingStart:
		var p TypingPayload
		if err := unmarshal(ev, &p); err != nil {
			return nil, err
		}
		if p.ConversationID == "" || p.UserID == "" {
			return nil, fmt.Errorf("%s: missing conversationId or userId", ev.Event)
		}
		return TypingStart{ConversationID: p.ConversationID, UserID: p.UserID}, nil

	case EventTypingStop:
		var p TypingPayload
		if err := unmarshal(ev, &p); err != nil {
			return nil, err
		}
		if p.ConversationID == "" || p.UserID == "" {
			return nil, fmt.Errorf("%s: missing conversationId or userId", ev.Event)
		}
		return TypingStop{ConversationID: p.ConversationID, UserID: p.UserID}, nil

	case EventMessageNew:
		var p Message
		if err := unmarshal(ev, &p); err != nil {
			return nil, err
		}
		if p.ID == "" || p.ConversationID == "" {
			return nil, fmt.Errorf("%s: missing id or conversationId", ev.Event)
		}
		return MessageNew{Message: p}, nil

	case EventMessageDeleted:
		var p MessageDeletedPayload
		if err := unmarshal(ev, &p); err != nil {
			return nil, err
		}
		if p.MessageID == "" {
			return nil, fmt.Errorf("%s: missing messageId", ev.Event)
		}
		return MessageDeleted{ConversationID: p.ConversationID, MessageID: p.MessageID}, nil

	case EventConversationCreated:
		var p ConversationCreatedPayload
		if err := unmarshal(ev, &p); err != nil {
			return nil, err
		}
		return ConversationCreated{
			ConversationID:   p.ConversationID,
			ConversationType: p.ConversationType,
			ConversationName: p.ConversationName,
			CreatedBy:        p.CreatedBy,
		}, nil

	default:
		return nil, ErrUnknownEvent{Name: ev.Event}
	}
}

func unmarshal(ev WsEvent, dst any) error {
	if err := json.Unmarshal(ev.Payload, dst); err != nil {
		return fmt.Errorf("%s: bad payload: %w", ev.Event, err)
	}
	return nil
}
