// Package chatclient implements the dashboard's realtime conversation core:
// one managed socket per session, a reconciled conversation cache, presence
// and typing state, and unread accounting. The REST API seeds the cache once;
// after that every mutation arrives as a live event, so the dashboard never
// polls.
package chatclient

import (
	"sort"
	"sync"
	"time"
)

// Conversation is the client-side view of a chat thread.
type Conversation struct {
	ID            string
	Type          string // "private" or "group"
	DisplayName   string
	DisplayID     string // private chats: the peer's user id, used for presence lookup
	LastMessage   string
	LastMessageAt time.Time
	UnreadCount   int
}

// Message is the client-side view of a chat message. ID is the deduplication
// key: the optimistic copy applied at send time and the live echo carry the
// same id.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Store is the authoritative client-side cache of conversations and the
// active conversation's message list. Every mutation is serialized behind one
// mutex: the event reducer and UI-action paths never interleave partial
// updates.
type Store struct {
	mu            sync.Mutex
	selfID        string
	conversations map[string]*Conversation
	activeID      string
	messages      []Message
	messageIDs    map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[string]*Conversation),
		messageIDs:    make(map[string]struct{}),
	}
}

// SetSelf records the authenticated user so own messages never bump unread
// counters.
func (s *Store) SetSelf(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfID = userID
}

// Self returns the authenticated user id, if known yet.
func (s *Store) Self() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfID
}

// Seed replaces the conversation list with an authoritative REST snapshot.
// The active conversation's message list is untouched; messages remain valid
// across a list refresh.
func (s *Store) Seed(conversations []Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = make(map[string]*Conversation, len(conversations))
	for i := range conversations {
		conv := conversations[i]
		if conv.ID == s.activeID {
			// being displayed counts as read
			conv.UnreadCount = 0
		}
		s.conversations[conv.ID] = &conv
	}
}

// Ordered returns the conversations sorted by recency, newest first, ties
// broken by id so the order is deterministic.
func (s *Store) Ordered() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := make([]Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		ordered = append(ordered, *conv)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].LastMessageAt.Equal(ordered[j].LastMessageAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].LastMessageAt.After(ordered[j].LastMessageAt)
	})
	return ordered
}

// Conversation returns a copy of one conversation.
func (s *Store) Conversation(id string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return Conversation{}, false
	}
	return *conv, true
}

// ActiveID returns the currently displayed conversation, or "".
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// SetActive switches the displayed conversation and installs its fetched
// history, replacing whatever list was loaded before.
func (s *Store) SetActive(conversationID string, history []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeID = conversationID
	s.messages = make([]Message, 0, len(history))
	s.messageIDs = make(map[string]struct{}, len(history))
	for _, m := range history {
		if _, dup := s.messageIDs[m.ID]; dup {
			continue
		}
		s.messages = append(s.messages, m)
		s.messageIDs[m.ID] = struct{}{}
	}
}

// ClearActive closes the conversation view.
func (s *Store) ClearActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = ""
	s.messages = nil
	s.messageIDs = make(map[string]struct{})
}

// Messages returns a copy of the active conversation's message list.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// UpsertMessage applies a message idempotently. If the message belongs to the
// active conversation and its id is already present this is a no-op; that is
// what lets the optimistic local echo and the server event coexist. The
// owning conversation's preview and recency are always refreshed. Returns
// true when the message was appended to the active list.
func (s *Store) UpsertMessage(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	appended := false
	if msg.ConversationID == s.activeID && s.activeID != "" {
		if _, dup := s.messageIDs[msg.ID]; !dup {
			s.messages = append(s.messages, msg)
			s.messageIDs[msg.ID] = struct{}{}
			appended = true
		}
	}

	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		// message for a thread the snapshot did not carry; track a stub so
		// ordering and unread work until the next list refresh fills it in
		conv = &Conversation{ID: msg.ConversationID, DisplayName: msg.SenderName}
		s.conversations[msg.ConversationID] = conv
	}
	if msg.CreatedAt.After(conv.LastMessageAt) {
		conv.LastMessage = msg.Text
		conv.LastMessageAt = msg.CreatedAt
	}
	return appended
}

// RemoveMessage drops a message from the active list if present; no-op
// otherwise.
func (s *Store) RemoveMessage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messageIDs[id]; !ok {
		return
	}
	delete(s.messageIDs, id)
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			break
		}
	}
}

// BumpUnread increments a conversation's unread counter. The active
// conversation is considered read by virtue of being displayed, so bumping it
// is a no-op.
func (s *Store) BumpUnread(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conversationID == s.activeID {
		return
	}
	if conv, ok := s.conversations[conversationID]; ok {
		conv.UnreadCount++
	}
}

// MarkReadLocal zeroes the unread counter. The read-receipt REST call is the
// session's job; the store only tracks local state.
func (s *Store) MarkReadLocal(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[conversationID]; ok {
		conv.UnreadCount = 0
	}
}

// Unread returns a conversation's unread count.
func (s *Store) Unread(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[conversationID]; ok {
		return conv.UnreadCount
	}
	return 0
}
