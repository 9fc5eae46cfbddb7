package chatclient

import (
	"context"

	"go.uber.org/zap"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/event"
)

// run is the reducer loop: the only writer of session state driven by the
// server. It drains the connection's event channel and the seed channel until
// the connection is permanently down.
func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case ev, ok := <-s.conn.Events():
			if !ok {
				if err := s.conn.Err(); err != nil && err != ErrConnectionClosed {
					s.logger.Warn("session ended", zap.Error(err))
				}
				return
			}
			s.reduce(ev)
		case convs := <-s.seedCh:
			s.store.Seed(convs)
		}
	}
}

// reduce applies one event. The switch is total over the event union; the
// connection already dropped anything it could not decode.
func (s *Session) reduce(ev event.Event) {
	switch e := ev.(type) {
	case event.ConnectionAck:
		s.store.SetSelf(e.UserID)

	case event.PresenceState:
		s.present.Replace(e.Online)

	case event.PresenceOnline:
		s.present.Add(e.UserID)

	case event.PresenceOffline:
		s.present.Remove(e.UserID)

	case event.TypingStart:
		if e.UserID != s.store.Self() {
			s.typing.RemoteStart(e.ConversationID, e.UserID)
		}

	case event.TypingStop:
		if e.UserID != s.store.Self() {
			s.typing.RemoteStop(e.ConversationID, e.UserID)
		}

	case event.MessageNew:
		msg := toClientMessage(e.Message)
		s.store.UpsertMessage(msg)
		if msg.SenderID != s.store.Self() && msg.ConversationID != s.store.ActiveID() {
			s.store.BumpUnread(msg.ConversationID)
		}

	case event.MessageDeleted:
		s.store.RemoveMessage(e.MessageID)

	case event.ConversationCreated:
		// membership changed server-side; refetch off the reducer
		// goroutine and hand the result back through seedCh
		go s.refetchConversations()

	default:
		s.logger.Debug("unhandled event", zap.Any("event", ev))
	}
}

func (s *Session) refetchConversations() {
	convs, err := s.rest.ListConversations(context.Background())
	if err != nil {
		s.logger.Warn("conversation refetch failed", zap.Error(err))
		return
	}
	select {
	case s.seedCh <- convs:
	case <-s.done:
	}
}
