package service

import (
	"github.com/cespare/xxhash/v2"
	"github.com/gudfood/realtime/src/store"
	"github.com/gudfood/realtime/src/types"
)

func (s *ChatService) onChatMessage(chatID int64) types.MessageHandler {
	return func(msg types.Message) {
		var m store.Message
		if !s.decode(msg, &m) {
			return
		}
		if m.ID == "" {
			m.ID = msg.ID
		}
		// The broker stamps the authenticated sender; a payload cannot override it.
		if sender := msg.Headers["sender"]; sender != "" {
			m.SenderID = sender
		}
		m.ChatID = chatID
		if err := validate.Struct(m); err != nil {
			s.drop(msg, err)
			return
		}
		s.store.AppendMessage(m)
	}
}

func (s *ChatService) onAnnouncement(chatID int64) types.MessageHandler {
	return func(msg types.Message) {
		var a store.Announcement
		if !s.decode(msg, &a) {
			return
		}
		if a.ID == "" {
			a.ID = msg.ID
		}
		a.ChatID = chatID
		if err := validate.Struct(a); err != nil {
			s.drop(msg, err)
			return
		}
		s.store.AppendAnnouncement(a)
	}
}

func (s *ChatService) onNotification(msg types.Message) {
	var n store.Notification
	if !s.decode(msg, &n) {
		return
	}
	if n.ID == 0 {
		n.ID = notificationID(msg.ID)
	}
	if err := validate.Struct(n); err != nil {
		s.drop(msg, err)
		return
	}
	s.store.AddNotification(n)
}

func (s *ChatService) decode(msg types.Message, v any) bool {
	if err := msg.Decode(v); err != nil {
		s.drop(msg, err)
		return false
	}
	return true
}

func (s *ChatService) drop(msg types.Message, err error) {
	s.logger.Warn().
		Err(err).
		Str("destination", msg.Destination).
		Str("message_id", msg.ID).
		Msg("malformed payload dropped")
}

// notificationID derives a stable positive id from the broker message-id for
// notifications pushed without one.
func notificationID(messageID string) int64 {
	return int64(xxhash.Sum64String(messageID)>>1) | 1
}
