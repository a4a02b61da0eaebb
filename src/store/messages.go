package store

import (
	"slices"
	"time"
)

// AppendMessage records msg in arrival order. A message whose id was
// already received is ignored and false returned.
func (s *Store) AppendMessage(msg Message) bool {
	s.mu.Lock()
	if msg.ID != "" {
		if _, dup := s.seen[msg.ID]; dup {
			s.mu.Unlock()
			return false
		}
		s.seen[msg.ID] = struct{}{}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], msg)
	s.mu.Unlock()

	s.emit(Event{Kind: MessageAdded, ChatID: msg.ChatID})
	return true
}

// Messages returns the messages of a chat in arrival order.
func (s *Store) Messages(chatID int64) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages[chatID])
}

// AppendAnnouncement records an announcement for its chat.
func (s *Store) AppendAnnouncement(a Announcement) {
	s.mu.Lock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.announcements[a.ChatID] = append(s.announcements[a.ChatID], a)
	s.mu.Unlock()

	s.emit(Event{Kind: AnnouncementAdded, ChatID: a.ChatID})
}

func (s *Store) Announcements(chatID int64) []Announcement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.announcements[chatID])
}
