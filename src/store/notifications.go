package store

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

// AddNotification stores n, replacing any notification with the same id.
func (s *Store) AddNotification(n Notification) {
	s.mu.Lock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if i := slices.IndexFunc(s.notifications, func(x Notification) bool { return x.ID == n.ID }); i >= 0 {
		s.notifications[i] = n
	} else {
		s.notifications = append(s.notifications, n)
	}
	s.mu.Unlock()
	s.emit(Event{Kind: NotificationsChanged})
}

// MarkNotificationRead flags one notification as read.
func (s *Store) MarkNotificationRead(id int64) error {
	s.mu.Lock()
	i := slices.IndexFunc(s.notifications, func(x Notification) bool { return x.ID == id })
	if i < 0 {
		s.mu.Unlock()
		return ErrNotificationNotFound
	}
	s.notifications[i].Read = true
	s.mu.Unlock()
	s.emit(Event{Kind: NotificationsChanged})
	return nil
}

// MarkAllNotificationsRead flags every notification as read and returns
// how many changed.
func (s *Store) MarkAllNotificationsRead() int {
	s.mu.Lock()
	changed := 0
	for i := range s.notifications {
		if !s.notifications[i].Read {
			s.notifications[i].Read = true
			changed++
		}
	}
	s.mu.Unlock()
	if changed > 0 {
		s.emit(Event{Kind: NotificationsChanged})
	}
	return changed
}

// Notifications returns notifications newest first.
func (s *Store) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sorted := slices.Clone(s.notifications)
	slices.SortStableFunc(sorted, func(a, b Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return sorted
}

func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.CountBy(s.notifications, func(n Notification) bool { return !n.Read })
}
