package store

import (
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// Store holds chats, messages, announcements and notifications, and
// derives filtered and sorted views on every read. It never performs I/O.
type Store struct {
	mu            sync.RWMutex
	chats         []Chat
	messages      map[int64][]Message
	seen          map[string]struct{}
	announcements map[int64][]Announcement
	notifications []Notification
	search        string

	watchMu  sync.Mutex
	watchers map[int]func(Event)
	nextID   int
}

func New() *Store {
	return &Store{
		messages:      make(map[int64][]Message),
		seen:          make(map[string]struct{}),
		announcements: make(map[int64][]Announcement),
		watchers:      make(map[int]func(Event)),
	}
}

// Watch registers fn to be called after each mutation and returns a func
// that removes it. fn runs outside the store lock.
func (s *Store) Watch(fn func(Event)) func() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	return func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		delete(s.watchers, id)
	}
}

func (s *Store) emit(e Event) {
	s.watchMu.Lock()
	watchers := lo.Values(s.watchers)
	s.watchMu.Unlock()
	for _, fn := range watchers {
		fn(e)
	}
}

// SetChats replaces the chat list.
func (s *Store) SetChats(chats []Chat) {
	s.mu.Lock()
	s.chats = slices.Clone(chats)
	s.mu.Unlock()
	s.emit(Event{Kind: ChatsChanged})
}

// UpsertChat replaces the chat with the same id or appends it.
func (s *Store) UpsertChat(chat Chat) {
	s.mu.Lock()
	if i := slices.IndexFunc(s.chats, func(c Chat) bool { return c.ID == chat.ID }); i >= 0 {
		s.chats[i] = chat
	} else {
		s.chats = append(s.chats, chat)
	}
	s.mu.Unlock()
	s.emit(Event{Kind: ChatsChanged})
}

// Chat returns the chat with id.
func (s *Store) Chat(id int64) (Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := lo.Find(s.chats, func(c Chat) bool { return c.ID == id })
	if !ok {
		return Chat{}, ErrChatNotFound
	}
	return chat, nil
}

// Chats returns the base chat list in insertion order.
func (s *Store) Chats() []Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.chats)
}

// SetSearchTerm sets the free-text chat filter.
func (s *Store) SetSearchTerm(term string) {
	s.mu.Lock()
	s.search = term
	s.mu.Unlock()
	s.emit(Event{Kind: SearchChanged})
}

func (s *Store) SearchTerm() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search
}

// FilteredChats keeps chats whose counterpart name contains the search term,
// case-insensitively. Chats without a counterpart name always pass.
func (s *Store) FilteredChats() []Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FilterChats(s.chats, s.search)
}

// SortedChats orders administrator-linked chats first, preserving relative
// order otherwise.
func (s *Store) SortedChats() []Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SortChats(s.chats)
}

// VisibleChats is the sorted view of the filtered chats.
func (s *Store) VisibleChats() []Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SortChats(FilterChats(s.chats, s.search))
}

// FilterChats returns the chats matching term. It does not modify chats.
func FilterChats(chats []Chat, term string) []Chat {
	needle := strings.ToLower(term)
	return lo.Filter(chats, func(c Chat, _ int) bool {
		if c.CounterpartName == "" || needle == "" {
			return true
		}
		return strings.Contains(strings.ToLower(c.CounterpartName), needle)
	})
}

// SortChats returns a stable copy with administrator-linked chats first.
func SortChats(chats []Chat) []Chat {
	sorted := slices.Clone(chats)
	slices.SortStableFunc(sorted, func(a, b Chat) int {
		switch {
		case a.IsAdministrator() == b.IsAdministrator():
			return 0
		case a.IsAdministrator():
			return -1
		default:
			return 1
		}
	})
	return sorted
}
