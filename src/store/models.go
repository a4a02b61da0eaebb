package store

import "time"

// Role of a marketplace participant.
type Role string

const (
	RoleBuyer         Role = "buyer"
	RoleDistributor   Role = "distributor"
	RoleAdministrator Role = "administrator"
)

// Chat is a conversation thread with a counterpart. AdminID is set when
// the chat is linked to an administrator.
type Chat struct {
	ID              int64  `json:"id"`
	CounterpartName string `json:"counterpartName,omitempty"`
	DistributorID   *int64 `json:"distributorId,omitempty"`
	AdminID         *int64 `json:"adminId,omitempty"`
}

// IsAdministrator reports whether the chat is linked to an administrator.
func (c Chat) IsAdministrator() bool { return c.AdminID != nil }

// Message is a chat message. Immutable once received.
type Message struct {
	ID         string    `json:"id"`
	ChatID     int64     `json:"chatId" validate:"gt=0"`
	SenderID   string    `json:"senderId"`
	SenderRole Role      `json:"senderRole,omitempty"`
	Content    string    `json:"content" validate:"required"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Announcement is a broadcast message posted to a chat.
type Announcement struct {
	ID        string    `json:"id"`
	ChatID    int64     `json:"chatId" validate:"gt=0"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content" validate:"required"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notification is a personal notification, independent of chats.
type Notification struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message" validate:"required"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventKind identifies what changed in the store.
type EventKind int

const (
	ChatsChanged EventKind = iota
	MessageAdded
	AnnouncementAdded
	NotificationsChanged
	SearchChanged
)

// Event describes a store mutation. ChatID is set for message and
// announcement events.
type Event struct {
	Kind   EventKind
	ChatID int64
}
