package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gudfood/realtime/src/client"
	"github.com/gudfood/realtime/src/store"
	"github.com/rs/zerolog"
)

var validate = validator.New()

// Options configures the chat service.
type Options struct {
	UserID string
	Role   store.Role
	// Acknowledge makes SendChatMessage wait for a broker receipt.
	Acknowledge bool
}

// ChatService binds a messaging client to a state store and owns the
// destination naming.
type ChatService struct {
	client *client.Client
	store  *store.Store
	opts   Options
	logger zerolog.Logger
}

// New creates a chat service. The client is not connected by New.
func New(c *client.Client, s *store.Store, opts Options, logger zerolog.Logger) *ChatService {
	return &ChatService{
		client: c,
		store:  s,
		opts:   opts,
		logger: logger.With().Str("component", "chat-service").Logger(),
	}
}

func (s *ChatService) Client() *client.Client { return s.client }

func (s *ChatService) Store() *store.Store { return s.store }

// ChatHandle holds the subscriptions of one open chat.
type ChatHandle struct {
	ChatID        int64
	messages      *client.Subscription
	announcements *client.Subscription
}

// Close releases both subscriptions. Safe to call more than once.
func (h *ChatHandle) Close() error {
	return errors.Join(h.messages.Unsubscribe(), h.announcements.Unsubscribe())
}

// OpenChat subscribes to a chat's messages and announcements.
func (s *ChatService) OpenChat(chatID int64) (*ChatHandle, error) {
	messages, err := s.client.Subscribe(ChatDestination(chatID), s.onChatMessage(chatID))
	if err != nil {
		return nil, fmt.Errorf("open chat %d: %w", chatID, err)
	}
	announcements, err := s.client.Subscribe(AnnouncementsDestination(chatID), s.onAnnouncement(chatID))
	if err != nil {
		_ = messages.Unsubscribe()
		return nil, fmt.Errorf("open chat %d: %w", chatID, err)
	}
	s.logger.Info().Int64("chat_id", chatID).Msg("chat opened")
	return &ChatHandle{ChatID: chatID, messages: messages, announcements: announcements}, nil
}

// WatchNotifications subscribes to the user's personal notifications.
func (s *ChatService) WatchNotifications() (*client.Subscription, error) {
	sub, err := s.client.Subscribe(NotificationsDestination, s.onNotification)
	if err != nil {
		return nil, fmt.Errorf("watch notifications: %w", err)
	}
	return sub, nil
}

type outgoingMessage struct {
	ChatID     int64      `json:"chatId" validate:"gt=0"`
	SenderID   string     `json:"senderId,omitempty"`
	SenderRole store.Role `json:"senderRole,omitempty"`
	Content    string     `json:"content" validate:"required,max=4000"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// SendChatMessage validates and publishes a chat message.
func (s *ChatService) SendChatMessage(ctx context.Context, chatID int64, content string) error {
	msg := outgoingMessage{
		ChatID:     chatID,
		SenderID:   s.opts.UserID,
		SenderRole: s.opts.Role,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	if err := validate.Struct(msg); err != nil {
		return fmt.Errorf("invalid chat message: %w", err)
	}
	dest := OutboundChatDestination(chatID)
	if s.opts.Acknowledge {
		return s.client.Publish(ctx, dest, msg)
	}
	return s.client.SendMessage(dest, msg)
}
