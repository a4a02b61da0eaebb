package store

import "errors"

var (
	ErrChatNotFound         = errors.New("chat not found")
	ErrNotificationNotFound = errors.New("notification not found")
)
