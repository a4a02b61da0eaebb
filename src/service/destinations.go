package service

import "strconv"

const NotificationsDestination = "/user/queue/notifications"

func ChatDestination(chatID int64) string {
	return "/topic/chat/" + strconv.FormatInt(chatID, 10)
}

func AnnouncementsDestination(chatID int64) string {
	return "/topic/announcements/" + strconv.FormatInt(chatID, 10)
}

// OutboundChatDestination is where chat messages are sent. The broker
// rewrites it to ChatDestination.
func OutboundChatDestination(chatID int64) string {
	return "/app/chat/" + strconv.FormatInt(chatID, 10)
}
