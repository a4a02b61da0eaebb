package hub

import (
	"github.com/gudfood/realtime/src/types"
)

// SessionIDs returns the ids of all open sessions.
func (h *Hub) SessionIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	return ids
}

// SessionInfo returns info for an open session, or nil.
func (h *Hub) SessionInfo(id string) *types.SessionInfo {
	h.mu.RLock()
	s, ok := h.sessions[id]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	info := s.Info()
	return &info
}

// Destinations returns routed destinations with their subscription counts.
func (h *Hub) Destinations() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make(map[string]int, len(h.destinations))
	for dest, subs := range h.destinations {
		result[dest] = len(subs)
	}
	return result
}

// SessionCount returns the number of open sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseSessions closes every open transport. Sessions unregister as their
// read pumps exit.
func (h *Hub) CloseSessions() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		_ = s.conn.Close()
	}
}
