package hub

import "sort"

// -----------------------------------------------------------------
// Monitor API response models
// -----------------------------------------------------------------

// Stats is the payload of the monitor endpoint.
type Stats struct {
	Status      string          `json:"status"` // "healthy" for now; kept for dashboards
	Connections ConnectionStats `json:"connections"`
	Rooms       []RoomInfo      `json:"rooms"`
	OnlineUsers []string        `json:"onlineUsers"`
}

// ConnectionStats holds connection-level counters.
type ConnectionStats struct {
	TotalConnections int `json:"totalConnections"` // live sockets
	TotalUsers       int `json:"totalUsers"`       // distinct online users
}

// RoomInfo describes one joined conversation room.
type RoomInfo struct {
	ConversationID string `json:"conversationId"`
	JoinedClients  int    `json:"joinedClients"`
}

// Snapshot captures the hub's current connection and room state.
func (h *Hub) Snapshot() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{Status: "healthy"}
	for userID, conns := range h.clientsByUser {
		stats.Connections.TotalConnections += len(conns)
		stats.OnlineUsers = append(stats.OnlineUsers, userID)
	}
	stats.Connections.TotalUsers = len(h.clientsByUser)
	sort.Strings(stats.OnlineUsers)

	for conversationID, room := range h.rooms {
		stats.Rooms = append(stats.Rooms, RoomInfo{
			ConversationID: conversationID,
			JoinedClients:  len(room),
		})
	}
	sort.Slice(stats.Rooms, func(i, j int) bool {
		return stats.Rooms[i].ConversationID < stats.Rooms[j].ConversationID
	})
	return stats
}
