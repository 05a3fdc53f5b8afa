package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const roomCleanupInterval = 5 * time.Minute

// Hub maintains the set of active clients and broadcasts messages to clients
type Hub struct {
	// Rooms indexed by workflow ID
	Rooms map[string]*Room

	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan Message

	mu     sync.RWMutex
	Logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		Rooms:      make(map[string]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan Message, 256),
		Logger:     logger,
	}
}

// Run starts the hub's main event loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	cleanupTicker := time.NewTicker(roomCleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.Broadcast:
			h.broadcastMessage(message)

		case <-cleanupTicker.C:
			h.cleanupEmptyRooms()
		}
	}
}

// Room returns the room of a workflow, creating it on first use.
func (h *Hub) Room(workflowID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.Rooms[workflowID]
	if !exists {
		room = NewRoom(workflowID, h.Logger)
		h.Rooms[workflowID] = room
		h.Logger.Info().Str("workflowId", workflowID).Msg("Created new room")
	}
	return room
}

func (h *Hub) registerClient(client *Client) {
	h.Room(client.WorkflowID).AddClient(client)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.Rooms[client.WorkflowID]
	if !exists {
		return
	}

	room.RemoveClient(client)
	close(client.Send)

	if room.IsEmpty() {
		delete(h.Rooms, client.WorkflowID)
		h.Logger.Info().Str("workflowId", client.WorkflowID).Msg("Removed empty room")
	}
}

// broadcastMessage relays a message to its room. Messages are already
// processed by clients before reaching here.
func (h *Hub) broadcastMessage(message Message) {
	h.mu.RLock()
	room, exists := h.Rooms[message.WorkflowID]
	h.mu.RUnlock()

	if !exists {
		h.Logger.Warn().
			Str("workflowId", message.WorkflowID).
			Str("type", string(message.Type)).
			Msg("Room not found for broadcast")
		return
	}

	room.Broadcast(message)

	h.Logger.Debug().
		Str("type", string(message.Type)).
		Str("workflowId", message.WorkflowID).
		Str("userId", message.UserID).
		Msg("Broadcasted message")
}

func (h *Hub) cleanupEmptyRooms() {
	h.mu.Lock()
	defer h.mu.Unlock()

	cleaned := 0
	for workflowID, room := range h.Rooms {
		if room.IsEmpty() {
			delete(h.Rooms, workflowID)
			cleaned++
		}
	}

	if cleaned > 0 {
		h.Logger.Info().
			Int("cleanedRooms", cleaned).
			Int("activeRooms", len(h.Rooms)).
			Msg("Room cleanup completed")
	}
}

// GetRoomStats returns the client count of every active room
func (h *Hub) GetRoomStats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := make(map[string]int, len(h.Rooms))
	for workflowID, room := range h.Rooms {
		stats[workflowID] = room.ClientCount()
	}
	return stats
}

// GetActiveUsersInRoom returns active users in a specific room
func (h *Hub) GetActiveUsersInRoom(workflowID string) []UserInfo {
	h.mu.RLock()
	room, exists := h.Rooms[workflowID]
	h.mu.RUnlock()

	if !exists {
		return []UserInfo{}
	}
	return room.GetActiveUsers()
}
