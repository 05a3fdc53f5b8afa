package websocket

import (
	"sync"

	"autoflow/internal/workflow"

	"github.com/rs/zerolog"
)

// Room is the editor session of one workflow: its connected clients and the
// graph they edit together.
type Room struct {
	WorkflowID string
	Clients    map[string]*Client

	graph   workflow.Graph
	version int

	mu     sync.RWMutex
	Logger zerolog.Logger
}

func NewRoom(workflowID string, logger zerolog.Logger) *Room {
	return &Room{
		WorkflowID: workflowID,
		Clients:    make(map[string]*Client),
		Logger:     logger,
	}
}

// AddClient adds a client to the room
func (r *Room) AddClient(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Clients[client.ID] = client
	r.Logger.Info().
		Str("workflowId", r.WorkflowID).
		Str("clientId", client.ID).
		Str("userId", client.UserID).
		Int("totalClients", len(r.Clients)).
		Msg("Client joined room")

	r.sendLocked(NewUserJoinMessage(r.WorkflowID, client.Info()), "")

	// the newcomer also gets who is there and the current graph
	r.trySend(client, systemMessage(MessageTypeUserJoin, r.WorkflowID, map[string]any{
		"activeUsers": r.activeUsersLocked(),
	}))
	r.trySend(client, systemMessage(MessageTypeGraphState, r.WorkflowID, r.stateLocked()))
}

// RemoveClient removes a client from the room
func (r *Room) RemoveClient(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.Clients[client.ID]; !exists {
		return
	}
	delete(r.Clients, client.ID)
	r.Logger.Info().
		Str("workflowId", r.WorkflowID).
		Str("clientId", client.ID).
		Str("userId", client.UserID).
		Int("remainingClients", len(r.Clients)).
		Msg("Client left room")

	r.sendLocked(NewUserLeaveMessage(r.WorkflowID, client.Info()), "")
}

// Broadcast sends a message to all clients in the room
func (r *Room) Broadcast(message Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.sendLocked(message, "")
}

// BroadcastExcept sends a message to all clients in the room except the sender
func (r *Room) BroadcastExcept(message Message, senderID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.sendLocked(message, senderID)
}

// Edit applies fn to the room graph and returns the new state. The graph is
// left untouched when fn fails.
func (r *Room) Edit(fn func(g *workflow.Graph) error) (GraphState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := workflow.Graph{
		Nodes: append([]workflow.Node(nil), r.graph.Nodes...),
		Edges: append([]workflow.Edge(nil), r.graph.Edges...),
	}
	if err := fn(&next); err != nil {
		return GraphState{}, err
	}
	r.graph = next
	r.version++
	return r.stateLocked(), nil
}

// Snapshot returns a copy of the current graph.
func (r *Room) Snapshot() GraphState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stateLocked()
}

// GetActiveUsers returns a list of active users in the room
func (r *Room) GetActiveUsers() []UserInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeUsersLocked()
}

// IsEmpty returns true if the room has no clients
func (r *Room) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Clients) == 0
}

// ClientCount returns the number of clients in the room
func (r *Room) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Clients)
}

func (r *Room) stateLocked() GraphState {
	return GraphState{
		Nodes:   append([]workflow.Node{}, r.graph.Nodes...),
		Edges:   append([]workflow.Edge{}, r.graph.Edges...),
		Version: r.version,
	}
}

func (r *Room) activeUsersLocked() []UserInfo {
	users := make([]UserInfo, 0, len(r.Clients))
	seen := make(map[string]bool)
	for _, client := range r.Clients {
		if !seen[client.UserID] {
			users = append(users, client.Info())
			seen[client.UserID] = true
		}
	}
	return users
}

func (r *Room) sendLocked(message Message, exceptID string) {
	for _, client := range r.Clients {
		if client.ID == exceptID {
			continue
		}
		r.trySend(client, message)
	}
}

func (r *Room) trySend(client *Client, message Message) {
	select {
	case client.Send <- message:
	default:
		r.Logger.Warn().
			Str("clientId", client.ID).
			Msg("Client send buffer full, message dropped")
	}
}
