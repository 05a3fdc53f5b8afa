package websocket

import (
	"time"
)

// Message is the envelope of every editor session frame. Data holds one of
// the payload types below, decoded on demand.
type Message struct {
	Type       MessageType `json:"type"`
	WorkflowID string      `json:"workflowId,omitempty"`
	UserID     string      `json:"userId"`
	Username   string      `json:"username"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
}

// MessageType represents the type of WebSocket message
type MessageType string

const (
	// Graph edits, processed sequentially per client
	MessageTypeGraphSync     MessageType = "graph_sync"
	MessageTypeNodeDrop      MessageType = "node_drop"
	MessageTypeEdgeConnect   MessageType = "edge_connect"
	MessageTypeNodeMove      MessageType = "node_move"
	MessageTypeNodeConfigure MessageType = "node_configure"
	MessageTypeRunRequest    MessageType = "run_request"

	// Server answers
	MessageTypeGraphState MessageType = "graph_state"
	MessageTypeRunResult  MessageType = "run_result"

	// User interactions
	MessageTypeCursorMove MessageType = "cursor_move"
	MessageTypeChat       MessageType = "chat"
	MessageTypeUserJoin   MessageType = "user_join"
	MessageTypeUserLeave  MessageType = "user_leave"

	// System messages
	MessageTypeError MessageType = "error"
	MessageTypePing  MessageType = "ping"
	MessageTypePong  MessageType = "pong"
)

// RequiresProcessing reports whether a message edits shared state and must go
// through the processor instead of being relayed as is.
func (t MessageType) RequiresProcessing() bool {
	switch t {
	case MessageTypeGraphSync, MessageTypeNodeDrop, MessageTypeEdgeConnect,
		MessageTypeNodeMove, MessageTypeNodeConfigure, MessageTypeRunRequest:
		return true
	default:
		return false
	}
}
