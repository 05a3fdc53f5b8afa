package websocket

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024
)

type Client struct {
	ID           string
	UserID       string
	Username     string
	WorkflowID   string
	Color        string
	Hub          *Hub
	Conn         *websocket.Conn
	Send         chan Message
	Processor    *MessageProcessor
	ProcessQueue chan Message
	Logger       zerolog.Logger
}

func NewClient(id, userID, username, workflowID string, hub *Hub, conn *websocket.Conn, processor *MessageProcessor, logger zerolog.Logger) *Client {
	return &Client{
		ID:           id,
		UserID:       userID,
		Username:     username,
		WorkflowID:   workflowID,
		Color:        generateUserColor(userID),
		Hub:          hub,
		Conn:         conn,
		Send:         make(chan Message, 256),
		Processor:    processor,
		ProcessQueue: make(chan Message, 100),
		Logger:       logger,
	}
}

func (c *Client) Info() UserInfo {
	return UserInfo{UserID: c.UserID, Username: c.Username, Color: c.Color}
}

// Start runs the client pumps and its sequential processing worker.
func (c *Client) Start(ctx context.Context) {
	go c.processWorker(ctx)
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) ReadPump() {
	defer func() {
		close(c.ProcessQueue)
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Logger.Error().Err(err).Str("clientId", c.ID).Msg("WebSocket read error")
			}
			break
		}

		var msg Message
		if err = json.Unmarshal(messageBytes, &msg); err != nil {
			c.Logger.Error().Err(err).Str("clientId", c.ID).Msg("Failed to unmarshal message")
			c.sendError("Invalid message format", err)
			continue
		}
		if !c.accept(&msg) {
			continue
		}

		if msg.Type == MessageTypePing {
			c.trySend(Message{Type: MessageTypePong, WorkflowID: c.WorkflowID, Timestamp: time.Now()})
			continue
		}

		// Fast path: cursor, chat and other relays
		if !msg.Type.RequiresProcessing() {
			c.Hub.Broadcast <- msg
			continue
		}

		// Slow path: graph edits are applied in order without blocking the reader
		select {
		case c.ProcessQueue <- msg:
		default:
			c.Logger.Warn().
				Str("type", string(msg.Type)).
				Msg("Process queue full, dropping message")
			c.sendError("Server is busy, please try again", nil)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// accept stamps the sender on msg and rejects frames addressed to another
// workflow.
func (c *Client) accept(msg *Message) bool {
	if msg.WorkflowID != "" && msg.WorkflowID != c.WorkflowID {
		c.sendError("Message workflow ID does not match connection workflow ID", nil)
		return false
	}
	msg.WorkflowID = c.WorkflowID
	msg.UserID = c.UserID
	msg.Username = c.Username
	msg.Timestamp = time.Now()
	return true
}

func (c *Client) sendError(errorMsg string, err error) {
	c.trySend(NewErrorMessage(c.WorkflowID, c.UserID, c.Username, errorMsg, err))
}

func (c *Client) trySend(msg Message) {
	select {
	case c.Send <- msg:
	default:
	}
}

// processWorker applies queued edits one at a time so every client sees them
// in the order they were sent.
func (c *Client) processWorker(ctx context.Context) {
	c.Logger.Debug().Str("clientId", c.ID).Msg("Process worker started")

	for msg := range c.ProcessQueue {
		processed, err := c.Processor.ProcessMessage(ctx, &msg)
		if err != nil {
			c.Logger.Error().
				Err(err).
				Str("type", string(msg.Type)).
				Str("userId", msg.UserID).
				Msg("Failed to process message")
			c.sendError(err.Error(), nil)
			continue
		}
		c.Hub.Broadcast <- *processed
	}

	c.Logger.Debug().Str("clientId", c.ID).Msg("Process worker stopped")
}

// generateUserColor generates a consistent color for a user based on their ID
func generateUserColor(userID string) string {
	colors := []string{
		"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A",
		"#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E2",
		"#F8B739", "#52B788", "#E76F51", "#2A9D8F",
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return colors[h.Sum32()%uint32(len(colors))]
}
