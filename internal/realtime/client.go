package realtime

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufSize    = 256
)

// Client represents a single WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	logger zerolog.Logger
}

// incomingMsg is a command from the browser.
type incomingMsg struct {
	Action     string `json:"action"` // "subscribe" or "unsubscribe"
	WorkflowID string `json:"workflowId"`
}

// outgoingMsg is the envelope sent to the browser.
type outgoingMsg struct {
	Type       string          `json:"type"`
	WorkflowID string          `json:"workflowId"`
	Payload    json.RawMessage `json:"payload"`
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string, logger zerolog.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufSize),
		userID: userID,
		logger: logger,
	}
}

// ReadPump reads commands from the WebSocket connection.
func (c *Client) ReadPump() {
	defer func() {
		send(c.hub, c.hub.unregister, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Str("userId", c.userID).Msg("WebSocket read error")
			}
			break
		}
		c.handle(message)
	}
}

func (c *Client) handle(message []byte) {
	var msg incomingMsg
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Debug().Err(err).Msg("Ignoring malformed command")
		return
	}
	if msg.WorkflowID == "" {
		return
	}

	switch msg.Action {
	case "subscribe":
		send(c.hub, c.hub.subscribe, subscribeMsg{client: c, workflowID: msg.WorkflowID})
	case "unsubscribe":
		send(c.hub, c.hub.unsubscribe, subscribeMsg{client: c, workflowID: msg.WorkflowID})
	default:
		c.logger.Debug().Str("action", msg.Action).Msg("Unknown action")
	}
}

// WritePump writes messages to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
