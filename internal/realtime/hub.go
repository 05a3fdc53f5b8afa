package realtime

import (
	"context"

	"github.com/rs/zerolog"
)

// Hub manages WebSocket clients and routes progress by workflow id.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// workflowID -> set of subscribed clients
	subscriptions map[string]map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscribeMsg
	unsubscribe chan subscribeMsg
	broadcast   chan broadcastMsg
	done        chan struct{}

	logger zerolog.Logger
}

type subscribeMsg struct {
	client     *Client
	workflowID string
}

type broadcastMsg struct {
	workflowID string
	payload    []byte
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		subscribe:     make(chan subscribeMsg),
		unsubscribe:   make(chan subscribeMsg),
		broadcast:     make(chan broadcastMsg, 256),
		done:          make(chan struct{}),
		logger:        logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug().Int("clients", len(h.clients)).Msg("Client registered")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Debug().Int("clients", len(h.clients)).Msg("Client unregistered")
			}

		case msg := <-h.subscribe:
			if _, ok := h.clients[msg.client]; !ok {
				continue
			}
			if _, ok := h.subscriptions[msg.workflowID]; !ok {
				h.subscriptions[msg.workflowID] = make(map[*Client]bool)
			}
			h.subscriptions[msg.workflowID][msg.client] = true
			h.logger.Debug().
				Str("workflowId", msg.workflowID).
				Int("subscribers", len(h.subscriptions[msg.workflowID])).
				Msg("Client subscribed")

		case msg := <-h.unsubscribe:
			h.removeSubscription(msg.workflowID, msg.client)

		case msg := <-h.broadcast:
			for client := range h.subscriptions[msg.workflowID] {
				select {
				case client.send <- msg.payload:
				default:
					// buffer full, the client is too slow to keep
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	for workflowID := range h.subscriptions {
		h.removeSubscription(workflowID, client)
	}
}

func (h *Hub) removeSubscription(workflowID string, client *Client) {
	subs, ok := h.subscriptions[workflowID]
	if !ok {
		return
	}
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.subscriptions, workflowID)
	}
}

// send hands a request to the Run loop unless it has already stopped.
func send[T any](h *Hub, ch chan T, v T) {
	select {
	case ch <- v:
	case <-h.done:
	}
}
