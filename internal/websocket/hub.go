package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/score-tracker/internal/domain"
)

// Message types
const (
	MessageTypeChange      = "change"
	MessageTypeNotice      = "notice"
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeError       = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string       `json:"type"`
	Table     domain.Table `json:"table,omitempty"`
	Data      any          `json:"data,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Hub maintains the set of active clients and broadcasts messages. Change
// messages go to the clients subscribed to their table, notices go to every
// client.
type Hub struct {
	// Subscribed clients by table
	clients map[domain.Table]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu sync.RWMutex

	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	table  domain.Table
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[domain.Table]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for table, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, table)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.allClients[req.client]; ok {
				if _, ok := h.clients[req.table]; !ok {
					h.clients[req.table] = make(map[*Client]bool)
				}
				h.clients[req.table][req.client] = true
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "table", req.table)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.table]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.table)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "table", req.table)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to its audience
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	audience := h.allClients
	if message.Table != "" {
		audience = h.clients[message.Table]
	}
	for client := range audience {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", message.Type)
	}
}

// BroadcastChange sends a collection change to the table's subscribers
func (h *Hub) BroadcastChange(ev domain.ChangeEvent) {
	h.enqueue(&Message{
		Type:      MessageTypeChange,
		Table:     ev.Table,
		Data:      ev,
		Timestamp: time.Now(),
	})
}

// BroadcastNotice sends a notice to every connected client
func (h *Hub) BroadcastNotice(n domain.Notice) {
	h.enqueue(&Message{
		Type:      MessageTypeNotice,
		Data:      n,
		Timestamp: time.Now(),
	})
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe adds a client to a table's subscribers
func (h *Hub) Subscribe(client *Client, table domain.Table) {
	h.subscribe <- &subscriptionRequest{
		client: client,
		table:  table,
	}
}

// Unsubscribe removes a client from a table's subscribers
func (h *Hub) Unsubscribe(client *Client, table domain.Table) {
	h.unsubscribe <- &subscriptionRequest{
		client: client,
		table:  table,
	}
}

// GetSubscriberCount returns the number of subscribers for a table
func (h *Hub) GetSubscriberCount(table domain.Table) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[table])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
