package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/score-tracker/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// outbound messages a slow viewer may fall behind by before it misses some
	sendBuffer = 256
)

// viewers connect from wherever the score tracker UI is served
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Client is one viewer connection. It receives the changes of the tables it
// follows and every notice.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	follow []domain.Table
	logger *slog.Logger
}

// ClientMessage is a request sent by a viewer
type ClientMessage struct {
	Type  string       `json:"type"`
	Table domain.Table `json:"table,omitempty"`
}

func newClient(hub *Hub, conn *websocket.Conn, follow []domain.Table, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		follow: follow,
		logger: logger.With("client_id", id),
	}
}

// ServeWs upgrades a viewer connection. Each "table" query parameter names a
// table to follow from the start; unknown names are ignored.
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	var follow []domain.Table
	for _, name := range r.URL.Query()["table"] {
		if table := domain.Table(name); table.Valid() {
			follow = append(follow, table)
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}
	newClient(hub, conn, follow, logger).start()
}

// start registers the client, subscribes it to the tables it follows and
// runs its read and write loops
func (c *Client) start() {
	c.hub.Register(c)
	for _, table := range c.follow {
		c.hub.Subscribe(c, table)
	}
	go c.writeLoop()
	go c.readLoop()
	c.logger.Debug("viewer connected", "tables", c.follow)
}

// readLoop handles viewer requests until the connection fails, then leaves
// the hub
func (c *Client) readLoop() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			return
		}

		var req ClientMessage
		if err := json.Unmarshal(data, &req); err != nil {
			c.logger.Warn("invalid message format", "error", err)
			c.enqueue(errorMessage("invalid message format"))
			continue
		}
		c.enqueue(c.reply(req))
	}
}

// reply applies a viewer request and returns the answer to send back
func (c *Client) reply(req ClientMessage) Message {
	switch req.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		if !req.Table.Valid() {
			return errorMessage("table must be one of players, games, scores")
		}
		ack := "subscribed"
		if req.Type == MessageTypeSubscribe {
			c.hub.Subscribe(c, req.Table)
		} else {
			c.hub.Unsubscribe(c, req.Table)
			ack = "unsubscribed"
		}
		return Message{Type: ack, Table: req.Table, Data: map[string]string{"status": "ok"}, Timestamp: time.Now()}

	case MessageTypePing:
		return Message{Type: MessageTypePong, Timestamp: time.Now()}
	}

	c.logger.Debug("unknown message type", "type", req.Type)
	return errorMessage("unknown message type " + req.Type)
}

func errorMessage(text string) Message {
	return Message{Type: MessageTypeError, Data: map[string]string{"error": text}, Timestamp: time.Now()}
}

// enqueue queues a reply for the write loop. A viewer whose buffer is full
// misses the reply.
func (c *Client) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal reply", "type", msg.Type, "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("viewer buffer full, dropping reply", "type", msg.Type)
	}
}

// writeLoop writes each queued message as its own frame and keeps the
// connection alive with pings. It ends when the hub closes the send channel.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var err error
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			err = c.conn.WriteMessage(websocket.TextMessage, data)
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = c.conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			c.logger.Debug("viewer write failed", "error", err)
			return
		}
	}
}
