package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one live feed connection
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

// ClientMessage is a control request from a client
type ClientMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
}

// NewClient wraps an upgraded connection
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: logger.With("client_id", id),
	}
}

// readLoop handles control requests until the connection fails. The feed
// is server-push only, so anything else is answered with an error
func (c *Client) readLoop() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req ClientMessage
		if err := c.conn.ReadJSON(&req); err != nil {
			if badJSON(err) {
				c.reply(Message{Type: MessageTypeError, Data: map[string]string{"error": "invalid message format"}})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		c.handle(req)
	}
}

func badJSON(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func (c *Client) handle(req ClientMessage) {
	switch req.Type {
	case MessageTypeSubscribe:
		if !validTopic(req.Topic) {
			c.reply(Message{Type: MessageTypeError, Topic: req.Topic, Data: map[string]string{"error": "unknown topic"}})
			return
		}
		c.hub.Subscribe(c, req.Topic)
		c.reply(Message{Type: "subscribed", Topic: req.Topic})

	case MessageTypeUnsubscribe:
		if req.Topic == "" {
			return
		}
		c.hub.Unsubscribe(c, req.Topic)
		c.reply(Message{Type: "unsubscribed", Topic: req.Topic})

	case MessageTypePing:
		c.reply(Message{Type: MessageTypePong})

	default:
		c.reply(Message{Type: MessageTypeError, Data: map[string]string{"error": "unknown message type"}})
	}
}

// validTopic accepts the fixed topics and user:<id>
func validTopic(topic string) bool {
	switch topic {
	case TopicAll, TopicSolves, TopicStreaks, TopicDaily, TopicWeekly, TopicUsers:
		return true
	}
	id, ok := strings.CutPrefix(topic, "user:")
	return ok && id != ""
}

// writeLoop writes queued frames, one JSON document per frame, and keeps
// the connection alive with pings
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply queues a control response. It is dropped when the client is not
// keeping up
func (c *Client) reply(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to encode reply", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client buffer full, dropping reply", "type", msg.Type)
	}
}

// ServeWs upgrades the request and registers the connection. Repeated
// topic query parameters subscribe the client right away
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, logger)
	hub.Register(client)
	for _, topic := range r.URL.Query()["topic"] {
		if validTopic(topic) {
			hub.Subscribe(client, topic)
		}
	}

	go client.writeLoop()
	go client.readLoop()

	client.logger.Debug("websocket connected", "remote", r.RemoteAddr)
}
