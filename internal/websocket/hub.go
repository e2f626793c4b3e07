package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/leettogether/leetstreak/internal/metrics"
)

// Message types
const (
	MessageTypeEvent       = "event"
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeError       = "error"
)

// Topics clients can subscribe to
const (
	TopicAll     = "all"
	TopicSolves  = "solves"
	TopicStreaks = "streaks"
	TopicDaily   = "daily"
	TopicWeekly  = "weekly"
	TopicUsers   = "users"
)

// UserTopic is the topic carrying one user's events
func UserTopic(discordID string) string {
	return "user:" + discordID
}

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// topicFor maps an event type to its topic. Direct messages are not
// broadcast
func topicFor(eventType string) (string, bool) {
	switch eventType {
	case domain.EventSolve:
		return TopicSolves, true
	case domain.EventStreak:
		return TopicStreaks, true
	case domain.EventDaily:
		return TopicDaily, true
	case domain.EventWeekly:
		return TopicWeekly, true
	case domain.EventRegister, domain.EventUnregister:
		return TopicUsers, true
	default:
		return "", false
	}
}

// Hub maintains the set of active clients and broadcasts events
type Hub struct {
	// Subscribed clients by topic
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *outbound
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type outbound struct {
	topics  []string
	message *Message
}

type subscriptionRequest struct {
	client *Client
	topic  string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *outbound, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("websocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			metrics.LiveClients.Set(float64(len(h.allClients)))
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for topic, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, topic)
						}
					}
				}
				close(client.send)
			}
			metrics.LiveClients.Set(float64(len(h.allClients)))
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			// a request can trail its client's unregister
			if !h.allClients[req.client] {
				h.mu.Unlock()
				continue
			}
			if _, ok := h.clients[req.topic]; !ok {
				h.clients[req.topic] = make(map[*Client]bool)
			}
			h.clients[req.topic][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "topic", req.topic)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.topic]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.topic)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "topic", req.topic)

		case out := <-h.broadcast:
			h.broadcastMessage(out)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message once to every client subscribed to any
// of its topics
func (h *Hub) broadcastMessage(out *outbound) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(out.message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	sent := make(map[*Client]bool)
	for _, topic := range out.topics {
		for client := range h.clients[topic] {
			if sent[client] {
				continue
			}
			sent[client] = true
			select {
			case client.send <- data:
			default:
				h.logger.Warn("client buffer full, skipping", "client_id", client.id)
			}
		}
	}
}

// Publish broadcasts an event to the clients following its topic, its
// user, or everything. Events with no public topic are ignored
func (h *Hub) Publish(_ context.Context, ev domain.Event) error {
	topic, ok := topicFor(ev.Type)
	if !ok {
		return nil
	}
	topics := []string{topic, TopicAll}
	if ev.DiscordID != "" {
		topics = append(topics, UserTopic(ev.DiscordID))
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	select {
	case h.broadcast <- &outbound{topics: topics, message: &Message{Type: MessageTypeEvent, Topic: topic, Data: ev, Timestamp: ts}}:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", ev.Type)
	}
	return nil
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe adds a client to a topic
func (h *Hub) Subscribe(client *Client, topic string) {
	select {
	case h.subscribe <- &subscriptionRequest{client: client, topic: topic}:
	case <-h.ctx.Done():
	}
}

// Unsubscribe removes a client from a topic
func (h *Hub) Unsubscribe(client *Client, topic string) {
	select {
	case h.unsubscribe <- &subscriptionRequest{client: client, topic: topic}:
	case <-h.ctx.Done():
	}
}

// GetSubscriberCount returns the number of subscribers for a topic
func (h *Hub) GetSubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
