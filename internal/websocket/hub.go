package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/callowcreation/sfs-api/pkg/logging"
)

// Hub mirrors every outbound broadcast to locally connected websocket
// clients, keyed by broadcaster channel id. Overlays and local development
// use it instead of the Twitch PubSub path.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan frame
	register   chan *Client
	unregister chan *Client
	logger     logging.Logger
	mutex      sync.RWMutex
}

// Client represents one websocket connection and the channels it watches.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger logging.Logger

	mu       sync.Mutex
	channels map[string]bool
}

func (c *Client) watching(channelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[channelID]
}

type frame struct {
	channelID string
	payload   []byte
}

// SubscriptionMessage is the only inbound message clients send.
type SubscriptionMessage struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan frame, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.WithField("client_count", count).Info("Websocket client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.WithField("client_count", count).Info("Websocket client disconnected")

		case f := <-h.broadcast:
			h.fanOut(f)
		}
	}
}

func (h *Hub) fanOut(f frame) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		if !client.watching(f.channelID) {
			continue
		}
		select {
		case client.send <- f.payload:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// Send queues a message for every client watching channelID. It satisfies
// the dispatcher's Sender interface; a full queue drops the frame rather
// than blocking the caller.
func (h *Hub) Send(ctx context.Context, channelID string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- frame{channelID: channelID, payload: payload}:
	default:
		h.logger.WithField("channel_id", channelID).Warn("Websocket broadcast queue full, dropping message")
	}
	return nil
}

// Stats reports connected clients and per-channel watcher counts.
func (h *Hub) Stats() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	watchers := make(map[string]int)
	for client := range h.clients {
		client.mu.Lock()
		for channel := range client.channels {
			watchers[channel]++
		}
		client.mu.Unlock()
	}
	return map[string]interface{}{
		"total_clients":    len(h.clients),
		"channel_watchers": watchers,
	}
}

// ServeWS upgrades an HTTP request into a hub connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade websocket connection")
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		channels: make(map[string]bool),
		logger:   h.logger,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// readPump consumes subscription messages until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("Websocket connection error")
			}
			break
		}

		var subMsg SubscriptionMessage
		if err := json.Unmarshal(message, &subMsg); err != nil {
			c.logger.WithError(err).Warn("Invalid subscription message")
			continue
		}
		c.handleSubscription(&subMsg)
	}
}

// writePump pushes queued frames and keepalive pings to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

func (c *Client) handleSubscription(msg *SubscriptionMessage) {
	c.mu.Lock()
	switch msg.Action {
	case "subscribe":
		for _, channel := range msg.Channels {
			c.channels[channel] = true
		}
	case "unsubscribe":
		for _, channel := range msg.Channels {
			delete(c.channels, channel)
		}
	default:
		c.mu.Unlock()
		return
	}

	watching := make([]string, 0, len(c.channels))
	for channel := range c.channels {
		watching = append(watching, channel)
	}
	c.mu.Unlock()
	c.confirm(map[string]interface{}{
		"type":     msg.Action + "_confirmed",
		"channels": watching,
	})
}

func (c *Client) confirm(data map[string]interface{}) {
	message, err := json.Marshal(data)
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal confirmation")
		return
	}
	select {
	case c.send <- message:
	default:
	}
}
