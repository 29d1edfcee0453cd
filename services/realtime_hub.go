package services

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"stock_alert_backend/models"
)

const (
	MaxWebSocketClients   = 100
	WebSocketWriteTimeout = 10 * time.Second
	WebSocketPongTimeout  = 60 * time.Second
	WebSocketPingInterval = 30 * time.Second
	clientSendBuffer      = 64
	maxClientMessageSize  = 4096
)

// clientMessage is what a websocket client sends
type clientMessage struct {
	Action  string   `json:"action"` // subscribe | unsubscribe | ping
	Symbols []string `json:"symbols"`
}

// serverMessage is what the hub pushes to clients
type serverMessage struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Symbols []string    `json:"symbols,omitempty"`
	Time    string      `json:"time,omitempty"`
}

// HubClient is one live websocket connection
type HubClient struct {
	hub     *Hub
	conn    *websocket.Conn
	userID  uint
	send    chan []byte
	symbols map[string]bool // guarded by hub.mu
	closed  bool            // guarded by hub.mu
}

// Hub maintains symbol subscriptions per connection and fans quote
// updates out to exactly the connections subscribed to that symbol.
// Sends never block: a client whose buffer is full is treated as
// disconnected and purged, so one slow consumer cannot stall the rest.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*HubClient]bool
	subscribers map[string]map[*HubClient]bool
	userClients map[uint]map[*HubClient]bool

	upgrader   websocket.Upgrader
	maxClients int
}

// NewHub creates a fan-out hub
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*HubClient]bool),
		subscribers: make(map[string]map[*HubClient]bool),
		userClients: make(map[uint]map[*HubClient]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		maxClients: MaxWebSocketClients,
	}
}

// register adds a connection, enforcing the client cap
func (h *Hub) register(c *HubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.maxClients {
		return false
	}
	h.clients[c] = true
	if h.userClients[c.userID] == nil {
		h.userClients[c.userID] = make(map[*HubClient]bool)
	}
	h.userClients[c.userID][c] = true
	log.Printf("WebSocket client connected. Total clients: %d", len(h.clients))
	return true
}

// Subscribe adds symbols to a client's watch set and returns the
// client's full set afterwards.
func (h *Hub) Subscribe(c *HubClient, symbols []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return nil
	}
	for _, s := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(s))
		if symbol == "" {
			continue
		}
		c.symbols[symbol] = true
		if h.subscribers[symbol] == nil {
			h.subscribers[symbol] = make(map[*HubClient]bool)
		}
		h.subscribers[symbol][c] = true
	}
	return c.symbolList()
}

// Unsubscribe removes symbols from a client's watch set and returns the
// client's remaining set.
func (h *Hub) Unsubscribe(c *HubClient, symbols []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(s))
		delete(c.symbols, symbol)
		h.dropSubscriber(symbol, c)
	}
	return c.symbolList()
}

// Disconnect removes a client from every symbol index and closes its
// send channel. Safe to call more than once.
func (h *Hub) Disconnect(c *HubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnectLocked(c)
}

func (h *Hub) disconnectLocked(c *HubClient) {
	if c.closed {
		return
	}
	c.closed = true
	delete(h.clients, c)
	if set := h.userClients[c.userID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.userClients, c.userID)
		}
	}
	for symbol := range c.symbols {
		h.dropSubscriber(symbol, c)
	}
	close(c.send)
	log.Printf("WebSocket client disconnected. Total clients: %d", len(h.clients))
}

// dropSubscriber removes one client from one symbol's set. Caller holds mu.
func (h *Hub) dropSubscriber(symbol string, c *HubClient) {
	set := h.subscribers[symbol]
	if set == nil {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.subscribers, symbol)
	}
}

// BroadcastQuote pushes a quote_update to every connection subscribed to
// the symbol. Cost is proportional to that symbol's subscriber count.
func (h *Hub) BroadcastQuote(symbol string, q *Quote) {
	h.broadcast(symbol, serverMessage{
		Type: "quote_update",
		Data: q,
		Time: time.Now().UTC().Format(time.RFC3339),
	})
}

// NotificationCreated implements NotificationSubscriber. A notification
// is private to its owner: it goes to that user's connections only,
// never to other watchers of the symbol.
func (h *Hub) NotificationCreated(n *models.Notification) {
	data, err := json.Marshal(serverMessage{
		Type: "notification",
		Data: n,
		Time: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("Error marshaling notification message: %v", err)
		return
	}

	var dead []*HubClient

	h.mu.RLock()
	for c := range h.userClients[n.UserID] {
		select {
		case c.send <- data:
		default:
			dead = append(dead, c)
		}
	}
	h.mu.RUnlock()

	if len(dead) > 0 {
		h.mu.Lock()
		for _, c := range dead {
			h.disconnectLocked(c)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) broadcast(symbol string, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshaling broadcast message: %v", err)
		return
	}

	var dead []*HubClient

	h.mu.RLock()
	for c := range h.subscribers[symbol] {
		select {
		case c.send <- data:
		default:
			// Buffer full: slow or gone, purge instead of blocking
			dead = append(dead, c)
		}
	}
	h.mu.RUnlock()

	if len(dead) > 0 {
		h.mu.Lock()
		for _, c := range dead {
			h.disconnectLocked(c)
		}
		h.mu.Unlock()
	}
}

// SubscribedSymbols returns every symbol at least one client watches
func (h *Hub) SubscribedSymbols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	symbols := make([]string, 0, len(h.subscribers))
	for s := range h.subscribers {
		symbols = append(symbols, s)
	}
	return symbols
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every client
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*HubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if c.conn != nil {
			c.conn.Close()
		}
		h.Disconnect(c)
	}
}

// symbolList returns the client's subscriptions. Caller holds hub.mu.
func (c *HubClient) symbolList() []string {
	symbols := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		symbols = append(symbols, s)
	}
	return symbols
}

// ServeWS upgrades an authenticated HTTP request to a websocket
// connection owned by the given user and runs it.
// GET /ws/stocks
func (h *Hub) ServeWS(c *gin.Context, userID uint) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &HubClient{
		hub:     h,
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, clientSendBuffer),
		symbols: make(map[string]bool),
	}

	if !h.register(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Server at capacity"))
		conn.Close()
		log.Printf("WebSocket client rejected: max clients reached (%d)", h.maxClients)
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump reads subscribe/unsubscribe messages until the connection dies
func (c *HubClient) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxClientMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(WebSocketPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(WebSocketPongTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(serverMessage{Type: "error", Data: "invalid message"})
			continue
		}

		switch msg.Action {
		case "subscribe":
			current := c.hub.Subscribe(c, msg.Symbols)
			c.reply(serverMessage{Type: "subscribed", Symbols: current})
		case "unsubscribe":
			current := c.hub.Unsubscribe(c, msg.Symbols)
			c.reply(serverMessage{Type: "unsubscribed", Symbols: current})
		case "ping":
			c.reply(serverMessage{Type: "pong"})
		default:
			c.reply(serverMessage{Type: "error", Data: "unknown action"})
		}
	}
}

// reply queues a message for this client only, dropping it if the
// client is too far behind.
func (c *HubClient) reply(msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump drains the send channel onto the wire and keeps the
// connection alive with pings.
func (c *HubClient) writePump() {
	ticker := time.NewTicker(WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
