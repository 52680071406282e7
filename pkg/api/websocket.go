package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/leskodex/pkg/app/dex"
	"github.com/uhyunpark/leskodex/pkg/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (CORS handled by main server)
		return true
	},
}

// Hub maintains active WebSocket connections and pushes committed events to
// clients subscribed to a matching channel.
type Hub struct {
	log *zap.Logger

	// Registered clients
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Mutex for thread-safe access
	mu sync.RWMutex
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				c.conn.Close()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info("ws_client_connected", zap.String("client", client.id), zap.Int("total", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info("ws_client_disconnected", zap.String("client", client.id), zap.Int("total", n))
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Name() string { return "websocket" }

// Publish implements events.Sink. A client subscribed to several matching
// channels receives the event once.
func (h *Hub) Publish(_ context.Context, ev events.Event) error {
	channels := make([]string, 0, 2+len(ev.Accounts))
	channels = append(channels, ChannelEvents, channelKindPrefix+ev.Kind)
	for _, a := range ev.Accounts {
		channels = append(channels, accountChannel(a))
	}

	message, err := json.Marshal(WSMessage{Type: "event", Event: ev})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.IsSubscribedAny(channels) {
			continue
		}
		select {
		case client.send <- message:
		default:
			h.log.Warn("ws_client_lagging", zap.String("client", client.id), zap.Uint64("seq", ev.Seq))
		}
	}
	return nil
}

func accountChannel(a common.Address) string {
	return channelAccountPrefix + strings.ToLower(a.Hex())
}

// normalizeChannel validates a requested channel and returns its canonical
// name.
func normalizeChannel(ch string) (string, error) {
	switch {
	case ch == ChannelEvents:
		return ch, nil
	case strings.HasPrefix(ch, channelKindPrefix):
		if kind := strings.TrimPrefix(ch, channelKindPrefix); !dex.IsEventKind(kind) {
			return "", fmt.Errorf("unknown event kind %q", kind)
		}
		return ch, nil
	case strings.HasPrefix(ch, channelAccountPrefix):
		addr := strings.TrimPrefix(ch, channelAccountPrefix)
		if !common.IsHexAddress(addr) {
			return "", fmt.Errorf("invalid account %q", addr)
		}
		return accountChannel(common.HexToAddress(addr)), nil
	}
	return "", fmt.Errorf("unknown channel %q", ch)
}

// Client represents a WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	// Subscribed channels
	subscriptions map[string]bool
	subsMu        sync.RWMutex
}

func (c *Client) IsSubscribedAny(channels []string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	for _, ch := range channels {
		if c.subscriptions[ch] {
			return true
		}
	}
	return false
}

func (c *Client) apply(req WSSubscribeRequest) WSAck {
	var names []string
	for _, raw := range req.Channels {
		ch, err := normalizeChannel(raw)
		if err != nil {
			return WSAck{Type: "error", Message: err.Error()}
		}
		names = append(names, ch)
	}

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	switch req.Op {
	case "subscribe":
		for _, ch := range names {
			c.subscriptions[ch] = true
		}
		return WSAck{Type: "subscribed", Channels: names}
	case "unsubscribe":
		for _, ch := range names {
			delete(c.subscriptions, ch)
		}
		return WSAck{Type: "unsubscribed", Channels: names}
	}
	return WSAck{Type: "error", Message: fmt.Sprintf("unknown op %q", req.Op)}
}

func (c *Client) reply(ack WSAck) {
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("ws_read_error", zap.String("client", c.id), zap.Error(err))
			}
			break
		}

		var req WSSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.reply(WSAck{Type: "error", Message: "invalid message"})
			continue
		}
		ack := c.apply(req)
		c.hub.log.Debug("ws_subscription", zap.String("client", c.id), zap.String("op", req.Op), zap.Strings("channels", ack.Channels))
		c.reply(ack)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.hub.done:
			return
		}
	}
}

// handleWebSocket handles WebSocket upgrade and client lifecycle
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("ws_upgrade_failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		return
	}

	client := &Client{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		id:            uuid.NewString(),
		subscriptions: make(map[string]bool),
	}

	select {
	case client.hub.register <- client:
	case <-client.hub.done:
		conn.Close()
		return
	}

	// Start read and write pumps in separate goroutines
	go client.writePump()
	go client.readPump()
}

var _ events.Sink = (*Hub)(nil)
